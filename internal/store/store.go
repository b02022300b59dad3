package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"esdtscan/internal/config"
	"esdtscan/internal/errors"
	"esdtscan/pkg/models"

	"github.com/fxamacker/cbor/v2"
	"github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
)

const (
	// 默认数据库路径
	DefaultDBPath = "./data/esdtscan.db"

	// 存储桶名称
	ReceiptsBucket = "receipts"
	TokensBucket   = "tokens"
	StatsBucket    = "stats"

	// 统计键
	ReceiptStatsKey = "receipt_stats"
)

// Store 基于BoltDB的回执缓存与代币索引
type Store struct {
	db     *bolt.DB
	logger *logrus.Logger
	dbPath string
	now    func() time.Time

	mu    sync.RWMutex
	stats *models.ReceiptStats
}

// NewStore 打开或创建本地存储
func NewStore(cfg *config.StoreConfig, logger *logrus.Logger) (*Store, error) {
	dbPath := DefaultDBPath
	timeout := time.Second
	if cfg != nil {
		if cfg.Path != "" {
			dbPath = cfg.Path
		}
		if cfg.Timeout > 0 {
			timeout = cfg.Timeout
		}
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("创建数据目录失败: %w", err)
	}

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: timeout})
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.SeverityCritical,
			"STORE_OPEN_FAILED", fmt.Sprintf("打开数据库失败: %s", dbPath))
	}

	s := &Store{
		db:     db,
		logger: logger,
		dbPath: dbPath,
		now:    time.Now,
		stats:  models.NewReceiptStats(),
	}

	if err := s.initDB(); err != nil {
		db.Close()
		return nil, fmt.Errorf("初始化数据库失败: %w", err)
	}

	if err := s.loadStats(); err != nil {
		logger.Warnf("加载统计缓存失败: %v", err)
	}

	logger.Infof("本地存储已初始化，数据库路径: %s", dbPath)
	return s, nil
}

// initDB 初始化数据库结构
func (s *Store) initDB() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{ReceiptsBucket, TokensBucket, StatsBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("创建存储桶%s失败: %w", name, err)
			}
		}
		return nil
	})
}

// loadStats 加载统计缓存
func (s *Store) loadStats() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.View(func(tx *bolt.Tx) error {
		stats, err := readStats(tx)
		if err != nil {
			return err
		}
		s.stats = stats
		return nil
	})
}

func readStats(tx *bolt.Tx) (*models.ReceiptStats, error) {
	stats := models.NewReceiptStats()
	data := tx.Bucket([]byte(StatsBucket)).Get([]byte(ReceiptStatsKey))
	if data == nil {
		return stats, nil
	}
	if err := json.Unmarshal(data, stats); err != nil {
		return nil, fmt.Errorf("解析统计数据失败: %w", err)
	}
	if stats.TokensByKind == nil {
		stats.TokensByKind = make(map[models.TokenKind]uint64)
	}
	return stats, nil
}

// Save 保存回执，同一交易重复保存只覆盖内容不重复计数。返回是否为新记录
func (s *Store) Save(receipt *models.ParsedReceipt) (bool, error) {
	if receipt == nil || receipt.Hash == "" {
		return false, errors.NewScanError(errors.ErrorTypeValidation, errors.SeverityLow,
			"EMPTY_RECEIPT", "回执或交易哈希为空")
	}

	value, err := cbor.Marshal(receipt)
	if err != nil {
		return false, errors.WrapError(err, errors.ErrorTypeStorage, errors.SeverityHigh,
			"STORE_ENCODE_FAILED", "编码回执失败").WithTxHash(receipt.Hash)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var created bool
	var stats *models.ReceiptStats
	err = s.db.Update(func(tx *bolt.Tx) error {
		receipts := tx.Bucket([]byte(ReceiptsBucket))
		key := []byte(receipt.Hash)
		created = receipts.Get(key) == nil

		if err := receipts.Put(key, value); err != nil {
			return fmt.Errorf("保存回执失败: %w", err)
		}
		if !created {
			return nil
		}

		if token := models.NewIssuedToken(receipt, s.now()); token != nil {
			if err := putToken(tx, token); err != nil {
				return err
			}
		}

		stats, err = readStats(tx)
		if err != nil {
			return err
		}
		stats.Add(receipt)
		stats.LastUpdated = s.now().UTC()
		data, err := json.Marshal(stats)
		if err != nil {
			return fmt.Errorf("编码统计数据失败: %w", err)
		}
		return tx.Bucket([]byte(StatsBucket)).Put([]byte(ReceiptStatsKey), data)
	})
	if err != nil {
		return false, errors.WrapError(err, errors.ErrorTypeStorage, errors.SeverityHigh,
			"STORE_WRITE_FAILED", "写入存储失败").WithTxHash(receipt.Hash)
	}

	if stats != nil {
		s.stats = stats
	}
	return created, nil
}

// putToken 写入代币索引，已有记录时保留最早发现的那条
func putToken(tx *bolt.Tx, token *models.IssuedToken) error {
	tokens := tx.Bucket([]byte(TokensBucket))
	key := []byte(token.Identifier)
	if tokens.Get(key) != nil {
		return nil
	}
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("编码代币记录失败: %w", err)
	}
	return tokens.Put(key, data)
}

// Get 按交易哈希读取回执
func (s *Store) Get(hash string) (*models.ParsedReceipt, error) {
	var receipt *models.ParsedReceipt
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(ReceiptsBucket)).Get([]byte(hash))
		if data == nil {
			return errors.NotFound("回执", hash)
		}
		receipt = &models.ParsedReceipt{}
		return cbor.Unmarshal(data, receipt)
	})
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, err
		}
		return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.SeverityHigh,
			"STORE_READ_FAILED", "读取回执失败").WithTxHash(hash)
	}
	return receipt, nil
}

// LookupToken 按代币标识查询发行记录
func (s *Store) LookupToken(identifier string) (*models.IssuedToken, error) {
	var token *models.IssuedToken
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(TokensBucket)).Get([]byte(identifier))
		if data == nil {
			return errors.NotFound("代币", identifier)
		}
		token = &models.IssuedToken{}
		return json.Unmarshal(data, token)
	})
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, err
		}
		return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.SeverityHigh,
			"STORE_READ_FAILED", "读取代币记录失败")
	}
	return token, nil
}

// ListTokens 列出发行记录，按发现时间倒序，limit<=0时不限制
func (s *Store) ListTokens(limit int) ([]*models.IssuedToken, error) {
	var tokens []*models.IssuedToken
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(TokensBucket)).ForEach(func(k, v []byte) error {
			token := &models.IssuedToken{}
			if err := json.Unmarshal(v, token); err != nil {
				return fmt.Errorf("解析代币记录%s失败: %w", k, err)
			}
			tokens = append(tokens, token)
			return nil
		})
	})
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.SeverityHigh,
			"STORE_READ_FAILED", "读取代币列表失败")
	}

	sort.SliceStable(tokens, func(i, j int) bool {
		if tokens[i].DiscoveredAt.Equal(tokens[j].DiscoveredAt) {
			return tokens[i].Identifier < tokens[j].Identifier
		}
		return tokens[i].DiscoveredAt.After(tokens[j].DiscoveredAt)
	})
	if limit > 0 && len(tokens) > limit {
		tokens = tokens[:limit]
	}
	return tokens, nil
}

// Stats 获取统计信息副本
func (s *Store) Stats() *models.ReceiptStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := *s.stats
	stats.TokensByKind = make(map[models.TokenKind]uint64, len(s.stats.TokensByKind))
	for k, v := range s.stats.TokensByKind {
		stats.TokensByKind[k] = v
	}
	return &stats
}

// Reset 清空所有数据
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{ReceiptsBucket, TokensBucket, StatsBucket} {
			if tx.Bucket([]byte(name)) != nil {
				if err := tx.DeleteBucket([]byte(name)); err != nil {
					return err
				}
			}
			if _, err := tx.CreateBucket([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.SeverityHigh,
			"STORE_RESET_FAILED", "清空存储失败")
	}

	s.stats = models.NewReceiptStats()
	return nil
}

// GetDBPath 获取数据库路径
func (s *Store) GetDBPath() string {
	return s.dbPath
}

// Close 关闭存储
func (s *Store) Close() error {
	if s.db != nil {
		s.logger.Info("关闭本地存储")
		return s.db.Close()
	}
	return nil
}

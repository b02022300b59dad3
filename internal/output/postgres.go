package output

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"esdtscan/internal/errors"
	"esdtscan/pkg/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS esdt_receipts (
	hash               TEXT PRIMARY KEY,
	status             TEXT NOT NULL,
	sender             TEXT NOT NULL,
	receiver           TEXT NOT NULL,
	gas_used           BIGINT NOT NULL,
	fee                NUMERIC(78, 0),
	token_identifier   TEXT,
	token_kind         TEXT,
	deployed_address   TEXT,
	out_hex            TEXT[] NOT NULL DEFAULT '{}',
	out_decode_warning BOOLEAN NOT NULL DEFAULT FALSE,
	warnings           TEXT[] NOT NULL DEFAULT '{}',
	payload            JSONB NOT NULL,
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS esdt_issued_tokens (
	identifier    TEXT PRIMARY KEY,
	kind          TEXT NOT NULL,
	tx_hash       TEXT NOT NULL,
	issuer        TEXT NOT NULL,
	discovered_at TIMESTAMPTZ NOT NULL
);`

const insertReceiptSQL = `
INSERT INTO esdt_receipts (hash, status, sender, receiver, gas_used, fee, token_identifier,
	token_kind, deployed_address, out_hex, out_decode_warning, warnings, payload, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NOW())
ON CONFLICT (hash) DO UPDATE SET
	status = EXCLUDED.status,
	token_identifier = EXCLUDED.token_identifier,
	token_kind = EXCLUDED.token_kind,
	deployed_address = EXCLUDED.deployed_address,
	out_hex = EXCLUDED.out_hex,
	out_decode_warning = EXCLUDED.out_decode_warning,
	warnings = EXCLUDED.warnings,
	payload = EXCLUDED.payload,
	updated_at = NOW()`

const insertTokenSQL = `
INSERT INTO esdt_issued_tokens (identifier, kind, tx_hash, issuer, discovered_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (identifier) DO NOTHING`

// execer 写入所需的最小数据库接口
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// PostgresOutput PostgreSQL输出器
type PostgresOutput struct {
	db      execer
	closer  func() error
	logger  *logrus.Logger
	timeout time.Duration
}

// NewPostgresOutput 连接数据库并建表
func NewPostgresOutput(dsn string, logger *logrus.Logger) (*PostgresOutput, error) {
	if dsn == "" {
		return nil, fmt.Errorf("未配置PostgreSQL DSN")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.WrapError(err, errors.ErrorTypeOutput, errors.SeverityHigh,
			"POSTGRES_CONNECT_FAILED", "数据库连接测试失败")
	}

	if _, err := db.ExecContext(ctx, postgresSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("创建数据表失败: %w", err)
	}

	logger.Info("PostgreSQL输出器已初始化")
	o := newPostgresOutput(db, logger)
	o.closer = db.Close
	return o, nil
}

func newPostgresOutput(db execer, logger *logrus.Logger) *PostgresOutput {
	return &PostgresOutput{
		db:      db,
		logger:  logger,
		timeout: 5 * time.Second,
	}
}

// receiptArgs 回执对应的插入参数
func receiptArgs(receipt *models.ParsedReceipt) ([]interface{}, error) {
	payload, err := json.Marshal(receipt)
	if err != nil {
		return nil, fmt.Errorf("序列化回执失败: %w", err)
	}

	var fee interface{}
	if receipt.Fee != nil {
		fee = receipt.Fee.String()
	}

	outHex := make([]string, len(receipt.Out))
	for i, part := range receipt.Out {
		outHex[i] = common.Bytes2Hex(part)
	}

	warnings := receipt.Warnings
	if warnings == nil {
		warnings = []string{}
	}

	var kind interface{}
	if receipt.HasIssuance() {
		kind = string(receipt.IssuedTokenKind)
	}

	return []interface{}{
		receipt.Hash,
		receipt.Status,
		receipt.Sender,
		receipt.Receiver,
		int64(receipt.GasUsed),
		fee,
		nullableString(receipt.NewIssuedTokenIdentifier),
		kind,
		nullableString(receipt.NewDeployedAddress),
		pq.Array(outHex),
		receipt.OutDecodeWarning,
		pq.Array(warnings),
		string(payload),
	}, nil
}

func nullableString(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

// WriteReceipt 写入回执，同一交易重复写入时更新
func (p *PostgresOutput) WriteReceipt(receipt *models.ParsedReceipt) error {
	if receipt == nil {
		return nil
	}

	args, err := receiptArgs(receipt)
	if err != nil {
		return err
	}
	return p.exec(receipt.Hash, insertReceiptSQL, args...)
}

// WriteIssuance 写入发行记录，已存在时忽略
func (p *PostgresOutput) WriteIssuance(token *models.IssuedToken) error {
	if token == nil {
		return nil
	}
	return p.exec(token.TxHash, insertTokenSQL,
		token.Identifier, string(token.Kind), token.TxHash, token.Issuer, token.DiscoveredAt)
}

func (p *PostgresOutput) exec(txHash, query string, args ...interface{}) error {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	if _, err := p.db.ExecContext(ctx, query, args...); err != nil {
		return errors.WrapError(err, errors.ErrorTypeOutput, errors.SeverityMedium,
			"POSTGRES_WRITE_FAILED", "写入PostgreSQL失败").WithTxHash(txHash)
	}
	return nil
}

// Close 关闭数据库连接
func (p *PostgresOutput) Close() error {
	if p.closer != nil {
		return p.closer()
	}
	return nil
}

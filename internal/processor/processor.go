package processor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"esdtscan/internal/errors"
	"esdtscan/internal/interpreter"
	"esdtscan/internal/logging"
	"esdtscan/internal/output"
	"esdtscan/internal/validation"
	"esdtscan/pkg/models"

	"github.com/sirupsen/logrus"
)

// 处理器常量
const (
	DefaultWorkerCount   = 4    // 默认工作协程数
	MaxConcurrentWorkers = 50   // 最大并发工作协程数
	MaxHashesPerBatch    = 5000 // 每批最多交易数
)

// Fetcher 按哈希拉取网关原始响应
type Fetcher interface {
	FetchTransaction(ctx context.Context, hash string) ([]byte, error)
}

// ReceiptStore 回执缓存
type ReceiptStore interface {
	Save(receipt *models.ParsedReceipt) (bool, error)
	Get(hash string) (*models.ParsedReceipt, error)
	Stats() *models.ReceiptStats
}

// Options 处理器依赖，Fetcher和Store可以为空
type Options struct {
	Interpreter *interpreter.Interpreter
	Validator   *validation.Validator
	Fetcher     Fetcher
	Store       ReceiptStore
	Output      output.Output
	// QueueSize 批量处理的任务队列长度，0表示工作协程数的两倍
	QueueSize int
	// Refresh 为true时忽略缓存，总是从网关重新拉取
	Refresh bool
}

// Result 单个回执的处理结果
type Result struct {
	Receipt    *models.ParsedReceipt        `json:"receipt"`
	Token      *models.IssuedToken          `json:"token,omitempty"`
	Validation *validation.ValidationResult `json:"validation,omitempty"`
	Cached     bool                         `json:"cached"`
}

// BatchResult 批量处理结果
type BatchResult struct {
	Total             int           `json:"total"`
	Processed         int           `json:"processed"`
	Issued            int           `json:"issued"`
	Failed            int           `json:"failed"`
	Cached            int           `json:"cached"`
	Results           []*Result     `json:"results"`
	Errors            []error       `json:"-"`
	StartTime         time.Time     `json:"start_time"`
	EndTime           time.Time     `json:"end_time"`
	Duration          time.Duration `json:"duration"`
	ReceiptsPerSecond float64       `json:"receipts_per_second"`
}

// Processor 回执处理器：解析、校验、缓存并输出
type Processor struct {
	interpreter  *interpreter.Interpreter
	validator    *validation.Validator
	fetcher      Fetcher
	store        ReceiptStore
	outputter    output.Output
	refresh      bool
	queueSize    int
	errorHandler *errors.ErrorHandler
	logger       *logrus.Logger
	now          func() time.Time

	mu    sync.Mutex
	stats *models.ReceiptStats
}

// NewProcessor 创建处理器
func NewProcessor(opts Options, logger *logrus.Logger) *Processor {
	p := &Processor{
		interpreter:  opts.Interpreter,
		validator:    opts.Validator,
		fetcher:      opts.Fetcher,
		store:        opts.Store,
		outputter:    opts.Output,
		refresh:      opts.Refresh,
		queueSize:    opts.QueueSize,
		errorHandler: errors.NewErrorHandler(logger),
		logger:       logger,
		now:          time.Now,
		stats:        models.NewReceiptStats(),
	}
	if p.interpreter == nil {
		p.interpreter = interpreter.New(nil)
	}
	if p.validator == nil {
		p.validator = validation.NewValidator(logger, false)
	}
	if p.outputter == nil {
		p.outputter = output.NewNoopOutput()
	}
	return p
}

// ProcessRaw 处理一个网关原始响应
func (p *Processor) ProcessRaw(ctx context.Context, raw []byte) (*Result, error) {
	start := time.Now()

	receipt, err := p.interpreter.Parse(raw)
	if err != nil {
		p.handleError(ctx, err)
		return nil, fmt.Errorf("解析回执失败: %w", err)
	}

	entry := logging.NewReceiptLogger(p.logger, receipt.Hash)
	result := &Result{
		Receipt:    receipt,
		Validation: p.validator.ValidateReceipt(receipt),
		Token:      models.NewIssuedToken(receipt, p.now()),
	}

	if !result.Validation.Valid {
		entry.WithField("errors", len(result.Validation.Errors)).Warn("回执校验未通过")
	}

	fresh := true
	if p.store != nil && isFinal(receipt.Status) {
		created, err := p.store.Save(receipt)
		if err != nil {
			p.handleError(ctx, err)
			return result, fmt.Errorf("保存回执失败: %w", err)
		}
		fresh = created
	}

	if err := p.emit(result, fresh); err != nil {
		p.handleError(ctx, err)
		return result, fmt.Errorf("输出回执失败: %w", err)
	}

	if fresh && isFinal(receipt.Status) {
		p.mu.Lock()
		p.stats.Add(receipt)
		p.stats.LastUpdated = p.now().UTC()
		p.mu.Unlock()
	}

	if result.Token != nil {
		entry.WithFields(logrus.Fields{
			"token_identifier": result.Token.Identifier,
			"token_kind":       result.Token.Kind,
		}).Info("发现新发行代币")
	}
	logging.LogOperation(entry, "process_receipt", start, nil)
	return result, nil
}

// emit 输出回执，发行记录只在首次处理时输出
func (p *Processor) emit(result *Result, fresh bool) error {
	if err := p.outputter.WriteReceipt(result.Receipt); err != nil {
		return err
	}
	if result.Token != nil && fresh {
		return p.outputter.WriteIssuance(result.Token)
	}
	return nil
}

// ProcessHash 处理单个交易，优先使用缓存
func (p *Processor) ProcessHash(ctx context.Context, hash string) (*Result, error) {
	if p.store != nil && !p.refresh {
		receipt, err := p.store.Get(hash)
		if err == nil {
			return &Result{
				Receipt:    receipt,
				Token:      models.NewIssuedToken(receipt, p.now()),
				Validation: p.validator.ValidateReceipt(receipt),
				Cached:     true,
			}, nil
		}
		if !errors.IsNotFound(err) {
			p.logger.WithError(err).WithField("tx_hash", hash).Warn("读取缓存失败，改为从网关拉取")
		}
	}

	if p.fetcher == nil {
		return nil, errors.NotFound("回执", hash)
	}

	raw, err := p.fetcher.FetchTransaction(ctx, hash)
	if err != nil {
		p.handleError(ctx, err)
		return nil, fmt.Errorf("拉取交易%s失败: %w", hash, err)
	}
	return p.ProcessRaw(ctx, raw)
}

// validateBatchParams 验证批量处理参数
func validateBatchParams(hashes []string, workers int) error {
	if len(hashes) == 0 {
		return fmt.Errorf("没有需要处理的交易")
	}
	if len(hashes) > MaxHashesPerBatch {
		return fmt.Errorf("交易数量过多，最多支持%d个，当前: %d", MaxHashesPerBatch, len(hashes))
	}
	if workers <= 0 || workers > MaxConcurrentWorkers {
		return fmt.Errorf("工作协程数必须在1-%d之间，当前值: %d", MaxConcurrentWorkers, workers)
	}
	return nil
}

// hashTask 带序号的任务，用于保持结果顺序
type hashTask struct {
	index int
	hash  string
}

type hashResult struct {
	index  int
	result *Result
	err    error
}

// ProcessHashes 使用工作池批量处理交易，结果顺序与去重后的输入一致
func (p *Processor) ProcessHashes(ctx context.Context, hashes []string, workers int) (*BatchResult, error) {
	hashes = dedupe(hashes)
	if err := validateBatchParams(hashes, workers); err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeValidation, errors.SeverityLow,
			"INVALID_BATCH", err.Error())
	}
	if workers > len(hashes) {
		workers = len(hashes)
	}

	p.logger.Infof("开始批量处理 %d 个交易，使用 %d 个工作者", len(hashes), workers)

	batch := &BatchResult{
		Total:     len(hashes),
		Results:   make([]*Result, len(hashes)),
		StartTime: time.Now(),
	}

	queueSize := p.queueSize
	if queueSize <= 0 {
		queueSize = workers * 2
	}
	taskChan := make(chan hashTask, queueSize)
	resultChan := make(chan hashResult, queueSize)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go p.worker(ctx, taskChan, resultChan, &wg)
	}

	go func() {
		defer close(taskChan)
		for i, hash := range hashes {
			select {
			case taskChan <- hashTask{index: i, hash: hash}:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	for r := range resultChan {
		if r.err != nil {
			batch.Failed++
			batch.Errors = append(batch.Errors, r.err)
			continue
		}
		batch.Results[r.index] = r.result
		batch.Processed++
		if r.result.Cached {
			batch.Cached++
		}
		if r.result.Token != nil {
			batch.Issued++
		}
	}

	batch.Results = compact(batch.Results)
	batch.EndTime = time.Now()
	batch.Duration = batch.EndTime.Sub(batch.StartTime)
	if seconds := batch.Duration.Seconds(); seconds > 0 {
		batch.ReceiptsPerSecond = float64(batch.Processed) / seconds
	}

	p.logger.WithFields(logrus.Fields{
		"processed": batch.Processed,
		"issued":    batch.Issued,
		"failed":    batch.Failed,
		"cached":    batch.Cached,
		"duration":  batch.Duration.String(),
	}).Info("批量处理完成")

	if err := ctx.Err(); err != nil {
		return batch, err
	}
	return batch, nil
}

// worker 工作协程
func (p *Processor) worker(ctx context.Context, taskChan <-chan hashTask, resultChan chan<- hashResult, wg *sync.WaitGroup) {
	defer wg.Done()

	for task := range taskChan {
		if ctx.Err() != nil {
			return
		}

		result, err := p.ProcessHash(ctx, task.hash)
		resultChan <- hashResult{index: task.index, result: result, err: err}
	}
}

// Stats 处理统计，配置了存储时以存储为准
func (p *Processor) Stats() *models.ReceiptStats {
	if p.store != nil {
		return p.store.Stats()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	stats := *p.stats
	stats.TokensByKind = make(map[models.TokenKind]uint64, len(p.stats.TokensByKind))
	for k, v := range p.stats.TokensByKind {
		stats.TokensByKind[k] = v
	}
	return &stats
}

// ErrorStats 错误统计
func (p *Processor) ErrorStats() errors.ErrorStats {
	return p.errorHandler.GetStats()
}

// Close 关闭输出
func (p *Processor) Close() error {
	return p.outputter.Close()
}

func (p *Processor) handleError(ctx context.Context, err error) {
	p.errorHandler.HandleError(ctx, err)
}

// isFinal 交易状态已确定，可以缓存
func isFinal(status string) bool {
	return status != models.StatusPending && status != ""
}

func dedupe(hashes []string) []string {
	seen := make(map[string]struct{}, len(hashes))
	out := make([]string, 0, len(hashes))
	for _, h := range hashes {
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, h)
	}
	return out
}

func compact(results []*Result) []*Result {
	out := results[:0]
	for _, r := range results {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

package errors

import (
	"context"
	stderrors "errors"
	"sync"

	"github.com/sirupsen/logrus"
)

// ErrorHandler 错误处理器
type ErrorHandler struct {
	logger *logrus.Logger
	stats  *ErrorStats
	mu     sync.RWMutex

	strategies map[ErrorType]ErrorStrategy
	callbacks  []ErrorCallback
}

// ErrorStrategy 错误处理策略
type ErrorStrategy interface {
	Handle(ctx context.Context, err *ScanError) error
}

// ErrorCallback 错误回调函数
type ErrorCallback func(err *ScanError)

// LoggingStrategy 日志记录策略
type LoggingStrategy struct {
	logger *logrus.Logger
}

// NewErrorHandler 创建错误处理器
func NewErrorHandler(logger *logrus.Logger) *ErrorHandler {
	eh := &ErrorHandler{
		logger:     logger,
		stats:      NewErrorStats(),
		strategies: make(map[ErrorType]ErrorStrategy),
		callbacks:  make([]ErrorCallback, 0),
	}

	loggingStrategy := &LoggingStrategy{logger: logger}
	for errorType := range errorTypeNames {
		eh.strategies[errorType] = loggingStrategy
	}

	return eh
}

// HandleError 处理错误
func (eh *ErrorHandler) HandleError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}

	var scanErr *ScanError
	if !stderrors.As(err, &scanErr) {
		scanErr = WrapError(err, ErrorTypeInternal, SeverityMedium, "UNKNOWN_ERROR", "未知错误")
	}

	eh.mu.Lock()
	eh.stats.RecordError(scanErr)
	callbacks := make([]ErrorCallback, len(eh.callbacks))
	copy(callbacks, eh.callbacks)
	strategy, exists := eh.strategies[scanErr.Type]
	eh.mu.Unlock()

	for _, cb := range callbacks {
		eh.runCallback(cb, scanErr)
	}

	if !exists {
		strategy = &LoggingStrategy{logger: eh.logger}
	}
	return strategy.Handle(ctx, scanErr)
}

// runCallback 同步执行回调，回调panic不影响调用方
func (eh *ErrorHandler) runCallback(cb ErrorCallback, err *ScanError) {
	defer func() {
		if r := recover(); r != nil {
			eh.logger.Errorf("错误回调执行时发生panic: %v", r)
		}
	}()
	cb(err)
}

// Handle 实现LoggingStrategy的处理方法
func (ls *LoggingStrategy) Handle(ctx context.Context, err *ScanError) error {
	fields := logrus.Fields{
		"error_type": err.Type.String(),
		"error_code": err.Code,
		"retryable":  err.Retryable,
	}
	if err.Component != "" {
		fields["component"] = err.Component
	}
	if err.TxHash != nil {
		fields["tx_hash"] = *err.TxHash
	}
	if err.Cause != nil {
		fields["cause"] = err.Cause.Error()
	}
	logEntry := ls.logger.WithFields(fields)

	switch err.Severity {
	case SeverityLow:
		logEntry.Debug(err.Message)
	case SeverityMedium:
		logEntry.Warn(err.Message)
	default:
		logEntry.Error(err.Message)
	}

	return err
}

// AddCallback 添加错误回调
func (eh *ErrorHandler) AddCallback(callback ErrorCallback) {
	eh.mu.Lock()
	defer eh.mu.Unlock()
	eh.callbacks = append(eh.callbacks, callback)
}

// SetStrategy 设置错误处理策略
func (eh *ErrorHandler) SetStrategy(errorType ErrorType, strategy ErrorStrategy) {
	eh.mu.Lock()
	defer eh.mu.Unlock()
	eh.strategies[errorType] = strategy
}

// GetStats 获取错误统计信息快照
func (eh *ErrorHandler) GetStats() ErrorStats {
	eh.mu.RLock()
	defer eh.mu.RUnlock()

	snapshot := *eh.stats
	snapshot.RecentErrors = append([]*ScanError(nil), eh.stats.RecentErrors...)
	snapshot.ErrorsByType = make(map[ErrorType]int, len(eh.stats.ErrorsByType))
	for k, v := range eh.stats.ErrorsByType {
		snapshot.ErrorsByType[k] = v
	}
	snapshot.ErrorsBySeverity = make(map[ErrorSeverity]int, len(eh.stats.ErrorsBySeverity))
	for k, v := range eh.stats.ErrorsBySeverity {
		snapshot.ErrorsBySeverity[k] = v
	}
	snapshot.ErrorsByComponent = make(map[string]int, len(eh.stats.ErrorsByComponent))
	for k, v := range eh.stats.ErrorsByComponent {
		snapshot.ErrorsByComponent[k] = v
	}
	return snapshot
}

// ClearStats 清除统计信息
func (eh *ErrorHandler) ClearStats() {
	eh.mu.Lock()
	defer eh.mu.Unlock()
	eh.stats = NewErrorStats()
}

// CompositeStrategy 组合策略，可以执行多个策略
type CompositeStrategy struct {
	strategies []ErrorStrategy
}

// NewCompositeStrategy 创建组合策略
func NewCompositeStrategy(strategies ...ErrorStrategy) *CompositeStrategy {
	return &CompositeStrategy{strategies: strategies}
}

// Handle 实现CompositeStrategy的处理方法
func (cs *CompositeStrategy) Handle(ctx context.Context, err *ScanError) error {
	var lastErr error
	for _, strategy := range cs.strategies {
		if strategyErr := strategy.Handle(ctx, err); strategyErr != nil {
			lastErr = strategyErr
		}
	}
	return lastErr
}

package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorType 错误类型
type ErrorType int

const (
	// 回执解析相关错误（对外暴露）
	ErrorTypeMalformedReceipt ErrorType = iota
	ErrorTypeInternal

	// 编解码错误，仅在codec内部产生
	ErrorTypeMalformedBase64
	ErrorTypeMalformedHex
	ErrorTypeMalformedCallData

	// 网关相关错误
	ErrorTypeNetwork
	ErrorTypeTimeout
	ErrorTypeRateLimit

	// 服务层错误
	ErrorTypeStorage
	ErrorTypeOutput
	ErrorTypeConfig
	ErrorTypeValidation
)

// ErrorSeverity 错误严重级别
type ErrorSeverity int

const (
	SeverityLow ErrorSeverity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

// ScanError 自定义错误类型
type ScanError struct {
	Type       ErrorType              `json:"type"`
	Severity   ErrorSeverity          `json:"severity"`
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	Timestamp  time.Time              `json:"timestamp"`
	Context    map[string]interface{} `json:"context,omitempty"`
	Cause      error                  `json:"-"`
	Retryable  bool                   `json:"retryable"`
	Component  string                 `json:"component,omitempty"`
	TxHash     *string                `json:"tx_hash,omitempty"`
	FieldIndex *int                   `json:"field_index,omitempty"`
}

// Error 实现error接口
func (e *ScanError) Error() string {
	prefix := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.FieldIndex != nil {
		prefix = fmt.Sprintf("%s (field %d)", prefix, *e.FieldIndex)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", prefix, e.Cause)
	}
	return prefix
}

// Unwrap 支持errors.Unwrap
func (e *ScanError) Unwrap() error {
	return e.Cause
}

// Is 按错误类型匹配，使 errors.Is(err, ErrMalformedReceipt) 对所有同类错误成立
func (e *ScanError) Is(target error) bool {
	t, ok := target.(*ScanError)
	if !ok {
		return false
	}
	return t.Type == e.Type
}

// IsRetryable 判断是否可重试
func (e *ScanError) IsRetryable() bool {
	return e.Retryable
}

// WithContext 添加上下文信息
func (e *ScanError) WithContext(key string, value interface{}) *ScanError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithTxHash 添加交易哈希
func (e *ScanError) WithTxHash(txHash string) *ScanError {
	e.TxHash = &txHash
	return e
}

// WithFieldIndex 标记出错的调用字段位置
func (e *ScanError) WithFieldIndex(index int) *ScanError {
	e.FieldIndex = &index
	return e
}

// WithComponent 标记产生错误的组件
func (e *ScanError) WithComponent(component string) *ScanError {
	e.Component = component
	return e
}

// NewScanError 创建新的错误
func NewScanError(errorType ErrorType, severity ErrorSeverity, code, message string) *ScanError {
	return &ScanError{
		Type:      errorType,
		Severity:  severity,
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
		Retryable: determineRetryable(errorType, code),
	}
}

// WrapError 包装现有错误
func WrapError(err error, errorType ErrorType, severity ErrorSeverity, code, message string) *ScanError {
	e := NewScanError(errorType, severity, code, message)
	e.Cause = err
	return e
}

// determineRetryable 根据错误类型判断是否可重试
func determineRetryable(errorType ErrorType, code string) bool {
	switch errorType {
	case ErrorTypeTimeout, ErrorTypeRateLimit:
		return true
	case ErrorTypeNetwork:
		// 网关明确返回的客户端错误不重试
		return code != "GATEWAY_CLIENT_ERROR" && code != "TRANSACTION_NOT_FOUND"
	case ErrorTypeOutput:
		return code == "KAFKA_PRODUCE_FAILED"
	default:
		return false
	}
}

// 预定义错误，仅用于 errors.Is 比较，不要修改
var (
	ErrMalformedReceipt = NewScanError(
		ErrorTypeMalformedReceipt,
		SeverityHigh,
		"MALFORMED_RECEIPT",
		"回执JSON不符合数据模型",
	)

	ErrInternal = NewScanError(
		ErrorTypeInternal,
		SeverityCritical,
		"INTERNAL",
		"内部错误",
	)

	ErrMalformedBase64 = NewScanError(
		ErrorTypeMalformedBase64,
		SeverityLow,
		"MALFORMED_BASE64",
		"base64格式错误",
	)

	ErrMalformedHex = NewScanError(
		ErrorTypeMalformedHex,
		SeverityLow,
		"MALFORMED_HEX",
		"十六进制格式错误",
	)

	ErrMalformedCallData = NewScanError(
		ErrorTypeMalformedCallData,
		SeverityLow,
		"MALFORMED_CALL_DATA",
		"调用数据格式错误",
	)

	ErrNotFound = NewScanError(
		ErrorTypeStorage,
		SeverityLow,
		"NOT_FOUND",
		"记录不存在",
	)

	ErrValidation = NewScanError(
		ErrorTypeValidation,
		SeverityMedium,
		"VALIDATION_FAILED",
		"数据验证失败",
	)

	ErrConfigInvalid = NewScanError(
		ErrorTypeConfig,
		SeverityCritical,
		"CONFIG_INVALID",
		"配置无效",
	)
)

// NotFound 创建记录不存在错误
func NotFound(what, key string) *ScanError {
	return NewScanError(ErrorTypeStorage, SeverityLow, "NOT_FOUND",
		fmt.Sprintf("%s不存在: %s", what, key))
}

// IsNotFound 判断是否为记录不存在
func IsNotFound(err error) bool {
	var se *ScanError
	return stderrors.As(err, &se) && se.Code == "NOT_FOUND"
}

// 错误类型字符串映射
var errorTypeNames = map[ErrorType]string{
	ErrorTypeMalformedReceipt:  "MalformedReceipt",
	ErrorTypeInternal:          "Internal",
	ErrorTypeMalformedBase64:   "MalformedBase64",
	ErrorTypeMalformedHex:      "MalformedHex",
	ErrorTypeMalformedCallData: "MalformedCallData",
	ErrorTypeNetwork:           "Network",
	ErrorTypeTimeout:           "Timeout",
	ErrorTypeRateLimit:         "RateLimit",
	ErrorTypeStorage:           "Storage",
	ErrorTypeOutput:            "Output",
	ErrorTypeConfig:            "Config",
	ErrorTypeValidation:        "Validation",
}

// String 返回错误类型的字符串表示
func (et ErrorType) String() string {
	if name, exists := errorTypeNames[et]; exists {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", et)
}

// 严重级别字符串映射
var severityNames = map[ErrorSeverity]string{
	SeverityLow:      "Low",
	SeverityMedium:   "Medium",
	SeverityHigh:     "High",
	SeverityCritical: "Critical",
}

// String 返回严重级别的字符串表示
func (es ErrorSeverity) String() string {
	if name, exists := severityNames[es]; exists {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", es)
}

// ErrorStats 错误统计
type ErrorStats struct {
	TotalErrors       int                   `json:"total_errors"`
	ErrorsByType      map[ErrorType]int     `json:"errors_by_type"`
	ErrorsBySeverity  map[ErrorSeverity]int `json:"errors_by_severity"`
	ErrorsByComponent map[string]int        `json:"errors_by_component"`
	RecentErrors      []*ScanError          `json:"recent_errors"`
	LastError         *ScanError            `json:"last_error"`
	LastErrorTime     time.Time             `json:"last_error_time"`
}

// NewErrorStats 创建错误统计
func NewErrorStats() *ErrorStats {
	return &ErrorStats{
		ErrorsByType:      make(map[ErrorType]int),
		ErrorsBySeverity:  make(map[ErrorSeverity]int),
		ErrorsByComponent: make(map[string]int),
		RecentErrors:      make([]*ScanError, 0),
	}
}

// maxRecentErrors 保留的最近错误数量
const maxRecentErrors = 100

// RecordError 记录错误
func (es *ErrorStats) RecordError(err *ScanError) {
	es.TotalErrors++
	es.ErrorsByType[err.Type]++
	es.ErrorsBySeverity[err.Severity]++
	if err.Component != "" {
		es.ErrorsByComponent[err.Component]++
	}

	es.LastError = err
	es.LastErrorTime = err.Timestamp

	es.RecentErrors = append(es.RecentErrors, err)
	if len(es.RecentErrors) > maxRecentErrors {
		es.RecentErrors = es.RecentErrors[1:]
	}
}

// GetErrorRate 获取错误率（错误/小时）
func (es *ErrorStats) GetErrorRate(duration time.Duration) float64 {
	if duration <= 0 {
		return 0
	}

	cutoff := time.Now().Add(-duration)
	recentCount := 0
	for _, err := range es.RecentErrors {
		if err.Timestamp.After(cutoff) {
			recentCount++
		}
	}

	return float64(recentCount) / duration.Hours()
}

package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/sirupsen/logrus"
)

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level" json:"level"`             // 日志级别 (debug, info, warn, error)
	Format     string `mapstructure:"format" json:"format"`           // 日志格式 (json, text)
	Output     string `mapstructure:"output" json:"output"`           // 输出路径 (stdout, stderr, file path)
	AddSource  bool   `mapstructure:"add_source" json:"add_source"`   // 是否记录调用位置
	TimeFormat string `mapstructure:"time_format" json:"time_format"` // 时间格式
}

// DefaultLogConfig 默认日志配置
func DefaultLogConfig() *LogConfig {
	return &LogConfig{
		Level:      "info",
		Format:     "json",
		Output:     "stdout",
		AddSource:  false,
		TimeFormat: time.RFC3339,
	}
}

// NewLogger 按配置创建logrus日志器，输出到文件时返回的Closer需要关闭
func NewLogger(config *LogConfig) (*logrus.Logger, io.Closer, error) {
	if config == nil {
		config = DefaultLogConfig()
	}

	level, err := ParseLevel(config.Level)
	if err != nil {
		return nil, nil, err
	}

	writer, closer, err := getLogWriter(config.Output)
	if err != nil {
		return nil, nil, fmt.Errorf("创建日志输出失败: %w", err)
	}

	formatter, err := newFormatter(config)
	if err != nil {
		if closer != nil {
			closer.Close()
		}
		return nil, nil, err
	}

	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetOutput(writer)
	logger.SetFormatter(formatter)
	logger.SetReportCaller(config.AddSource)

	return logger, closer, nil
}

// ParseLevel 解析日志级别，空串为info
func ParseLevel(levelStr string) (logrus.Level, error) {
	if levelStr == "" {
		return logrus.InfoLevel, nil
	}
	level, err := logrus.ParseLevel(levelStr)
	if err != nil {
		return logrus.InfoLevel, fmt.Errorf("无效的日志级别 '%s': %w", levelStr, err)
	}
	return level, nil
}

func newFormatter(config *LogConfig) (logrus.Formatter, error) {
	timeFormat := config.TimeFormat
	if timeFormat == "" {
		timeFormat = time.RFC3339
	}

	switch config.Format {
	case "json", "":
		return &logrus.JSONFormatter{
			TimestampFormat:  timeFormat,
			CallerPrettyfier: shortCaller,
		}, nil
	case "text":
		return &logrus.TextFormatter{
			FullTimestamp:    true,
			TimestampFormat:  timeFormat,
			CallerPrettyfier: shortCaller,
		}, nil
	default:
		return nil, fmt.Errorf("不支持的日志格式: %s", config.Format)
	}
}

// shortCaller 只保留文件名和行号
func shortCaller(frame *runtime.Frame) (string, string) {
	return "", fmt.Sprintf("%s:%d", filepath.Base(frame.File), frame.Line)
}

func getLogWriter(output string) (io.Writer, io.Closer, error) {
	switch output {
	case "stdout", "":
		return os.Stdout, nil, nil
	case "stderr":
		return os.Stderr, nil, nil
	default:
		dir := filepath.Dir(output)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, nil, fmt.Errorf("创建日志目录失败: %w", err)
		}

		file, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, nil, fmt.Errorf("打开日志文件失败: %w", err)
		}
		return file, file, nil
	}
}

// NewComponentLogger 组件日志器
func NewComponentLogger(base logrus.FieldLogger, component string) *logrus.Entry {
	return base.WithField("component", component)
}

// NewReceiptLogger 回执处理专用日志器
func NewReceiptLogger(base logrus.FieldLogger, txHash string) *logrus.Entry {
	return base.WithFields(logrus.Fields{
		"component": "receipt_processor",
		"tx_hash":   txHash,
	})
}

// NewGatewayLogger 网关调用专用日志器
func NewGatewayLogger(base logrus.FieldLogger, method, url string) *logrus.Entry {
	return base.WithFields(logrus.Fields{
		"component":   "gateway_client",
		"method":      method,
		"gateway_url": url,
	})
}

// LogOperation 记录操作耗时与结果
func LogOperation(entry *logrus.Entry, operation string, start time.Time, err error) {
	fields := logrus.Fields{
		"operation":   operation,
		"duration_ms": time.Since(start).Milliseconds(),
	}
	if err != nil {
		entry.WithFields(fields).WithError(err).Error("操作失败")
		return
	}
	entry.WithFields(fields).Debug("操作完成")
}

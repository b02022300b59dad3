package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"esdtscan/internal/config"
	"esdtscan/pkg/models"

	"github.com/fxamacker/cbor/v2"
	"github.com/sirupsen/logrus"
)

// Output 输出接口
type Output interface {
	WriteReceipt(receipt *models.ParsedReceipt) error
	WriteIssuance(token *models.IssuedToken) error
	Close() error
}

// 记录类型，同时用作Kafka topic映射的键
const (
	RecordReceipts  = "receipts"
	RecordIssuances = "issuances"
)

// NewOutput 按配置创建输出器，多个输出类型时返回MultiOutput
func NewOutput(cfg *config.OutputConfig, logger *logrus.Logger) (Output, error) {
	if cfg == nil {
		return NewNoopOutput(), nil
	}

	var outputs []Output
	closeAll := func() {
		for _, o := range outputs {
			o.Close()
		}
	}

	for _, format := range cfg.Formats() {
		var (
			o   Output
			err error
		)
		switch format {
		case config.OutputFile:
			o, err = NewFileOutput(cfg.Directory, cfg.FileFormat)
		case config.OutputKafka:
			o, err = NewKafkaOutput(cfg.Kafka, logger)
		case config.OutputKafkaAsync:
			o, err = NewAsyncKafkaOutput(cfg.Kafka, logger)
		case config.OutputPostgres:
			dsn := ""
			if cfg.Postgres != nil {
				dsn = cfg.Postgres.DSN
			}
			o, err = NewPostgresOutput(dsn, logger)
		case config.OutputNone:
			continue
		default:
			err = fmt.Errorf("不支持的输出类型: %s", format)
		}
		if err != nil {
			closeAll()
			return nil, err
		}
		outputs = append(outputs, o)
	}

	switch len(outputs) {
	case 0:
		return NewNoopOutput(), nil
	case 1:
		return outputs[0], nil
	default:
		return NewMultiOutput(outputs...), nil
	}
}

// encoder 单条记录编码器
type encoder interface {
	Encode(v interface{}) error
}

// FileOutput 文件输出，json格式为每行一条记录，cbor格式为CBOR序列
type FileOutput struct {
	outputDir string
	format    string

	mu           sync.Mutex
	receiptFile  *os.File
	issuanceFile *os.File
	receiptEnc   encoder
	issuanceEnc  encoder
}

// NewFileOutput 创建文件输出器
func NewFileOutput(outputDir, format string) (*FileOutput, error) {
	if format == "" {
		format = "json"
	}
	if format != "json" && format != "cbor" {
		return nil, fmt.Errorf("不支持的文件格式: %s", format)
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("创建输出目录失败: %w", err)
	}

	ext := "jsonl"
	if format == "cbor" {
		ext = "cbor"
	}
	timestamp := time.Now().Format("20060102_150405")

	receiptFile, err := os.Create(filepath.Join(outputDir, fmt.Sprintf("receipts_%s.%s", timestamp, ext)))
	if err != nil {
		return nil, fmt.Errorf("创建回执文件失败: %w", err)
	}

	issuanceFile, err := os.Create(filepath.Join(outputDir, fmt.Sprintf("issuances_%s.%s", timestamp, ext)))
	if err != nil {
		receiptFile.Close()
		return nil, fmt.Errorf("创建发行记录文件失败: %w", err)
	}

	return &FileOutput{
		outputDir:    outputDir,
		format:       format,
		receiptFile:  receiptFile,
		issuanceFile: issuanceFile,
		receiptEnc:   newEncoder(format, receiptFile),
		issuanceEnc:  newEncoder(format, issuanceFile),
	}, nil
}

func newEncoder(format string, w io.Writer) encoder {
	if format == "cbor" {
		return cbor.NewEncoder(w)
	}
	return json.NewEncoder(w)
}

// WriteReceipt 写入回执
func (o *FileOutput) WriteReceipt(receipt *models.ParsedReceipt) error {
	if receipt == nil {
		return nil
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.receiptEnc.Encode(receipt); err != nil {
		return fmt.Errorf("写入回执文件失败: %w", err)
	}
	return nil
}

// WriteIssuance 写入发行记录
func (o *FileOutput) WriteIssuance(token *models.IssuedToken) error {
	if token == nil {
		return nil
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.issuanceEnc.Encode(token); err != nil {
		return fmt.Errorf("写入发行记录文件失败: %w", err)
	}
	return nil
}

// Files 当前输出文件路径
func (o *FileOutput) Files() (receipts, issuances string) {
	return o.receiptFile.Name(), o.issuanceFile.Name()
}

// Close 刷新并关闭文件
func (o *FileOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	var errs []error
	for _, f := range []*os.File{o.receiptFile, o.issuanceFile} {
		if f == nil {
			continue
		}
		if err := f.Sync(); err != nil {
			errs = append(errs, fmt.Errorf("刷新文件%s失败: %w", f.Name(), err))
		}
		if err := f.Close(); err != nil {
			errs = append(errs, fmt.Errorf("关闭文件%s失败: %w", f.Name(), err))
		}
	}
	o.receiptFile, o.issuanceFile = nil, nil

	if len(errs) > 0 {
		return fmt.Errorf("关闭输出文件时发生错误: %v", errs)
	}
	return nil
}

// MultiOutput 同时写入多个输出
type MultiOutput struct {
	outputs []Output
}

// NewMultiOutput 创建组合输出器
func NewMultiOutput(outputs ...Output) *MultiOutput {
	return &MultiOutput{outputs: outputs}
}

// WriteReceipt 写入所有输出，单个失败不影响其他输出
func (m *MultiOutput) WriteReceipt(receipt *models.ParsedReceipt) error {
	var errs []error
	for _, o := range m.outputs {
		if err := o.WriteReceipt(receipt); err != nil {
			errs = append(errs, err)
		}
	}
	return joinErrors("写入回执", errs)
}

// WriteIssuance 写入所有输出
func (m *MultiOutput) WriteIssuance(token *models.IssuedToken) error {
	var errs []error
	for _, o := range m.outputs {
		if err := o.WriteIssuance(token); err != nil {
			errs = append(errs, err)
		}
	}
	return joinErrors("写入发行记录", errs)
}

// Close 关闭所有输出
func (m *MultiOutput) Close() error {
	var errs []error
	for _, o := range m.outputs {
		if err := o.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return joinErrors("关闭输出", errs)
}

func joinErrors(op string, errs []error) error {
	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	default:
		return fmt.Errorf("%s时发生%d个错误: %v", op, len(errs), errs)
	}
}

// NoopOutput 丢弃所有记录
type NoopOutput struct{}

// NewNoopOutput 创建空输出器
func NewNoopOutput() *NoopOutput {
	return &NoopOutput{}
}

func (NoopOutput) WriteReceipt(*models.ParsedReceipt) error { return nil }
func (NoopOutput) WriteIssuance(*models.IssuedToken) error  { return nil }
func (NoopOutput) Close() error                             { return nil }

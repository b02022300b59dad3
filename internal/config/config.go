package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"esdtscan/internal/codec"
	"esdtscan/internal/errors"
	"esdtscan/internal/logging"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀，例如 ESDTSCAN_GATEWAY_URL
const EnvPrefix = "ESDTSCAN"

// ESDTSystemSCAddress ESDT系统合约地址
const ESDTSystemSCAddress = "erd1qqqqqqqqqqqqqqqpqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqzllls8a5w6u"

// 输出类型
const (
	OutputFile       = "file"
	OutputKafka      = "kafka"
	OutputKafkaAsync = "kafka_async"
	OutputPostgres   = "postgres"
	OutputNone       = "none"
)

// Config 主配置
type Config struct {
	Gateway     *GatewayConfig     `mapstructure:"gateway"`
	Interpreter *InterpreterConfig `mapstructure:"interpreter"`
	Processor   *ProcessorConfig   `mapstructure:"processor"`
	Store       *StoreConfig       `mapstructure:"store"`
	Output      *OutputConfig      `mapstructure:"output"`
	API         *APIConfig         `mapstructure:"api"`
	Logging     *logging.LogConfig `mapstructure:"logging"`
}

// GatewayConfig 网关配置
type GatewayConfig struct {
	URL        string        `mapstructure:"url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	RetryLimit int           `mapstructure:"retry_limit"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
	UserAgent  string        `mapstructure:"user_agent"`
}

// InterpreterConfig 解释器配置
type InterpreterConfig struct {
	SystemSCAddress  string `mapstructure:"system_sc_address"`
	StrictValidation bool   `mapstructure:"strict_validation"`
}

// ProcessorConfig 处理器配置
type ProcessorConfig struct {
	Workers   int           `mapstructure:"workers"`
	QueueSize int           `mapstructure:"queue_size"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// StoreConfig 本地存储配置
type StoreConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Path    string        `mapstructure:"path"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// KafkaConfig Kafka配置
type KafkaConfig struct {
	Brokers  []string          `mapstructure:"brokers"`
	Topics   map[string]string `mapstructure:"topics"`
	ClientID string            `mapstructure:"client_id"`
}

// PostgresConfig PostgreSQL配置
type PostgresConfig struct {
	DSN string `mapstructure:"dsn"`
}

// OutputConfig 输出配置，Format可用逗号组合多个输出
type OutputConfig struct {
	Format     string          `mapstructure:"format"`
	Directory  string          `mapstructure:"directory"`
	FileFormat string          `mapstructure:"file_format"`
	Kafka      *KafkaConfig    `mapstructure:"kafka"`
	Postgres   *PostgresConfig `mapstructure:"postgres"`
}

// Formats 拆分后的输出类型
func (o *OutputConfig) Formats() []string {
	var formats []string
	for _, f := range strings.Split(o.Format, ",") {
		f = strings.TrimSpace(f)
		if f != "" {
			formats = append(formats, f)
		}
	}
	return formats
}

// APIConfig HTTP API配置
type APIConfig struct {
	Host          string        `mapstructure:"host"`
	Port          int           `mapstructure:"port"`
	Mode          string        `mapstructure:"mode"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	LogBufferSize int           `mapstructure:"log_buffer_size"`
}

// Addr 监听地址
func (a *APIConfig) Addr() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

// LoadDotEnv 加载.env文件，文件不存在时忽略
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("加载%s失败: %w", path, err)
	}
	return nil
}

// LoadConfig 加载配置：默认值 < YAML文件 < ESDTSCAN_*环境变量
//
// configPath为空时只使用默认值和环境变量。
func LoadConfig(configPath string) (*Config, error) {
	v := newViper()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	config := GetDefaultConfig()
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	return config, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv只对已知的键生效
	defaults := GetDefaultConfig()
	v.SetDefault("gateway.url", defaults.Gateway.URL)
	v.SetDefault("gateway.timeout", defaults.Gateway.Timeout)
	v.SetDefault("gateway.retry_limit", defaults.Gateway.RetryLimit)
	v.SetDefault("gateway.retry_delay", defaults.Gateway.RetryDelay)
	v.SetDefault("gateway.user_agent", defaults.Gateway.UserAgent)
	v.SetDefault("interpreter.system_sc_address", defaults.Interpreter.SystemSCAddress)
	v.SetDefault("interpreter.strict_validation", defaults.Interpreter.StrictValidation)
	v.SetDefault("processor.workers", defaults.Processor.Workers)
	v.SetDefault("processor.queue_size", defaults.Processor.QueueSize)
	v.SetDefault("processor.timeout", defaults.Processor.Timeout)
	v.SetDefault("store.enabled", defaults.Store.Enabled)
	v.SetDefault("store.path", defaults.Store.Path)
	v.SetDefault("store.timeout", defaults.Store.Timeout)
	v.SetDefault("output.format", defaults.Output.Format)
	v.SetDefault("output.directory", defaults.Output.Directory)
	v.SetDefault("output.file_format", defaults.Output.FileFormat)
	v.SetDefault("output.kafka.brokers", defaults.Output.Kafka.Brokers)
	v.SetDefault("output.kafka.topics", defaults.Output.Kafka.Topics)
	v.SetDefault("output.kafka.client_id", defaults.Output.Kafka.ClientID)
	v.SetDefault("output.postgres.dsn", defaults.Output.Postgres.DSN)
	v.SetDefault("api.host", defaults.API.Host)
	v.SetDefault("api.port", defaults.API.Port)
	v.SetDefault("api.mode", defaults.API.Mode)
	v.SetDefault("api.read_timeout", defaults.API.ReadTimeout)
	v.SetDefault("api.write_timeout", defaults.API.WriteTimeout)
	v.SetDefault("api.log_buffer_size", defaults.API.LogBufferSize)
	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("logging.format", defaults.Logging.Format)
	v.SetDefault("logging.output", defaults.Logging.Output)
	v.SetDefault("logging.add_source", defaults.Logging.AddSource)
	v.SetDefault("logging.time_format", defaults.Logging.TimeFormat)

	return v
}

// GetDefaultConfig 获取默认配置
func GetDefaultConfig() *Config {
	return &Config{
		Gateway: &GatewayConfig{
			URL:        "https://gateway.multiversx.com",
			Timeout:    30 * time.Second,
			RetryLimit: 3,
			RetryDelay: time.Second,
			UserAgent:  "esdtscan/1.0",
		},
		Interpreter: &InterpreterConfig{
			SystemSCAddress:  ESDTSystemSCAddress,
			StrictValidation: false,
		},
		Processor: &ProcessorConfig{
			Workers:   4,
			QueueSize: 100,
			Timeout:   time.Minute,
		},
		Store: &StoreConfig{
			Enabled: true,
			Path:    "./data/esdtscan.db",
			Timeout: time.Second,
		},
		Output: &OutputConfig{
			Format:     OutputFile,
			Directory:  "./outputs",
			FileFormat: "json",
			Kafka: &KafkaConfig{
				Brokers: []string{"localhost:9092"},
				Topics: map[string]string{
					"receipts":  "esdt_receipts",
					"issuances": "esdt_issuances",
				},
				ClientID: "esdtscan",
			},
			Postgres: &PostgresConfig{},
		},
		API: &APIConfig{
			Host:          "0.0.0.0",
			Port:          8080,
			Mode:          "release",
			ReadTimeout:   15 * time.Second,
			WriteTimeout:  15 * time.Second,
			LogBufferSize: 1000,
		},
		Logging: logging.DefaultLogConfig(),
	}
}

// Validate 检查配置，汇总所有问题后返回一个CONFIG_INVALID错误
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...interface{}) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if c.Gateway == nil || c.Interpreter == nil || c.Processor == nil || c.Store == nil ||
		c.Output == nil || c.API == nil || c.Logging == nil {
		return errors.NewScanError(errors.ErrorTypeConfig, errors.SeverityCritical,
			"CONFIG_INVALID", "配置缺少必要的段")
	}

	if c.Gateway.URL != "" {
		u, err := url.Parse(c.Gateway.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			add("gateway.url无效: %q", c.Gateway.URL)
		}
	}
	if c.Gateway.Timeout <= 0 {
		add("gateway.timeout必须大于0")
	}
	if c.Gateway.RetryLimit < 0 {
		add("gateway.retry_limit不能为负")
	}

	if c.Interpreter.SystemSCAddress != "" && !codec.IsValidAddress(c.Interpreter.SystemSCAddress) {
		add("interpreter.system_sc_address不是合法地址: %q", c.Interpreter.SystemSCAddress)
	}

	if c.Processor.Workers < 1 {
		add("processor.workers必须至少为1")
	}
	if c.Processor.QueueSize < 0 {
		add("processor.queue_size不能为负")
	}

	if c.Store.Enabled && c.Store.Path == "" {
		add("store.path不能为空")
	}

	for _, format := range c.Output.Formats() {
		switch format {
		case OutputFile:
			if c.Output.Directory == "" {
				add("output.directory不能为空")
			}
			if c.Output.FileFormat != "json" && c.Output.FileFormat != "cbor" {
				add("不支持的文件格式: %s", c.Output.FileFormat)
			}
		case OutputKafka, OutputKafkaAsync:
			if c.Output.Kafka == nil || len(c.Output.Kafka.Brokers) == 0 {
				add("output.kafka.brokers不能为空")
			}
		case OutputPostgres:
			if c.Output.Postgres == nil || c.Output.Postgres.DSN == "" {
				add("output.postgres.dsn不能为空")
			}
		case OutputNone:
		default:
			add("不支持的输出类型: %s", format)
		}
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		add("api.port超出范围: %d", c.API.Port)
	}
	switch c.API.Mode {
	case "debug", "release", "test":
	default:
		add("api.mode无效: %s", c.API.Mode)
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		add("logging.level无效: %s", c.Logging.Level)
	}

	if len(problems) == 0 {
		return nil
	}
	return errors.NewScanError(errors.ErrorTypeConfig, errors.SeverityCritical,
		"CONFIG_INVALID", strings.Join(problems, "; "))
}

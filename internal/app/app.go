package app

import (
	"context"
	"fmt"
	"io"

	"esdtscan/internal/config"
	"esdtscan/internal/gateway"
	"esdtscan/internal/interpreter"
	"esdtscan/internal/issuance"
	"esdtscan/internal/logging"
	"esdtscan/internal/output"
	"esdtscan/internal/processor"
	"esdtscan/internal/shutdown"
	"esdtscan/internal/store"
	"esdtscan/internal/validation"

	"github.com/sirupsen/logrus"
)

// Options 组装选项
type Options struct {
	// NoGateway 为true时不创建网关客户端，只能解释本地文件
	NoGateway bool
	// NoOutput 为true时忽略输出配置
	NoOutput bool
	// Refresh 为true时忽略本地缓存
	Refresh bool
}

// App 组装好的各个组件
type App struct {
	Config    *config.Config
	Logger    *logrus.Logger
	Validator *validation.Validator
	Store     *store.Store
	Gateway   *gateway.Client
	Output    output.Output
	Processor *processor.Processor

	logCloser io.Closer
}

// Load 加载.env与配置文件并校验
func Load(configPath, envPath string) (*config.Config, error) {
	if err := config.LoadDotEnv(envPath); err != nil {
		return nil, err
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("加载配置失败: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// New 按配置创建所有组件，失败时已创建的组件会被关闭
func New(cfg *config.Config, opts Options) (*App, error) {
	logger, logCloser, err := logging.NewLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("创建日志器失败: %w", err)
	}

	a := &App{Config: cfg, Logger: logger, logCloser: logCloser}
	if err := a.build(opts); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(opts Options) (err error) {
	cfg, logger := a.Config, a.Logger

	a.Validator = validation.NewValidator(logger, cfg.Interpreter.StrictValidation)

	if cfg.Store.Enabled {
		if a.Store, err = store.NewStore(cfg.Store, logger); err != nil {
			return err
		}
	}

	if !opts.NoGateway {
		if a.Gateway, err = gateway.NewClient(cfg.Gateway, logger); err != nil {
			return err
		}
	}

	if opts.NoOutput {
		a.Output = output.NewNoopOutput()
	} else if a.Output, err = output.NewOutput(cfg.Output, logger); err != nil {
		return fmt.Errorf("创建输出器失败: %w", err)
	}

	procOpts := processor.Options{
		Interpreter: interpreter.New(issuance.NewClassifier(issuance.Options{
			SystemSCAddress: cfg.Interpreter.SystemSCAddress,
		})),
		Validator: a.Validator,
		Output:    a.Output,
		QueueSize: cfg.Processor.QueueSize,
		Refresh:   opts.Refresh,
	}
	// 接口字段只在非nil时赋值
	if a.Gateway != nil {
		procOpts.Fetcher = a.Gateway
	}
	if a.Store != nil {
		procOpts.Store = a.Store
	}
	a.Processor = processor.NewProcessor(procOpts, logger)

	logger.WithFields(logrus.Fields{
		"gateway": cfg.Gateway.URL,
		"store":   cfg.Store.Enabled,
		"output":  cfg.Output.Format,
	}).Debug("组件初始化完成")
	return nil
}

// RegisterShutdown 注册各组件的停机处理
func (a *App) RegisterShutdown(gs *shutdown.GracefulShutdown) {
	if a.Processor != nil {
		gs.Register("outputs", shutdown.OrderFlushOutputs, func(context.Context) error {
			return a.Processor.Close()
		})
	}
	if a.Store != nil {
		gs.Register("store", shutdown.OrderCloseStore, func(context.Context) error {
			return a.Store.Close()
		})
	}
	if a.logCloser != nil {
		gs.Register("log file", shutdown.OrderCleanup, func(context.Context) error {
			return a.logCloser.Close()
		})
	}
}

// Close 依次关闭输出、存储和日志文件
func (a *App) Close() error {
	var first error
	keep := func(err error) {
		if err != nil && first == nil {
			first = err
		}
	}

	if a.Processor != nil {
		keep(a.Processor.Close())
	} else if a.Output != nil {
		keep(a.Output.Close())
	}
	if a.Store != nil {
		keep(a.Store.Close())
	}
	if a.logCloser != nil {
		keep(a.logCloser.Close())
	}
	return first
}

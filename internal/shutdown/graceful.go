package shutdown

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
)

// 停机顺序，数字越小越早执行
const (
	OrderStopAPI       = 10 // 停止接受HTTP请求
	OrderDrainRequests = 20 // 等待进行中的回执处理
	OrderFlushOutputs  = 30 // 刷新Kafka/文件/数据库输出
	OrderCloseStore    = 40 // 关闭本地存储
	OrderCleanup       = 50 // 日志文件等其他资源
)

// DefaultTimeout 默认停机超时
const DefaultTimeout = 30 * time.Second

// Hook 停机处理函数
type Hook struct {
	Name  string
	Order int
	Func  func(ctx context.Context) error
}

// GracefulShutdown 优雅停机管理器
type GracefulShutdown struct {
	logger  *logrus.Logger
	timeout time.Duration

	mu    sync.Mutex
	hooks []Hook

	signals chan os.Signal
	ctx     context.Context
	cancel  context.CancelFunc
	once    sync.Once
	done    chan struct{}
	errs    []error
}

// NewGracefulShutdown 创建优雅停机管理器
func NewGracefulShutdown(timeout time.Duration, logger *logrus.Logger) *GracefulShutdown {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &GracefulShutdown{
		logger:  logger,
		timeout: timeout,
		signals: make(chan os.Signal, 1),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

// Register 注册停机处理函数，相同顺序按注册先后执行
func (gs *GracefulShutdown) Register(name string, order int, fn func(ctx context.Context) error) {
	gs.mu.Lock()
	defer gs.mu.Unlock()

	gs.hooks = append(gs.hooks, Hook{Name: name, Order: order, Func: fn})
	gs.logger.Debugf("注册停机处理函数: %s (order: %d)", name, order)
}

// Start 监听SIGINT/SIGTERM，收到信号后执行停机
func (gs *GracefulShutdown) Start() {
	signal.Notify(gs.signals, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-gs.signals:
			gs.logger.Infof("收到停机信号: %v", sig)
			gs.Shutdown()
		case <-gs.done:
		}
	}()
	gs.logger.Debug("优雅停机管理器已启动，监听信号: SIGINT, SIGTERM")
}

// Context 停机开始时取消的上下文，用于通知长任务退出
func (gs *GracefulShutdown) Context() context.Context {
	return gs.ctx
}

// Done 停机完成后关闭
func (gs *GracefulShutdown) Done() <-chan struct{} {
	return gs.done
}

// Wait 等待停机完成，返回各处理函数的错误
func (gs *GracefulShutdown) Wait() error {
	<-gs.done
	return gs.err()
}

// Shutdown 执行停机，重复调用只执行一次
func (gs *GracefulShutdown) Shutdown() {
	gs.once.Do(func() {
		signal.Stop(gs.signals)
		gs.cancel()
		gs.run()
		close(gs.done)
	})
}

// run 按顺序执行处理函数，超时后跳过剩余的
func (gs *GracefulShutdown) run() {
	gs.logger.Info("开始优雅停机流程...")

	ctx, cancel := context.WithTimeout(context.Background(), gs.timeout)
	defer cancel()

	gs.mu.Lock()
	hooks := make([]Hook, len(gs.hooks))
	copy(hooks, gs.hooks)
	gs.mu.Unlock()

	sort.SliceStable(hooks, func(i, j int) bool {
		return hooks[i].Order < hooks[j].Order
	})

	var errs []error
	for _, hook := range hooks {
		if ctx.Err() != nil {
			gs.logger.Warnf("停机超时，跳过: %s", hook.Name)
			errs = append(errs, fmt.Errorf("%s: %w", hook.Name, ctx.Err()))
			continue
		}

		start := time.Now()
		err := hook.Func(ctx)
		entry := gs.logger.WithFields(logrus.Fields{
			"hook":     hook.Name,
			"duration": time.Since(start).String(),
		})
		if err != nil {
			entry.WithError(err).Error("停机处理失败")
			errs = append(errs, fmt.Errorf("%s: %w", hook.Name, err))
			continue
		}
		entry.Debug("停机处理完成")
	}

	gs.mu.Lock()
	gs.errs = errs
	gs.mu.Unlock()

	if len(errs) > 0 {
		gs.logger.Errorf("停机过程中发生 %d 个错误", len(errs))
		return
	}
	gs.logger.Info("优雅停机流程完成")
}

func (gs *GracefulShutdown) err() error {
	gs.mu.Lock()
	defer gs.mu.Unlock()

	return errors.Join(gs.errs...)
}

// Registered 已注册的处理函数名
func (gs *GracefulShutdown) Registered() []string {
	gs.mu.Lock()
	defer gs.mu.Unlock()

	names := make([]string, len(gs.hooks))
	for i, h := range gs.hooks {
		names[i] = h.Name
	}
	return names
}

// Package app 提供应用程序生命周期管理.
//
// 编排服务没有传统意义上的请求入口，进程由若干后台服务器组成：
// 消息消费者、卡死步骤巡检和指标 HTTP 端点。Application 统一
// 启动它们、监听系统信号并按优雅关闭超时逐个停止.
package app

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"

	"github.com/Tsukikage7/payment-saga/logger"
)

// ErrRunning 应用正在运行.
var ErrRunning = errors.New("app: 应用正在运行")

// Server 后台服务器接口.
//
// Start 阻塞运行直到出错或 ctx 取消；Stop 触发优雅退出.
type Server interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Name() string
}

// Hook 生命周期钩子函数.
type Hook func(ctx context.Context) error

// Hooks 生命周期钩子集合.
type Hooks struct {
	BeforeStart []Hook
	AfterStart  []Hook
	BeforeStop  []Hook
	AfterStop   []Hook
}

func runHooks(ctx context.Context, hooks []Hook) error {
	for _, hook := range hooks {
		if err := hook(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Application 应用程序，管理多个服务器的生命周期.
type Application struct {
	opts    *options
	servers []Server
	ctx     context.Context
	cancel  context.CancelFunc
	mu      sync.Mutex
	running bool
}

// New 创建应用程序.
func New(opts ...Option) *Application {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Application{
		opts:   o,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Use 注册服务器.
func (a *Application) Use(servers ...Server) *Application {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.servers = append(a.servers, servers...)
	return a
}

// Run 运行应用程序，阻塞直到收到关闭信号或调用 Stop.
func (a *Application) Run() error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return ErrRunning
	}
	a.running = true
	a.mu.Unlock()

	if err := runHooks(a.ctx, a.opts.hooks.BeforeStart); err != nil {
		return err
	}

	a.opts.logger.With(
		logger.String("name", a.opts.name),
		logger.String("version", a.opts.version),
	).Info("[App] 应用启动中")

	a.start()

	if err := runHooks(a.ctx, a.opts.hooks.AfterStart); err != nil {
		a.opts.logger.With(logger.Err(err)).Error("[App] 启动后钩子执行失败")
	}

	return a.waitForShutdown()
}

// Stop 主动停止应用程序.
func (a *Application) Stop() {
	a.cancel()
}

// Context 获取应用上下文.
func (a *Application) Context() context.Context {
	return a.ctx
}

func (a *Application) start() {
	if len(a.servers) == 0 {
		a.opts.logger.Warn("[App] 没有注册任何服务器")
		return
	}

	for _, srv := range a.servers {
		go func(s Server) {
			a.opts.logger.With(logger.String("server", s.Name())).Info("[App] 启动服务器")
			if err := s.Start(a.ctx); err != nil {
				a.opts.logger.With(
					logger.String("server", s.Name()),
					logger.Err(err),
				).Error("[App] 服务器退出")
				a.cancel()
			}
		}(srv)
	}
}

func (a *Application) waitForShutdown() error {
	signals := a.opts.signals
	if len(signals) == 0 {
		signals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, signals...)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		a.opts.logger.With(logger.String("signal", sig.String())).Info("[App] 收到信号")
	case <-a.ctx.Done():
		a.opts.logger.Info("[App] 上下文已取消")
	}

	return a.shutdown()
}

func (a *Application) shutdown() error {
	a.opts.logger.With(
		logger.Duration("timeout", a.opts.gracefulTimeout),
	).Info("[App] 开始优雅关闭")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.opts.gracefulTimeout)
	defer cancel()

	if err := runHooks(shutdownCtx, a.opts.hooks.BeforeStop); err != nil {
		a.opts.logger.With(logger.Err(err)).Error("[App] 停止前钩子执行失败")
	}

	var wg sync.WaitGroup
	for _, srv := range a.servers {
		wg.Add(1)
		go func(s Server) {
			defer wg.Done()
			a.opts.logger.With(logger.String("server", s.Name())).Info("[App] 停止服务器")
			if err := s.Stop(shutdownCtx); err != nil {
				a.opts.logger.With(
					logger.String("server", s.Name()),
					logger.Err(err),
				).Error("[App] 服务器停止失败")
			}
		}(srv)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		a.opts.logger.Info("[App] 所有服务器已停止")
	case <-shutdownCtx.Done():
		a.opts.logger.Warn("[App] 关闭超时")
	}

	a.runCleanups(shutdownCtx)

	if err := runHooks(context.Background(), a.opts.hooks.AfterStop); err != nil {
		a.opts.logger.With(logger.Err(err)).Error("[App] 停止后钩子执行失败")
	}

	a.mu.Lock()
	a.running = false
	a.mu.Unlock()

	a.opts.logger.Info("[App] 应用已关闭")
	return nil
}

func (a *Application) runCleanups(ctx context.Context) {
	if len(a.opts.cleanups) == 0 {
		return
	}

	cleanups := make([]Cleanup, len(a.opts.cleanups))
	copy(cleanups, a.opts.cleanups)
	sort.Slice(cleanups, func(i, j int) bool {
		return cleanups[i].Priority < cleanups[j].Priority
	})

	for _, c := range cleanups {
		if err := c.Fn(ctx); err != nil {
			a.opts.logger.With(
				logger.String("cleanup", c.Name),
				logger.Err(err),
			).Error("[App] 清理任务失败")
		} else {
			a.opts.logger.With(logger.String("cleanup", c.Name)).Debug("[App] 清理任务完成")
		}
	}
}

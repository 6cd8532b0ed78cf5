package orchestrator

import (
	"time"

	"github.com/Tsukikage7/payment-saga/logger"
	"github.com/Tsukikage7/payment-saga/metrics"
	"github.com/Tsukikage7/payment-saga/retry"
)

// 默认配置值.
const (
	DefaultConflictRetries = 3
	DefaultRetryBaseDelay  = time.Second
)

// Option 编排器配置选项.
type Option func(*Orchestrator)

// WithLogger 设置日志记录器.
func WithLogger(log logger.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = log
	}
}

// WithMetrics 设置指标收集器.
func WithMetrics(collector metrics.Collector) Option {
	return func(o *Orchestrator) {
		o.metrics = collector
	}
}

// WithConflictRetries 设置乐观锁冲突的最大重试次数.
func WithConflictRetries(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.conflictRetries = n
		}
	}
}

// WithRetryBackoff 设置步骤重试的退避策略与基础等待时间.
func WithRetryBackoff(backoff retry.BackoffFunc, baseDelay time.Duration) Option {
	return func(o *Orchestrator) {
		if backoff != nil {
			o.backoff = backoff
		}
		if baseDelay > 0 {
			o.retryBaseDelay = baseDelay
		}
	}
}

// WithScheduler 设置延迟调度函数，测试中可替换为同步执行.
func WithScheduler(schedule func(delay time.Duration, fn func())) Option {
	return func(o *Orchestrator) {
		if schedule != nil {
			o.schedule = schedule
		}
	}
}

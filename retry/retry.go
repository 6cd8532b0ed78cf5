// Package retry 提供重试机制和退避策略.
package retry

import "time"

// 默认配置值.
const (
	DefaultMaxAttempts = 3
	DefaultDelay       = 100 * time.Millisecond
)

// Config 重试配置.
type Config struct {
	MaxAttempts int           `json:"max_attempts" yaml:"max_attempts" mapstructure:"max_attempts"`
	Delay       time.Duration `json:"delay" yaml:"delay" mapstructure:"delay"`
	Backoff     BackoffFunc   `json:"-" yaml:"-" mapstructure:"-"`
}

// BackoffFunc 计算第 n 次重试的等待时间.
type BackoffFunc func(attempt int, delay time.Duration) time.Duration

// DefaultConfig 返回默认配置.
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts: DefaultMaxAttempts,
		Delay:       DefaultDelay,
		Backoff:     FixedBackoff,
	}
}

// FixedBackoff 固定退避策略.
func FixedBackoff(_ int, delay time.Duration) time.Duration {
	return delay
}

// ExponentialBackoff 指数退避策略.
func ExponentialBackoff(attempt int, delay time.Duration) time.Duration {
	return delay * time.Duration(1<<uint(attempt))
}

// LinearBackoff 线性退避策略.
func LinearBackoff(attempt int, delay time.Duration) time.Duration {
	return delay * time.Duration(attempt+1)
}

// BackoffByName 根据名称返回退避策略，未知名称返回固定退避.
func BackoffByName(name string) BackoffFunc {
	switch name {
	case "exponential":
		return ExponentialBackoff
	case "linear":
		return LinearBackoff
	default:
		return FixedBackoff
	}
}

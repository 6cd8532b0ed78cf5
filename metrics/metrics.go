// Package metrics 提供 Prometheus 指标收集功能.
package metrics

import (
	"net/http"
	"time"
)

// Collector 指标收集器接口.
type Collector interface {
	// Saga 生命周期指标
	RecordSagaStarted(template string)
	RecordSagaCompleted(template string, duration time.Duration)
	RecordSagaCompensated(template string)

	// 步骤指标
	RecordStepExecuted(stepType, outcome string, duration time.Duration)
	RecordStepRetry(stepType string)

	// 编排指标
	RecordVersionConflict(operation string)
	RecordDeadLetter(topic string)

	// Handler
	GetHandler() http.Handler
	GetPath() string
}

// Config 指标监控配置.
type Config struct {
	// Path 指标暴露路径，默认 /metrics
	Path string `json:"path" yaml:"path" mapstructure:"path"`
	// Namespace 指标命名空间
	Namespace string `json:"namespace" yaml:"namespace" mapstructure:"namespace"`
}

// DefaultConfig 返回默认配置.
func DefaultConfig() *Config {
	return &Config{
		Path:      "/metrics",
		Namespace: "payment_saga",
	}
}

// NewMetrics 创建指标收集器.
func NewMetrics(cfg *Config) (*PrometheusCollector, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}
	return NewPrometheus(cfg)
}

// MustNewMetrics 创建指标收集器，失败时 panic.
func MustNewMetrics(cfg *Config) *PrometheusCollector {
	c, err := NewMetrics(cfg)
	if err != nil {
		panic(err)
	}
	return c
}

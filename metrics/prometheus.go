package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusCollector Prometheus 指标收集器实现.
type PrometheusCollector struct {
	config *Config

	sagasStarted     *prometheus.CounterVec
	sagasCompleted   *prometheus.CounterVec
	sagasCompensated *prometheus.CounterVec
	sagaDuration     *prometheus.HistogramVec

	stepsExecuted *prometheus.CounterVec
	stepDuration  *prometheus.HistogramVec
	stepRetries   *prometheus.CounterVec

	versionConflicts *prometheus.CounterVec
	deadLetters      *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewPrometheus 创建 Prometheus 指标收集器.
func NewPrometheus(cfg *Config) (*PrometheusCollector, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}

	namespace := cfg.Namespace
	if namespace == "" {
		namespace = "payment_saga"
	}

	// 创建新的注册表，避免与默认注册表冲突
	registry := prometheus.NewRegistry()

	c := &PrometheusCollector{config: cfg, registry: registry}

	c.sagasStarted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "saga",
			Name:      "started_total",
			Help:      "Total number of sagas started",
		},
		[]string{"template"},
	)

	c.sagasCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "saga",
			Name:      "completed_total",
			Help:      "Total number of sagas completed successfully",
		},
		[]string{"template"},
	)

	c.sagasCompensated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "saga",
			Name:      "compensated_total",
			Help:      "Total number of sagas rolled back",
		},
		[]string{"template"},
	)

	c.sagaDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "saga",
			Name:      "duration_seconds",
			Help:      "Saga duration from start to completion in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
		},
		[]string{"template"},
	)

	c.stepsExecuted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "step",
			Name:      "executed_total",
			Help:      "Total number of step executions by outcome",
		},
		[]string{"step_type", "outcome"},
	)

	c.stepDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "step",
			Name:      "duration_seconds",
			Help:      "Step execution duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"step_type"},
	)

	c.stepRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "step",
			Name:      "retries_total",
			Help:      "Total number of step retries",
		},
		[]string{"step_type"},
	)

	c.versionConflicts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "version_conflicts_total",
			Help:      "Total number of optimistic lock conflicts",
		},
		[]string{"operation"},
	)

	c.deadLetters = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "consumer",
			Name:      "dead_letters_total",
			Help:      "Total number of events routed to the dead letter topic",
		},
		[]string{"topic"},
	)

	registry.MustRegister(
		c.sagasStarted,
		c.sagasCompleted,
		c.sagasCompensated,
		c.sagaDuration,
		c.stepsExecuted,
		c.stepDuration,
		c.stepRetries,
		c.versionConflicts,
		c.deadLetters,
	)

	return c, nil
}

// RecordSagaStarted 记录 Saga 启动.
func (c *PrometheusCollector) RecordSagaStarted(template string) {
	c.sagasStarted.WithLabelValues(template).Inc()
}

// RecordSagaCompleted 记录 Saga 成功完成.
func (c *PrometheusCollector) RecordSagaCompleted(template string, duration time.Duration) {
	c.sagasCompleted.WithLabelValues(template).Inc()
	c.sagaDuration.WithLabelValues(template).Observe(duration.Seconds())
}

// RecordSagaCompensated 记录 Saga 回滚.
func (c *PrometheusCollector) RecordSagaCompensated(template string) {
	c.sagasCompensated.WithLabelValues(template).Inc()
}

// RecordStepExecuted 记录步骤执行结果.
func (c *PrometheusCollector) RecordStepExecuted(stepType, outcome string, duration time.Duration) {
	c.stepsExecuted.WithLabelValues(stepType, outcome).Inc()
	c.stepDuration.WithLabelValues(stepType).Observe(duration.Seconds())
}

// RecordStepRetry 记录步骤重试.
func (c *PrometheusCollector) RecordStepRetry(stepType string) {
	c.stepRetries.WithLabelValues(stepType).Inc()
}

// RecordVersionConflict 记录乐观锁冲突.
func (c *PrometheusCollector) RecordVersionConflict(operation string) {
	c.versionConflicts.WithLabelValues(operation).Inc()
}

// RecordDeadLetter 记录死信.
func (c *PrometheusCollector) RecordDeadLetter(topic string) {
	c.deadLetters.WithLabelValues(topic).Inc()
}

// GetHandler 返回指标暴露的 HTTP handler.
func (c *PrometheusCollector) GetHandler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// GetPath 返回指标暴露路径.
func (c *PrometheusCollector) GetPath() string {
	if c.config.Path == "" {
		return "/metrics"
	}
	return c.config.Path
}

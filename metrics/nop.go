package metrics

import (
	"net/http"
	"time"
)

// NopCollector 空指标收集器，用于测试或关闭监控的场景.
type NopCollector struct{}

// Nop 返回空指标收集器.
func Nop() *NopCollector { return &NopCollector{} }

func (*NopCollector) RecordSagaStarted(string)                        {}
func (*NopCollector) RecordSagaCompleted(string, time.Duration)       {}
func (*NopCollector) RecordSagaCompensated(string)                    {}
func (*NopCollector) RecordStepExecuted(string, string, time.Duration) {}
func (*NopCollector) RecordStepRetry(string)                          {}
func (*NopCollector) RecordVersionConflict(string)                    {}
func (*NopCollector) RecordDeadLetter(string)                         {}

// GetHandler 返回 404 handler.
func (*NopCollector) GetHandler() http.Handler {
	return http.NotFoundHandler()
}

// GetPath 返回指标暴露路径.
func (*NopCollector) GetPath() string { return "/metrics" }

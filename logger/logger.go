// Package logger 提供结构化日志记录功能.
package logger

import "context"

// 日志级别常量.
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// 输出格式常量.
const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// contextKey context 键类型.
type contextKey string

// 预定义的 context key，用于存储链路信息.
const (
	// CorrelationIDKey 用于在 context 中存储 correlationId.
	CorrelationIDKey contextKey = "logger:correlationId"
	// SagaIDKey 用于在 context 中存储 sagaId.
	SagaIDKey contextKey = "logger:sagaId"
)

// Field 表示一个日志字段.
type Field struct {
	Key   string
	Value any
}

// Logger 日志记录器接口.
type Logger interface {
	// 基础日志方法
	Debug(args ...any)
	Debugf(format string, args ...any)
	Info(args ...any)
	Infof(format string, args ...any)
	Warn(args ...any)
	Warnf(format string, args ...any)
	Error(args ...any)
	Errorf(format string, args ...any)
	Fatal(args ...any)
	Fatalf(format string, args ...any)

	// 结构化日志方法
	With(fields ...Field) Logger
	WithContext(ctx context.Context) Logger

	// 生命周期管理
	Sync() error
}

// ContextWithCorrelationID 将 correlationId 注入到 context.
func ContextWithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, CorrelationIDKey, correlationID)
}

// ContextWithSagaID 将 sagaId 注入到 context.
func ContextWithSagaID(ctx context.Context, sagaID string) context.Context {
	return context.WithValue(ctx, SagaIDKey, sagaID)
}

// NewLogger 创建 logger 实例.
func NewLogger(config *Config) (Logger, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return newZapLogger(config)
}

// MustNewLogger 创建 logger 实例，失败时 panic.
func MustNewLogger(config *Config) Logger {
	log, err := NewLogger(config)
	if err != nil {
		panic(err)
	}
	return log
}

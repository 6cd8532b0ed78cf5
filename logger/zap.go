package logger

import (
	"context"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// zapLogger 基于 zap 的 Logger 实现.
type zapLogger struct {
	sugar *zap.SugaredLogger
	base  *zap.Logger
}

// newZapLogger 创建 zap logger.
func newZapLogger(config *Config) (Logger, error) {
	level := zapcore.InfoLevel
	switch config.Level {
	case LevelDebug:
		level = zapcore.DebugLevel
	case LevelInfo:
		level = zapcore.InfoLevel
	case LevelWarn:
		level = zapcore.WarnLevel
	case LevelError:
		level = zapcore.ErrorLevel
	}

	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	zapCfg.EncoderConfig.TimeKey = "time"
	zapCfg.EncoderConfig.EncodeTime = zapcore.RFC3339NanoTimeEncoder

	if config.Format == FormatConsole {
		zapCfg.Encoding = "console"
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	opts := []zap.Option{}
	if config.EnableCaller {
		opts = append(opts, zap.AddCaller(), zap.AddCallerSkip(1))
	} else {
		zapCfg.DisableCaller = true
	}

	base, err := zapCfg.Build(opts...)
	if err != nil {
		return nil, err
	}

	if config.ServiceName != "" {
		base = base.With(zap.String("service", config.ServiceName))
	}

	return &zapLogger{base: base, sugar: base.Sugar()}, nil
}

func (z *zapLogger) Debug(args ...any)                 { z.sugar.Debug(args...) }
func (z *zapLogger) Debugf(format string, args ...any) { z.sugar.Debugf(format, args...) }
func (z *zapLogger) Info(args ...any)                  { z.sugar.Info(args...) }
func (z *zapLogger) Infof(format string, args ...any)  { z.sugar.Infof(format, args...) }
func (z *zapLogger) Warn(args ...any)                  { z.sugar.Warn(args...) }
func (z *zapLogger) Warnf(format string, args ...any)  { z.sugar.Warnf(format, args...) }
func (z *zapLogger) Error(args ...any)                 { z.sugar.Error(args...) }
func (z *zapLogger) Errorf(format string, args ...any) { z.sugar.Errorf(format, args...) }
func (z *zapLogger) Fatal(args ...any)                 { z.sugar.Fatal(args...) }
func (z *zapLogger) Fatalf(format string, args ...any) { z.sugar.Fatalf(format, args...) }

// With 附加结构化字段.
func (z *zapLogger) With(fields ...Field) Logger {
	if len(fields) == 0 {
		return z
	}

	zapFields := make([]zap.Field, 0, len(fields))
	for _, f := range fields {
		zapFields = append(zapFields, toZapField(f))
	}

	base := z.base.With(zapFields...)
	return &zapLogger{base: base, sugar: base.Sugar()}
}

// WithContext 从 context 提取链路信息并附加为字段.
func (z *zapLogger) WithContext(ctx context.Context) Logger {
	if ctx == nil {
		return z
	}

	fields := make([]Field, 0, 2)
	if v, ok := ctx.Value(CorrelationIDKey).(string); ok && v != "" {
		fields = append(fields, String("correlationId", v))
	}
	if v, ok := ctx.Value(SagaIDKey).(string); ok && v != "" {
		fields = append(fields, String("sagaId", v))
	}

	return z.With(fields...)
}

// Sync 刷新缓冲的日志.
func (z *zapLogger) Sync() error {
	return z.base.Sync()
}

// toZapField 转换为 zap 字段.
func toZapField(f Field) zap.Field {
	switch v := f.Value.(type) {
	case string:
		return zap.String(f.Key, v)
	case int:
		return zap.Int(f.Key, v)
	case int64:
		return zap.Int64(f.Key, v)
	case float64:
		return zap.Float64(f.Key, v)
	case bool:
		return zap.Bool(f.Key, v)
	case time.Time:
		return zap.Time(f.Key, v)
	case time.Duration:
		return zap.Duration(f.Key, v)
	case error:
		return zap.NamedError(f.Key, v)
	default:
		return zap.Any(f.Key, v)
	}
}

// String 字符串字段.
func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

// Int 整数字段.
func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

// Int64 int64 字段.
func Int64(key string, value int64) Field {
	return Field{Key: key, Value: value}
}

// Float64 浮点数字段.
func Float64(key string, value float64) Field {
	return Field{Key: key, Value: value}
}

// Bool 布尔字段.
func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

// Time 时间字段.
func Time(key string, value time.Time) Field {
	return Field{Key: key, Value: value}
}

// Duration 时长字段.
func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value}
}

// Err 错误字段，统一使用 error 键名.
func Err(err error) Field {
	return Field{Key: "error", Value: err}
}

// Any 任意类型字段.
func Any(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// Nop 返回空日志记录器，用于测试或禁用日志的场景.
func Nop() Logger {
	base := zap.NewNop()
	return &zapLogger{base: base, sugar: base.Sugar()}
}

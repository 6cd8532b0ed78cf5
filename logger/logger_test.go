package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	var nilCfg *Config
	assert.ErrorIs(t, nilCfg.Validate(), ErrNilConfig)

	assert.ErrorIs(t, (&Config{Level: "verbose"}).Validate(), ErrInvalidLevel)
	assert.ErrorIs(t, (&Config{Format: "xml"}).Validate(), ErrInvalidFormat)

	assert.NoError(t, DefaultConfig().Validate())
	assert.NoError(t, (&Config{}).Validate())
}

func TestNewLogger(t *testing.T) {
	log, err := NewLogger(&Config{ServiceName: "payment-saga", Level: LevelDebug})
	require.NoError(t, err)
	require.NotNil(t, log)

	log.With(String("key", "value"), Int("n", 1)).Debug("测试日志")
}

func TestWithContext(t *testing.T) {
	log := Nop()

	ctx := ContextWithCorrelationID(context.Background(), "corr-1")
	ctx = ContextWithSagaID(ctx, "saga-1")

	// 不应 panic，字段提取覆盖两个键
	log.WithContext(ctx).Info("with context")
	log.WithContext(context.Background()).Info("empty context")
}

package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics(t *testing.T) {
	c, err := NewMetrics(DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, "/metrics", c.GetPath())
}

func TestNewMetricsNilConfig(t *testing.T) {
	_, err := NewMetrics(nil)
	assert.ErrorIs(t, err, ErrNilConfig)
}

func TestCollectorRecordsAndExposes(t *testing.T) {
	c := MustNewMetrics(&Config{Path: "/stats", Namespace: "testns"})

	c.RecordSagaStarted("payment-default")
	c.RecordSagaCompleted("payment-default", 2*time.Second)
	c.RecordSagaCompensated("payment-default")
	c.RecordStepExecuted("PAYMENT_VALIDATION", "completed", 100*time.Millisecond)
	c.RecordStepRetry("PAYMENT_VALIDATION")
	c.RecordVersionConflict("handle_step_completion")
	c.RecordDeadLetter("payment.validation.response")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/stats", nil)
	c.GetHandler().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "testns_saga_started_total"))
	assert.True(t, strings.Contains(body, "testns_saga_completed_total"))
	assert.True(t, strings.Contains(body, "testns_saga_compensated_total"))
	assert.True(t, strings.Contains(body, "testns_step_executed_total"))
	assert.True(t, strings.Contains(body, "testns_step_retries_total"))
	assert.True(t, strings.Contains(body, "testns_orchestrator_version_conflicts_total"))
	assert.True(t, strings.Contains(body, "testns_consumer_dead_letters_total"))

	assert.Equal(t, "/stats", c.GetPath())
}

func TestNopCollector(t *testing.T) {
	n := Nop()
	n.RecordSagaStarted("x")
	n.RecordSagaCompleted("x", time.Second)
	n.RecordStepExecuted("x", "failed", time.Second)
	assert.Equal(t, "/metrics", n.GetPath())
	assert.NotNil(t, n.GetHandler())
}

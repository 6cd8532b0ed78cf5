package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tsukikage7/payment-saga/orchestrator"
	"github.com/Tsukikage7/payment-saga/saga"
)

// fakeReader 以固定结果响应状态查询.
type fakeReader struct {
	sagas map[string]*saga.Saga
	err   error
}

func (r *fakeReader) GetSagaStatus(_ context.Context, sagaID string) (*saga.Saga, error) {
	if r.err != nil {
		return nil, r.err
	}
	sg, ok := r.sagas[sagaID]
	if !ok {
		return nil, orchestrator.ErrNotFound
	}
	return sg, nil
}

func newTestSaga(t *testing.T) *saga.Saga {
	t.Helper()
	tmpl := &saga.Template{
		Name:    "payment-default",
		Version: 1,
		Steps: []saga.StepDefinition{
			{Name: "validate", Type: "VALIDATION", Endpoint: "/api/v1/validations"},
		},
	}
	return tmpl.Instantiate(saga.TenantContext{TenantID: "tenant-a"}, "corr-1", "pay-1", nil)
}

func TestHealthEndpoint(t *testing.T) {
	h := NewHandler(&fakeReader{}, nil, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestSagaStatusEndpoint(t *testing.T) {
	sg := newTestSaga(t)
	h := NewHandler(&fakeReader{sagas: map[string]*saga.Saga{sg.ID: sg}}, nil, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/sagas/"+sg.ID, nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var decoded saga.Saga
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	assert.Equal(t, sg.ID, decoded.ID)
	assert.Equal(t, saga.SagaStatusPending, decoded.Status)
	assert.Len(t, decoded.Steps, 1)
}

func TestSagaStatusNotFound(t *testing.T) {
	h := NewHandler(&fakeReader{}, nil, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/sagas/unknown", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSagaStatusInternalError(t *testing.T) {
	h := NewHandler(&fakeReader{err: errors.New("store unavailable")}, nil, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/sagas/any", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestMetricsEndpointMounted(t *testing.T) {
	h := NewHandler(&fakeReader{}, nil, nil)

	// Nop 采集器挂载 404 处理器，路由本身仍然注册
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

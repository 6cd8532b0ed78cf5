package compensator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tsukikage7/payment-saga/dispatch"
	"github.com/Tsukikage7/payment-saga/saga"
)

// recordingCompleter 记录收尾回调.
type recordingCompleter struct {
	calls []string
}

func (r *recordingCompleter) CompleteCompensation(_ context.Context, sagaID string) error {
	r.calls = append(r.calls, sagaID)
	return nil
}

func compensableSaga(t *testing.T, store saga.Store) *saga.Saga {
	t.Helper()
	tmpl := &saga.Template{
		Name:    "PaymentProcessingSaga",
		Version: 1,
		Steps: []saga.StepDefinition{
			{
				Name:       "validate-payment",
				Type:       "VALIDATION",
				Endpoint:   "/api/v1/validations",
				MaxRetries: 3,
				// 无补偿端点，回滚时跳过
			},
			{
				Name:                 "route-payment",
				Type:                 "ROUTING",
				Endpoint:             "/api/v1/routings",
				CompensationEndpoint: "/api/v1/routings/cancel",
				MaxRetries:           3,
			},
			{
				Name:                 "create-transaction",
				Type:                 "TRANSACTION",
				Endpoint:             "/api/v1/transactions",
				CompensationEndpoint: "/api/v1/transactions/cancel",
				MaxRetries:           3,
			},
		},
	}

	sg := tmpl.Instantiate(saga.TenantContext{TenantID: "tenant-1"}, "corr-1", "pay-1", nil)
	require.NoError(t, store.Create(context.Background(), sg))

	// 前两步已完成，第三步失败后 Saga 进入补偿
	require.NoError(t, sg.Transition(saga.SagaStatusRunning))
	now := time.Now()
	sg.Steps[0].MarkRunning(now)
	sg.Steps[0].MarkCompleted(map[string]any{"valid": true}, now)
	sg.Steps[1].MarkRunning(now)
	sg.Steps[1].MarkCompleted(map[string]any{"route": "ACH"}, now)
	sg.Steps[2].MarkRunning(now)
	sg.Steps[2].MarkFailed("downstream 500", nil)
	sg.CurrentStepIndex = 2
	require.NoError(t, sg.Transition(saga.SagaStatusCompensating))
	require.NoError(t, store.Save(context.Background(), sg))
	return sg
}

func newTestEngine(t *testing.T, store saga.Store, baseURL string) (*Engine, *recordingCompleter) {
	t.Helper()

	table, err := dispatch.NewTable([]dispatch.Target{
		{StepType: "VALIDATION", BaseURL: baseURL, Timeout: 5 * time.Second},
		{StepType: "ROUTING", BaseURL: baseURL, Timeout: 5 * time.Second},
		{StepType: "TRANSACTION", BaseURL: baseURL, Timeout: 5 * time.Second},
	})
	require.NoError(t, err)

	engine, err := NewEngine(store, table, dispatch.NewCaller())
	require.NoError(t, err)

	completer := &recordingCompleter{}
	engine.SetCompleter(completer)
	return engine, completer
}

func TestCompensateReverseOrder(t *testing.T) {
	var (
		mu       sync.Mutex
		paths    []string
		payloads []map[string]any
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		paths = append(paths, r.URL.Path)
		payloads = append(payloads, body)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	store := saga.NewMemoryStore()
	sg := compensableSaga(t, store)
	engine, completer := newTestEngine(t, store, server.URL)

	require.NoError(t, engine.Compensate(context.Background(), sg.ID))

	// 只补偿已完成且可补偿的步骤，逆序进行；
	// 失败的第三步和无补偿端点的第一步都不调用
	require.Equal(t, []string{"/api/v1/routings/cancel"}, paths)

	// 补偿上下文携带记录的输入输出
	require.Len(t, payloads, 1)
	assert.Equal(t, sg.ID, payloads[0]["saga_id"])
	assert.Equal(t, map[string]any{"route": "ACH"}, payloads[0]["output_data"])

	stored, err := store.Get(context.Background(), sg.ID)
	require.NoError(t, err)
	assert.Equal(t, saga.StepStatusCompleted, stored.Steps[0].Status)
	assert.Equal(t, saga.StepStatusCompensated, stored.Steps[1].Status)
	assert.Equal(t, saga.StepStatusFailed, stored.Steps[2].Status)

	require.Equal(t, []string{sg.ID}, completer.calls)
}

func TestCompensateMultipleStepsDescending(t *testing.T) {
	var paths []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	store := saga.NewMemoryStore()
	sg := compensableSaga(t, store)

	// 把第三步也置为已完成，验证逆序
	loaded, err := store.Get(context.Background(), sg.ID)
	require.NoError(t, err)
	loaded.Steps[2].Status = saga.StepStatusCompleted
	require.NoError(t, store.Save(context.Background(), loaded))

	engine, _ := newTestEngine(t, store, server.URL)
	require.NoError(t, engine.Compensate(context.Background(), sg.ID))

	require.Equal(t, []string{"/api/v1/transactions/cancel", "/api/v1/routings/cancel"}, paths)
}

func TestCompensateBestEffortOnFailure(t *testing.T) {
	var paths []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		if r.URL.Path == "/api/v1/transactions/cancel" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	store := saga.NewMemoryStore()
	sg := compensableSaga(t, store)

	loaded, err := store.Get(context.Background(), sg.ID)
	require.NoError(t, err)
	loaded.Steps[2].Status = saga.StepStatusCompleted
	require.NoError(t, store.Save(context.Background(), loaded))

	engine, completer := newTestEngine(t, store, server.URL)
	require.NoError(t, engine.Compensate(context.Background(), sg.ID))

	// 第三步补偿失败不阻断第二步的回滚，也不阻碍收尾
	assert.Contains(t, paths, "/api/v1/routings/cancel")
	require.Equal(t, []string{sg.ID}, completer.calls)

	stored, err := store.Get(context.Background(), sg.ID)
	require.NoError(t, err)
	assert.Equal(t, saga.StepStatusCompleted, stored.Steps[2].Status)
	assert.Equal(t, saga.StepStatusCompensated, stored.Steps[1].Status)
}

func TestCompensateRequiresCompleter(t *testing.T) {
	store := saga.NewMemoryStore()
	table, err := dispatch.NewTable([]dispatch.Target{
		{StepType: "VALIDATION", BaseURL: "http://unused"},
	})
	require.NoError(t, err)

	engine, err := NewEngine(store, table, dispatch.NewCaller())
	require.NoError(t, err)

	assert.ErrorIs(t, engine.Compensate(context.Background(), "any"), ErrNoCompleter)
}

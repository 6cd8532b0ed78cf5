package consumer

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tsukikage7/payment-saga/messaging"
	"github.com/Tsukikage7/payment-saga/saga"
)

// fakeCoordinator 记录编排器调用.
type fakeCoordinator struct {
	started     []string // 模板名
	completions []string // 步骤标识
	failures    []string
	lastTenant  saga.TenantContext
	lastKey     string
	lastData    map[string]any
	startErr    error
}

func (f *fakeCoordinator) StartSaga(_ context.Context, templateName string, tenant saga.TenantContext, _, businessKey string, initialData map[string]any) (*saga.Saga, error) {
	if f.startErr != nil {
		return nil, f.startErr
	}
	f.started = append(f.started, templateName)
	f.lastTenant = tenant
	f.lastKey = businessKey
	f.lastData = initialData
	return &saga.Saga{ID: "saga-1", Name: templateName, BusinessKey: businessKey}, nil
}

func (f *fakeCoordinator) HandleStepCompletion(_ context.Context, stepID string, outputData map[string]any) error {
	f.completions = append(f.completions, stepID)
	f.lastData = outputData
	return nil
}

func (f *fakeCoordinator) HandleStepFailure(_ context.Context, stepID, _ string, _ map[string]any) error {
	f.failures = append(f.failures, stepID)
	return nil
}

// fakeProducer 记录发送的消息.
type fakeProducer struct {
	messages []*messaging.Message
}

func (p *fakeProducer) SendMessage(_ context.Context, msg *messaging.Message) (*messaging.Message, error) {
	p.messages = append(p.messages, msg)
	return msg, nil
}

func (p *fakeProducer) Close() error { return nil }

func testSelection() Selection {
	return Selection{
		HighValueThreshold: 10000,
		HighValueTemplate:  "payment-high-value",
		FastPathTemplate:   "payment-fast",
		DefaultTemplate:    "payment-default",
	}
}

func newTestTrigger(t *testing.T) (*Trigger, *fakeCoordinator, *fakeProducer) {
	t.Helper()
	coordinator := &fakeCoordinator{}
	producer := &fakeProducer{}
	deadLetter, err := NewDeadLetter(producer, "payment.saga.dlq")
	require.NoError(t, err)

	trigger, err := NewTrigger(coordinator, testSelection(), deadLetter)
	require.NoError(t, err)
	return trigger, coordinator, producer
}

func triggerMessage(t *testing.T, evt PaymentInitiated) *messaging.Message {
	t.Helper()
	value, err := json.Marshal(evt)
	require.NoError(t, err)
	return &messaging.Message{
		Topic: "payment.initiated",
		Key:   []byte(evt.PaymentID),
		Value: value,
	}
}

func TestSelectionPolicy(t *testing.T) {
	s := testSelection()

	tests := []struct {
		name string
		evt  PaymentInitiated
		want string
	}{
		{
			name: "high value beats threshold",
			evt:  PaymentInitiated{Amount: 15000, PaymentType: "NORMAL"},
			want: "payment-high-value",
		},
		{
			name: "fast payment type",
			evt:  PaymentInitiated{Amount: 500, PaymentType: "FAST"},
			want: "payment-fast",
		},
		{
			name: "urgent priority",
			evt:  PaymentInitiated{Amount: 500, Priority: "URGENT"},
			want: "payment-fast",
		},
		{
			name: "high value wins over fast",
			evt:  PaymentInitiated{Amount: 15000, PaymentType: "FAST"},
			want: "payment-high-value",
		},
		{
			name: "default otherwise",
			evt:  PaymentInitiated{Amount: 500, PaymentType: "NORMAL"},
			want: "payment-default",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.Select(&tt.evt))
		})
	}
}

func TestTriggerStartsSaga(t *testing.T) {
	trigger, coordinator, producer := newTestTrigger(t)

	msg := triggerMessage(t, PaymentInitiated{
		PaymentID:      "pay-1",
		Amount:         15000,
		Currency:       "USD",
		PaymentType:    "NORMAL",
		TenantID:       "tenant-1",
		BusinessUnitID: "bu-1",
		CorrelationID:  "corr-1",
	})

	require.NoError(t, trigger.Handle(msg))

	require.Equal(t, []string{"payment-high-value"}, coordinator.started)
	assert.Equal(t, "pay-1", coordinator.lastKey)
	assert.Equal(t, "tenant-1", coordinator.lastTenant.TenantID)
	assert.Equal(t, 15000.0, coordinator.lastData["amount"])
	assert.Empty(t, producer.messages)
}

func TestTriggerDeadLettersInvalidEvent(t *testing.T) {
	trigger, coordinator, producer := newTestTrigger(t)

	tests := []struct {
		name string
		msg  *messaging.Message
	}{
		{
			name: "malformed json",
			msg:  &messaging.Message{Topic: "payment.initiated", Value: []byte("{not json")},
		},
		{
			name: "missing payment id",
			msg:  triggerMessage(t, PaymentInitiated{Amount: 100, Currency: "USD"}),
		},
		{
			name: "non-positive amount",
			msg:  triggerMessage(t, PaymentInitiated{PaymentID: "pay-2", Amount: 0, Currency: "USD"}),
		},
		{
			name: "missing currency",
			msg:  triggerMessage(t, PaymentInitiated{PaymentID: "pay-3", Amount: 100}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := len(producer.messages)
			require.NoError(t, trigger.Handle(tt.msg))
			// 转入死信，不触碰编排器
			require.Len(t, producer.messages, before+1)
			assert.Empty(t, coordinator.started)
			assert.Equal(t, "payment.initiated", producer.messages[before].Headers[HeaderOriginalTopic])
			assert.NotEmpty(t, producer.messages[before].Headers[HeaderError])
		})
	}
}

func TestTriggerIgnoresDuplicateBusinessKey(t *testing.T) {
	trigger, coordinator, producer := newTestTrigger(t)
	coordinator.startErr = saga.ErrDuplicateSaga

	msg := triggerMessage(t, PaymentInitiated{PaymentID: "pay-1", Amount: 100, Currency: "USD"})
	require.NoError(t, trigger.Handle(msg))
	assert.Empty(t, producer.messages)
}

func resolverFixture(t *testing.T) (*Resolver, *fakeCoordinator, *fakeProducer, *saga.Saga, saga.Store) {
	t.Helper()

	store := saga.NewMemoryStore()
	tmpl := &saga.Template{
		Name:    "payment-default",
		Version: 1,
		Steps: []saga.StepDefinition{
			{Name: "create-transaction", Type: "TRANSACTION", Endpoint: "/api/v1/transactions", MaxRetries: 3},
		},
	}
	sg := tmpl.Instantiate(saga.TenantContext{TenantID: "tenant-1"}, "corr-1", "pay-1", nil)
	require.NoError(t, store.Create(context.Background(), sg))

	require.NoError(t, sg.Transition(saga.SagaStatusRunning))
	sg.Steps[0].MarkRunning(time.Now())
	require.NoError(t, store.Save(context.Background(), sg))

	coordinator := &fakeCoordinator{}
	producer := &fakeProducer{}
	deadLetter, err := NewDeadLetter(producer, "payment.saga.dlq")
	require.NoError(t, err)

	resolver, err := NewResolver(coordinator, store,
		map[string]string{"TransactionCreated": "TRANSACTION"}, deadLetter)
	require.NoError(t, err)
	return resolver, coordinator, producer, sg, store
}

func stepEventMessage(t *testing.T, evt StepEvent) *messaging.Message {
	t.Helper()
	value, err := json.Marshal(evt)
	require.NoError(t, err)
	return &messaging.Message{
		Topic: "payment.transaction.response",
		Key:   []byte(evt.businessKey()),
		Value: value,
	}
}

func TestResolverCompletesStep(t *testing.T) {
	resolver, coordinator, producer, sg, _ := resolverFixture(t)

	msg := stepEventMessage(t, StepEvent{
		EventType: "TransactionCreated",
		PaymentID: "pay-1",
		Status:    StepResultSuccess,
		Data:      map[string]any{"transaction_id": "txn-9"},
	})

	require.NoError(t, resolver.Handle(msg))

	require.Equal(t, []string{sg.Steps[0].ID}, coordinator.completions)
	assert.Equal(t, map[string]any{"transaction_id": "txn-9"}, coordinator.lastData)
	assert.Empty(t, producer.messages)
}

func TestResolverRoutesFailure(t *testing.T) {
	resolver, coordinator, _, sg, _ := resolverFixture(t)

	msg := stepEventMessage(t, StepEvent{
		EventType:    "TransactionCreated",
		PaymentID:    "pay-1",
		Status:       StepResultFailed,
		ErrorMessage: "insufficient funds",
	})

	require.NoError(t, resolver.Handle(msg))
	require.Equal(t, []string{sg.Steps[0].ID}, coordinator.failures)
	assert.Empty(t, coordinator.completions)
}

func TestResolverDeadLettersUnknownSaga(t *testing.T) {
	resolver, coordinator, producer, _, _ := resolverFixture(t)

	msg := stepEventMessage(t, StepEvent{
		EventType: "TransactionCreated",
		PaymentID: "pay-unknown",
		Status:    StepResultSuccess,
	})

	require.NoError(t, resolver.Handle(msg))
	require.Len(t, producer.messages, 1)
	assert.Empty(t, coordinator.completions)
}

func TestResolverDeadLettersUnroutableEvent(t *testing.T) {
	resolver, _, producer, _, _ := resolverFixture(t)

	msg := stepEventMessage(t, StepEvent{
		EventType: "UnknownEvent",
		PaymentID: "pay-1",
		Status:    StepResultSuccess,
	})

	require.NoError(t, resolver.Handle(msg))
	require.Len(t, producer.messages, 1)
	assert.Contains(t, producer.messages[0].Headers[HeaderError], "UnknownEvent")
}

func TestResolverDeadLettersInvalidStatus(t *testing.T) {
	resolver, coordinator, producer, _, _ := resolverFixture(t)

	msg := stepEventMessage(t, StepEvent{
		EventType: "TransactionCreated",
		PaymentID: "pay-1",
		Status:    "maybe",
	})

	require.NoError(t, resolver.Handle(msg))
	require.Len(t, producer.messages, 1)
	assert.Empty(t, coordinator.completions)
	assert.Empty(t, coordinator.failures)
}

func TestResolverIgnoresDuplicateDelivery(t *testing.T) {
	resolver, coordinator, producer, sg, store := resolverFixture(t)

	// 步骤已完成，重投的完成事件找不到执行中的步骤
	loaded, err := store.Get(context.Background(), sg.ID)
	require.NoError(t, err)
	loaded.Steps[0].MarkCompleted(map[string]any{"done": true}, time.Now())
	require.NoError(t, store.Save(context.Background(), loaded))

	msg := stepEventMessage(t, StepEvent{
		EventType: "TransactionCreated",
		PaymentID: "pay-1",
		Status:    StepResultSuccess,
	})

	require.NoError(t, resolver.Handle(msg))

	// 无状态变更、无死信、无编排器调用
	assert.Empty(t, coordinator.completions)
	assert.Empty(t, coordinator.failures)
	assert.Empty(t, producer.messages)
}

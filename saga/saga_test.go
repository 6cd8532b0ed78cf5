package saga

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func paymentTemplate() *Template {
	return &Template{
		Name:    "PaymentProcessingSaga",
		Version: 1,
		Steps: []StepDefinition{
			{
				Name:                 "validate-payment",
				Type:                 "VALIDATION",
				ServiceName:          "validation-service",
				Endpoint:             "/api/v1/validations",
				CompensationEndpoint: "",
				MaxRetries:           3,
			},
			{
				Name:                 "route-payment",
				Type:                 "ROUTING",
				ServiceName:          "routing-service",
				Endpoint:             "/api/v1/routings",
				CompensationEndpoint: "/api/v1/routings/cancel",
				MaxRetries:           3,
			},
			{
				Name:                 "create-transaction",
				Type:                 "TRANSACTION",
				ServiceName:          "transaction-service",
				Endpoint:             "/api/v1/transactions",
				CompensationEndpoint: "/api/v1/transactions/reverse",
				MaxRetries:           3,
			},
		},
	}
}

func TestTemplateInstantiate(t *testing.T) {
	tmpl := paymentTemplate()
	tenant := TenantContext{TenantID: "tenant-1", BusinessUnitID: "bu-1"}
	initial := map[string]any{"amount": 1000, "currency": "USD"}

	sg := tmpl.Instantiate(tenant, "corr-1", "pay-1", initial)

	assert.NotEmpty(t, sg.ID)
	assert.Equal(t, "PaymentProcessingSaga", sg.Name)
	assert.Equal(t, SagaStatusPending, sg.Status)
	assert.Equal(t, 3, sg.TotalSteps)
	assert.Equal(t, 0, sg.CurrentStepIndex)
	assert.Equal(t, "pay-1", sg.BusinessKey)
	assert.Equal(t, "corr-1", sg.CorrelationID)
	assert.Equal(t, "tenant-1", sg.TenantID)
	require.Len(t, sg.Steps, 3)

	// 步骤与定义完全一致，sequence 从 0 连续递增
	for i, step := range sg.Steps {
		def := tmpl.Steps[i]
		assert.Equal(t, i, step.Sequence)
		assert.Equal(t, sg.ID, step.SagaID)
		assert.Equal(t, StepStatusPending, step.Status)
		assert.Equal(t, def.Endpoint, step.Endpoint)
		assert.Equal(t, def.CompensationEndpoint, step.CompensationEndpoint)
		assert.Equal(t, def.MaxRetries, step.MaxRetries)
		assert.Equal(t, initial, step.InputData)
	}

	assert.NoError(t, sg.Validate())
}

func TestSagaTransitions(t *testing.T) {
	sg := &Saga{Status: SagaStatusPending}

	require.NoError(t, sg.Transition(SagaStatusRunning))
	require.NoError(t, sg.Transition(SagaStatusCompensating))
	require.NoError(t, sg.Transition(SagaStatusCompensated))

	// 终态不可再迁移
	assert.ErrorIs(t, sg.Transition(SagaStatusRunning), ErrInvalidTransition)
}

func TestSagaTransitionHappyPath(t *testing.T) {
	sg := &Saga{Status: SagaStatusPending}

	require.NoError(t, sg.Transition(SagaStatusRunning))
	require.NoError(t, sg.Transition(SagaStatusCompleted))

	assert.True(t, sg.Status.IsTerminal())
	assert.ErrorIs(t, sg.Transition(SagaStatusCompensating), ErrInvalidTransition)
}

func TestSagaTransitionRejectsSkip(t *testing.T) {
	sg := &Saga{Status: SagaStatusPending}

	// 不允许跳过 running 直接完成
	assert.ErrorIs(t, sg.Transition(SagaStatusCompleted), ErrInvalidTransition)
	assert.ErrorIs(t, sg.Transition(SagaStatusCompensated), ErrInvalidTransition)
}

func TestRunningStepByType(t *testing.T) {
	sg := paymentTemplate().Instantiate(TenantContext{}, "corr-1", "pay-1", nil)

	_, found := sg.RunningStepByType("ROUTING")
	assert.False(t, found)

	sg.Steps[1].Status = StepStatusRunning
	step, found := sg.RunningStepByType("ROUTING")
	require.True(t, found)
	assert.Equal(t, "route-payment", step.Name)
}

func TestStepResetForRetry(t *testing.T) {
	step := &Step{Status: StepStatusRunning, RetryCount: 1}
	step.ResetForRetry()

	assert.Equal(t, StepStatusPending, step.Status)
	assert.Equal(t, 2, step.RetryCount)
}

func TestRegistry(t *testing.T) {
	registry, err := NewRegistry(paymentTemplate())
	require.NoError(t, err)

	tmpl, err := registry.Lookup("PaymentProcessingSaga")
	require.NoError(t, err)
	assert.Equal(t, "PaymentProcessingSaga", tmpl.Name)

	_, err = registry.Lookup("UnknownSaga")
	assert.ErrorIs(t, err, ErrTemplateNotFound)

	_, err = NewRegistry(paymentTemplate(), paymentTemplate())
	assert.ErrorIs(t, err, ErrDuplicateTemplate)

	_, err = NewRegistry(&Template{Name: "empty"})
	assert.ErrorIs(t, err, ErrNoSteps)
}

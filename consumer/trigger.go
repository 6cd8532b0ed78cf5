// Package consumer 提供入站事件的消费与回溯.
//
// 触发消费者把"支付已发起"事件翻译为 StartSaga 调用；
// 回溯消费者把下游的异步领域事件归属到具体 Saga 和步骤，
// 再转为 HandleStepCompletion / HandleStepFailure 调用.
//
// 前置条件：影响同一 Saga 的事件必须由传输层投递到同一有序流
//（以业务键作为消息键即可满足）。编排逻辑依赖但不自行保证这一顺序.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Tsukikage7/payment-saga/logger"
	"github.com/Tsukikage7/payment-saga/messaging"
	"github.com/Tsukikage7/payment-saga/saga"
)

// Coordinator 消费层依赖的编排器操作.
type Coordinator interface {
	StartSaga(ctx context.Context, templateName string, tenant saga.TenantContext, correlationID, businessKey string, initialData map[string]any) (*saga.Saga, error)
	HandleStepCompletion(ctx context.Context, stepID string, outputData map[string]any) error
	HandleStepFailure(ctx context.Context, stepID, errorMessage string, errorData map[string]any) error
}

// PaymentInitiated 支付发起事件.
type PaymentInitiated struct {
	PaymentID      string  `json:"payment_id"`
	Amount         float64 `json:"amount"`
	Currency       string  `json:"currency"`
	PaymentType    string  `json:"payment_type"`
	Priority       string  `json:"priority"`
	TenantID       string  `json:"tenant_id"`
	BusinessUnitID string  `json:"business_unit_id"`
	CorrelationID  string  `json:"correlation_id"`
}

// Validate 校验事件必填字段.
func (p *PaymentInitiated) Validate() error {
	if p.PaymentID == "" {
		return fmt.Errorf("%w: payment_id 缺失", ErrValidation)
	}
	if p.Amount <= 0 {
		return fmt.Errorf("%w: amount 必须为正数", ErrValidation)
	}
	if p.Currency == "" {
		return fmt.Errorf("%w: currency 缺失", ErrValidation)
	}
	return nil
}

// Selection 模板选择策略.
//
// 金额超过高额阈值选高额模板；支付类型 FAST 或优先级 URGENT
// 选快速通道模板；其余使用默认模板.
type Selection struct {
	HighValueThreshold float64
	HighValueTemplate  string
	FastPathTemplate   string
	DefaultTemplate    string
}

// Select 为事件选择模板.
func (s Selection) Select(evt *PaymentInitiated) string {
	if s.HighValueTemplate != "" && evt.Amount > s.HighValueThreshold {
		return s.HighValueTemplate
	}
	if s.FastPathTemplate != "" && (evt.PaymentType == "FAST" || evt.Priority == "URGENT") {
		return s.FastPathTemplate
	}
	return s.DefaultTemplate
}

// Trigger 支付发起事件消费者.
type Trigger struct {
	coordinator Coordinator
	selection   Selection
	deadLetter  *DeadLetter
	logger      logger.Logger
}

// TriggerOption 触发消费者配置选项.
type TriggerOption func(*Trigger)

// WithTriggerLogger 设置日志记录器.
func WithTriggerLogger(log logger.Logger) TriggerOption {
	return func(t *Trigger) {
		t.logger = log
	}
}

// NewTrigger 创建触发消费者.
func NewTrigger(coordinator Coordinator, selection Selection, deadLetter *DeadLetter, opts ...TriggerOption) (*Trigger, error) {
	if coordinator == nil {
		return nil, ErrNilCoordinator
	}
	if deadLetter == nil {
		return nil, ErrNilDeadLetter
	}

	t := &Trigger{
		coordinator: coordinator,
		selection:   selection,
		deadLetter:  deadLetter,
		logger:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Handle 处理一条支付发起消息.
//
// 格式或校验失败的事件转入死信，不产生任何状态变更；
// 重复投递命中已存在的业务键时幂等忽略.
func (t *Trigger) Handle(msg *messaging.Message) error {
	ctx := context.Background()

	var evt PaymentInitiated
	if err := json.Unmarshal(msg.Value, &evt); err != nil {
		t.deadLetter.Send(ctx, msg, fmt.Errorf("%w: %v", ErrValidation, err))
		return nil
	}

	if err := evt.Validate(); err != nil {
		t.deadLetter.Send(ctx, msg, err)
		return nil
	}

	ctx = logger.ContextWithCorrelationID(ctx, evt.CorrelationID)
	templateName := t.selection.Select(&evt)

	tenant := saga.TenantContext{
		TenantID:       evt.TenantID,
		BusinessUnitID: evt.BusinessUnitID,
	}
	initialData := map[string]any{
		"payment_id":   evt.PaymentID,
		"amount":       evt.Amount,
		"currency":     evt.Currency,
		"payment_type": evt.PaymentType,
		"priority":     evt.Priority,
	}

	sg, err := t.coordinator.StartSaga(ctx, templateName, tenant, evt.CorrelationID, evt.PaymentID, initialData)
	if err != nil {
		if errors.Is(err, saga.ErrDuplicateSaga) {
			t.logger.WithContext(ctx).With(
				logger.String("paymentId", evt.PaymentID),
			).Debug("[Consumer] 业务键已存在，忽略重复触发")
			return nil
		}
		return err
	}

	t.logger.WithContext(ctx).With(
		logger.String("sagaId", sg.ID),
		logger.String("template", templateName),
		logger.String("paymentId", evt.PaymentID),
		logger.Float64("amount", evt.Amount),
	).Info("[Consumer] 触发事件已启动 Saga")
	return nil
}

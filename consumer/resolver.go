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

// 步骤结果状态.
const (
	StepResultSuccess = "success"
	StepResultFailed  = "failed"
)

// StepEvent 下游异步响应事件.
type StepEvent struct {
	EventType     string         `json:"event_type"`
	PaymentID     string         `json:"payment_id"`
	BusinessKey   string         `json:"business_key"`
	CorrelationID string         `json:"correlation_id"`
	Status        string         `json:"status"`
	ErrorMessage  string         `json:"error_message"`
	Data          map[string]any `json:"data"`
}

// businessKey 事件归属的业务键，business_key 缺省时退回 payment_id.
func (e *StepEvent) businessKey() string {
	if e.BusinessKey != "" {
		return e.BusinessKey
	}
	return e.PaymentID
}

// Validate 校验事件必填字段.
func (e *StepEvent) Validate() error {
	if e.businessKey() == "" {
		return fmt.Errorf("%w: business_key 与 payment_id 均缺失", ErrValidation)
	}
	switch e.Status {
	case StepResultSuccess, StepResultFailed:
		return nil
	default:
		return fmt.Errorf("%w: status 必须为 %s 或 %s", ErrValidation, StepResultSuccess, StepResultFailed)
	}
}

// Resolver 异步响应事件消费者.
//
// 为每个事件解析归属：业务键 → Saga（找不到转死信），
// 事件类型 → 步骤类型 → 该 Saga 中执行中的步骤（找不到视为
// 重复或迟到投递，忽略），再按事件结果回报编排器.
// 幂等性由步骤状态检查天然保证：已处理事件的重投不会命中
// 执行中的步骤，不产生状态变更，也不发布事件.
type Resolver struct {
	coordinator Coordinator
	store       saga.Store
	stepTypes   map[string]string
	deadLetter  *DeadLetter
	logger      logger.Logger
}

// ResolverOption 回溯消费者配置选项.
type ResolverOption func(*Resolver)

// WithResolverLogger 设置日志记录器.
func WithResolverLogger(log logger.Logger) ResolverOption {
	return func(r *Resolver) {
		r.logger = log
	}
}

// NewResolver 创建回溯消费者.
// stepTypes 是响应事件类型到步骤类型的映射，来自配置.
func NewResolver(coordinator Coordinator, store saga.Store, stepTypes map[string]string, deadLetter *DeadLetter, opts ...ResolverOption) (*Resolver, error) {
	if coordinator == nil {
		return nil, ErrNilCoordinator
	}
	if store == nil {
		return nil, ErrNilStore
	}
	if deadLetter == nil {
		return nil, ErrNilDeadLetter
	}

	r := &Resolver{
		coordinator: coordinator,
		store:       store,
		stepTypes:   stepTypes,
		deadLetter:  deadLetter,
		logger:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Handle 处理一条异步响应消息.
func (r *Resolver) Handle(msg *messaging.Message) error {
	ctx := context.Background()

	var evt StepEvent
	if err := json.Unmarshal(msg.Value, &evt); err != nil {
		r.deadLetter.Send(ctx, msg, fmt.Errorf("%w: %v", ErrValidation, err))
		return nil
	}

	eventType := msg.Headers["event-type"]
	if eventType == "" {
		eventType = evt.EventType
	}

	stepType, ok := r.stepTypes[eventType]
	if !ok {
		r.deadLetter.Send(ctx, msg, fmt.Errorf("%w: %s", ErrUnroutable, eventType))
		return nil
	}

	if err := evt.Validate(); err != nil {
		r.deadLetter.Send(ctx, msg, err)
		return nil
	}

	ctx = logger.ContextWithCorrelationID(ctx, evt.CorrelationID)

	sg, err := r.store.GetByBusinessKey(ctx, evt.businessKey())
	if err != nil {
		if errors.Is(err, saga.ErrSagaNotFound) {
			r.deadLetter.Send(ctx, msg, fmt.Errorf("%w: 业务键 %s 无归属 Saga", ErrValidation, evt.businessKey()))
			return nil
		}
		return err
	}

	step, ok := sg.RunningStepByType(stepType)
	if !ok {
		// 重复或迟到投递：没有匹配的执行中步骤，无操作
		r.logger.WithContext(ctx).With(
			logger.String("sagaId", sg.ID),
			logger.String("eventType", eventType),
			logger.String("stepType", stepType),
		).Debug("[Consumer] 无匹配的执行中步骤，忽略")
		return nil
	}

	if evt.Status == StepResultFailed {
		r.logger.WithContext(ctx).With(
			logger.String("sagaId", sg.ID),
			logger.String("stepName", step.Name),
			logger.String("error", evt.ErrorMessage),
		).Warn("[Consumer] 异步步骤失败")
		return r.coordinator.HandleStepFailure(ctx, step.ID, evt.ErrorMessage, evt.Data)
	}

	r.logger.WithContext(ctx).With(
		logger.String("sagaId", sg.ID),
		logger.String("stepName", step.Name),
	).Info("[Consumer] 异步步骤完成")
	return r.coordinator.HandleStepCompletion(ctx, step.ID, evt.Data)
}

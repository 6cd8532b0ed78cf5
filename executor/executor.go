// Package executor 提供步骤执行引擎.
//
// 引擎把处于 pending 状态的当前步骤标记为执行中并派发下游调用，
// 目标由数据驱动的派发表按步骤类型解析。同步模式下响应即结果，
// 经 Reporter 回报编排器；异步模式下调用仅确认受理，引擎不等待，
// 步骤保持执行中，真正的结果由事件消费层回溯.
package executor

import (
	"context"
	"errors"
	"time"

	"github.com/Tsukikage7/payment-saga/dispatch"
	"github.com/Tsukikage7/payment-saga/events"
	"github.com/Tsukikage7/payment-saga/logger"
	"github.com/Tsukikage7/payment-saga/saga"
)

// 默认配置值.
const (
	DefaultConflictRetries = 3
)

// Reporter 步骤结果上报回调，由编排器实现.
type Reporter interface {
	HandleStepCompletion(ctx context.Context, stepID string, outputData map[string]any) error
	HandleStepFailure(ctx context.Context, stepID, errorMessage string, errorData map[string]any) error
}

// Engine 步骤执行引擎.
type Engine struct {
	store     saga.Store
	table     *dispatch.Table
	caller    *dispatch.Caller
	publisher events.Publisher
	reporter  Reporter

	logger          logger.Logger
	conflictRetries int
}

// Option 执行引擎配置选项.
type Option func(*Engine)

// WithLogger 设置日志记录器.
func WithLogger(log logger.Logger) Option {
	return func(e *Engine) {
		e.logger = log
	}
}

// WithConflictRetries 设置乐观锁冲突的最大重试次数.
func WithConflictRetries(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.conflictRetries = n
		}
	}
}

// NewEngine 创建执行引擎.
// 结果上报回调通过 SetReporter 接入.
func NewEngine(store saga.Store, table *dispatch.Table, caller *dispatch.Caller, publisher events.Publisher, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	if table == nil {
		return nil, ErrNilTable
	}
	if caller == nil {
		return nil, ErrNilCaller
	}
	if publisher == nil {
		return nil, ErrNilPublisher
	}

	e := &Engine{
		store:           store,
		table:           table,
		caller:          caller,
		publisher:       publisher,
		logger:          logger.Nop(),
		conflictRetries: DefaultConflictRetries,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// SetReporter 接入结果上报回调.
func (e *Engine) SetReporter(reporter Reporter) {
	e.reporter = reporter
}

// ExecuteStep 执行 Saga 的当前步骤.
//
// 步骤不处于 pending 状态时是重复派发请求，幂等忽略.
func (e *Engine) ExecuteStep(ctx context.Context, sagaID string) error {
	if e.reporter == nil {
		return ErrNoReporter
	}

	sg, step, err := e.markRunning(ctx, sagaID)
	if err != nil {
		return err
	}
	if step == nil {
		return nil
	}

	e.publish(ctx, sg, events.EventStepStarted, map[string]any{
		"stepId":   step.ID,
		"stepName": step.Name,
		"stepType": step.Type,
		"sequence": step.Sequence,
	})

	e.logger.WithContext(ctx).With(
		logger.String("sagaId", sg.ID),
		logger.String("stepName", step.Name),
		logger.String("stepType", step.Type),
	).Info("[Executor] 步骤开始执行")

	target, err := e.table.Resolve(step.Type)
	if err != nil {
		// 派发表缺失是配置错误，按失败上报，由编排器决定重试或补偿
		return e.reporter.HandleStepFailure(ctx, step.ID, err.Error(), nil)
	}

	callCtx := dispatch.CallContext{
		TenantID:       sg.TenantID,
		BusinessUnitID: sg.BusinessUnitID,
		CorrelationID:  sg.CorrelationID,
	}

	output, err := e.caller.Call(ctx, target, step.Endpoint, callCtx, step.InputData)
	if err != nil {
		e.logger.WithContext(ctx).With(
			logger.String("sagaId", sg.ID),
			logger.String("stepName", step.Name),
			logger.Err(err),
		).Warn("[Executor] 下游调用失败")
		return e.reporter.HandleStepFailure(ctx, step.ID, err.Error(), map[string]any{
			"stepType": step.Type,
			"endpoint": step.Endpoint,
		})
	}

	if target.Mode == dispatch.ModeAsync {
		// 受理确认成功，真正的结果由异步事件回溯，步骤保持执行中
		e.logger.WithContext(ctx).With(
			logger.String("sagaId", sg.ID),
			logger.String("stepName", step.Name),
		).Debug("[Executor] 异步步骤已受理")
		return nil
	}

	return e.reporter.HandleStepCompletion(ctx, step.ID, output)
}

// markRunning 把当前待执行步骤标记为执行中并持久化.
// 返回的步骤为 nil 表示无可派发步骤（重复请求或已推进完）.
func (e *Engine) markRunning(ctx context.Context, sagaID string) (*saga.Saga, *saga.Step, error) {
	for attempt := 0; attempt <= e.conflictRetries; attempt++ {
		sg, err := e.store.Get(ctx, sagaID)
		if err != nil {
			return nil, nil, err
		}

		step, ok := sg.CurrentStep()
		if !ok {
			return sg, nil, nil
		}
		if step.Status != saga.StepStatusPending {
			e.logger.WithContext(ctx).With(
				logger.String("sagaId", sagaID),
				logger.String("stepName", step.Name),
				logger.String("status", string(step.Status)),
			).Debug("[Executor] 步骤非待执行状态，忽略重复派发")
			return sg, nil, nil
		}

		if sg.Status == saga.SagaStatusPending {
			if err := sg.Transition(saga.SagaStatusRunning); err != nil {
				return nil, nil, err
			}
		}
		step.MarkRunning(time.Now())

		if err := e.store.Save(ctx, sg); err != nil {
			if errors.Is(err, saga.ErrVersionConflict) {
				continue
			}
			return nil, nil, err
		}
		return sg, step, nil
	}
	return nil, nil, ErrConcurrencyConflict
}

// publish 发布生命周期事件，失败只记录日志.
func (e *Engine) publish(ctx context.Context, sg *saga.Saga, eventType events.EventType, data map[string]any) {
	ev := events.NewEvent(eventType, sg.ID, data)
	ev.TenantID = sg.TenantID
	ev.BusinessUnitID = sg.BusinessUnitID
	ev.CorrelationID = sg.CorrelationID
	ev.BusinessKey = sg.BusinessKey

	if err := e.publisher.Publish(ctx, ev); err != nil {
		e.logger.WithContext(ctx).With(
			logger.String("eventType", string(eventType)),
			logger.String("sagaId", sg.ID),
			logger.Err(err),
		).Error("[Executor] 事件发布失败")
	}
}

// Package compensator 提供补偿引擎.
//
// 引擎按 sequence 逆序遍历已完成且配置了补偿端点的步骤，
// 携带该步骤记录的输入与输出调用补偿端点。补偿是尽力而为、
// 至少一次的：单个补偿调用失败只记录日志，不中断其余步骤的回滚，
// 也不阻碍 Saga 最终到达已补偿状态.
package compensator

import (
	"context"
	"errors"

	"github.com/Tsukikage7/payment-saga/dispatch"
	"github.com/Tsukikage7/payment-saga/logger"
	"github.com/Tsukikage7/payment-saga/saga"
)

// 默认配置值.
const (
	DefaultConflictRetries = 3
)

// Completer 补偿收尾回调，由编排器实现.
type Completer interface {
	CompleteCompensation(ctx context.Context, sagaID string) error
}

// Engine 补偿引擎.
type Engine struct {
	store     saga.Store
	table     *dispatch.Table
	caller    *dispatch.Caller
	completer Completer

	logger          logger.Logger
	conflictRetries int
}

// Option 补偿引擎配置选项.
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

// NewEngine 创建补偿引擎.
// 收尾回调通过 SetCompleter 接入.
func NewEngine(store saga.Store, table *dispatch.Table, caller *dispatch.Caller, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	if table == nil {
		return nil, ErrNilTable
	}
	if caller == nil {
		return nil, ErrNilCaller
	}

	e := &Engine{
		store:           store,
		table:           table,
		caller:          caller,
		logger:          logger.Nop(),
		conflictRetries: DefaultConflictRetries,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// SetCompleter 接入收尾回调.
func (e *Engine) SetCompleter(completer Completer) {
	e.completer = completer
}

// Compensate 回滚 Saga 已完成的步骤.
//
// 逆序处理每个已完成且可补偿的步骤；没有补偿端点的步骤
// 视为本身安全或无副作用，跳过并记录。全部处理完后收尾整个补偿.
func (e *Engine) Compensate(ctx context.Context, sagaID string) error {
	if e.completer == nil {
		return ErrNoCompleter
	}

	sg, err := e.store.Get(ctx, sagaID)
	if err != nil {
		return err
	}

	callCtx := dispatch.CallContext{
		TenantID:       sg.TenantID,
		BusinessUnitID: sg.BusinessUnitID,
		CorrelationID:  sg.CorrelationID,
	}

	compensated := make([]string, 0, len(sg.Steps))
	for i := len(sg.Steps) - 1; i >= 0; i-- {
		step := sg.Steps[i]
		if step.Status != saga.StepStatusCompleted {
			continue
		}
		if !step.Compensatable() {
			e.logger.WithContext(ctx).With(
				logger.String("sagaId", sg.ID),
				logger.String("stepName", step.Name),
			).Debug("[Compensator] 步骤无补偿端点，跳过")
			continue
		}

		if err := e.compensateStep(ctx, sg, step, callCtx); err != nil {
			// 尽力而为：失败只记录，继续回滚其余步骤
			e.logger.WithContext(ctx).With(
				logger.String("sagaId", sg.ID),
				logger.String("stepName", step.Name),
				logger.Err(err),
			).Error("[Compensator] 补偿调用失败，继续处理其余步骤")
			continue
		}
		compensated = append(compensated, step.ID)
	}

	if len(compensated) > 0 {
		if err := e.markCompensated(ctx, sagaID, compensated); err != nil {
			return err
		}
	}

	e.logger.WithContext(ctx).With(
		logger.String("sagaId", sagaID),
		logger.Int("compensatedSteps", len(compensated)),
	).Info("[Compensator] 补偿处理完毕")

	return e.completer.CompleteCompensation(ctx, sagaID)
}

// compensateStep 调用单个步骤的补偿端点.
// 请求体携带步骤记录的输入与输出作为补偿上下文.
func (e *Engine) compensateStep(ctx context.Context, sg *saga.Saga, step *saga.Step, callCtx dispatch.CallContext) error {
	target, err := e.table.Resolve(step.Type)
	if err != nil {
		return err
	}

	payload := map[string]any{
		"saga_id":     sg.ID,
		"step_id":     step.ID,
		"input_data":  step.InputData,
		"output_data": step.OutputData,
	}

	_, err = e.caller.Call(ctx, target, step.CompensationEndpoint, callCtx, payload)
	return err
}

// markCompensated 持久化已补偿步骤的状态变更.
func (e *Engine) markCompensated(ctx context.Context, sagaID string, stepIDs []string) error {
	for attempt := 0; attempt <= e.conflictRetries; attempt++ {
		sg, err := e.store.Get(ctx, sagaID)
		if err != nil {
			return err
		}

		for _, id := range stepIDs {
			if step, ok := sg.StepByID(id); ok {
				step.MarkCompensated()
			}
		}

		if err := e.store.Save(ctx, sg); err != nil {
			if errors.Is(err, saga.ErrVersionConflict) {
				continue
			}
			return err
		}
		return nil
	}
	return ErrConcurrencyConflict
}

// Package orchestrator 提供 Saga 编排器.
//
// 编排器是对外的协调入口：启动 Saga、推进步骤、记录步骤结果、
// 在重试 / 补偿 / 完成之间做出决策，并驱动执行引擎与补偿引擎。
// 所有读-改-写都经过有界的乐观锁冲突重试，耗尽后返回
// ErrConcurrencyConflict。
package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/Tsukikage7/payment-saga/events"
	"github.com/Tsukikage7/payment-saga/logger"
	"github.com/Tsukikage7/payment-saga/metrics"
	"github.com/Tsukikage7/payment-saga/retry"
	"github.com/Tsukikage7/payment-saga/saga"
)

// StepExecutor 执行引擎接口.
// 对当前步骤派发下游调用；仅当步骤处于 pending 状态时生效.
type StepExecutor interface {
	ExecuteStep(ctx context.Context, sagaID string) error
}

// Compensator 补偿引擎接口.
// 按逆序补偿已完成的步骤，结束后回调 CompleteCompensation.
type Compensator interface {
	Compensate(ctx context.Context, sagaID string) error
}

// Orchestrator Saga 编排器.
type Orchestrator struct {
	store     saga.Store
	registry  *saga.Registry
	publisher events.Publisher

	executor    StepExecutor
	compensator Compensator

	logger  logger.Logger
	metrics metrics.Collector

	conflictRetries int
	backoff         retry.BackoffFunc
	retryBaseDelay  time.Duration
	schedule        func(delay time.Duration, fn func())
}

// New 创建编排器.
// 执行引擎与补偿引擎通过 SetExecutor / SetCompensator 接入，
// 以打破两者对编排器回调的构造依赖.
func New(store saga.Store, registry *saga.Registry, publisher events.Publisher, opts ...Option) (*Orchestrator, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	if registry == nil {
		return nil, ErrNilRegistry
	}
	if publisher == nil {
		return nil, ErrNilPublisher
	}

	o := &Orchestrator{
		store:           store,
		registry:        registry,
		publisher:       publisher,
		logger:          logger.Nop(),
		metrics:         metrics.Nop(),
		conflictRetries: DefaultConflictRetries,
		backoff:         retry.ExponentialBackoff,
		retryBaseDelay:  DefaultRetryBaseDelay,
		schedule: func(delay time.Duration, fn func()) {
			time.AfterFunc(delay, fn)
		},
	}

	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// SetExecutor 接入执行引擎.
func (o *Orchestrator) SetExecutor(executor StepExecutor) {
	o.executor = executor
}

// SetCompensator 接入补偿引擎.
func (o *Orchestrator) SetCompensator(compensator Compensator) {
	o.compensator = compensator
}

// StartSaga 启动一个新的 Saga.
//
// 查找模板并克隆步骤定义，持久化 pending 状态的聚合
//（含 businessKey 索引），发布 saga.started 事件，随后触发步骤 0 的派发.
// 返回创建时刻的聚合快照.
func (o *Orchestrator) StartSaga(ctx context.Context, templateName string, tenant saga.TenantContext, correlationID, businessKey string, initialData map[string]any) (*saga.Saga, error) {
	tmpl, err := o.registry.Lookup(templateName)
	if err != nil {
		return nil, errors.Join(ErrNotFound, err)
	}

	sg := tmpl.Instantiate(tenant, correlationID, businessKey, initialData)
	if err := o.store.Create(ctx, sg); err != nil {
		return nil, err
	}

	o.metrics.RecordSagaStarted(sg.Name)
	o.publish(ctx, sg, events.EventSagaStarted, map[string]any{
		"template":   sg.Name,
		"totalSteps": sg.TotalSteps,
	})

	o.logger.WithContext(ctx).With(
		logger.String("sagaId", sg.ID),
		logger.String("template", sg.Name),
		logger.String("businessKey", sg.BusinessKey),
	).Info("[Orchestrator] Saga 已启动")

	if err := o.ExecuteNextStep(ctx, sg.ID); err != nil {
		return sg, err
	}
	return sg, nil
}

// ExecuteNextStep 推进 Saga.
// 所有步骤都已完成时收尾整个 Saga，否则把当前步骤交给执行引擎.
func (o *Orchestrator) ExecuteNextStep(ctx context.Context, sagaID string) error {
	if o.executor == nil {
		return ErrNoExecutor
	}

	sg, err := o.store.Get(ctx, sagaID)
	if err != nil {
		return wrapNotFound(err)
	}

	if sg.Status.IsTerminal() || sg.Status == saga.SagaStatusCompensating {
		o.logger.WithContext(ctx).With(
			logger.String("sagaId", sagaID),
			logger.String("status", string(sg.Status)),
		).Debug("[Orchestrator] Saga 已不可推进，忽略")
		return nil
	}

	if sg.CurrentStepIndex >= sg.TotalSteps {
		return o.CompleteSaga(ctx, sagaID)
	}

	return o.executor.ExecuteStep(ctx, sagaID)
}

// HandleStepCompletion 记录步骤完成并推进到下一步.
//
// 步骤不处于 running 状态时视为重复或迟到信号，幂等忽略：
// 不产生状态变更，也不发布事件.
func (o *Orchestrator) HandleStepCompletion(ctx context.Context, stepID string, outputData map[string]any) error {
	var completed *saga.Step

	sg, changed, err := o.withConflictRetry(ctx, "handle_step_completion",
		func(ctx context.Context) (*saga.Saga, error) {
			return o.store.GetByStep(ctx, stepID)
		},
		func(sg *saga.Saga) (bool, error) {
			step, ok := sg.StepByID(stepID)
			if !ok {
				return false, errors.Join(ErrNotFound, saga.ErrStepNotFound)
			}
			if step.Status != saga.StepStatusRunning {
				completed = nil
				return false, nil
			}
			step.MarkCompleted(outputData, time.Now())
			sg.CurrentStepIndex++
			completed = step
			return true, nil
		})
	if err != nil {
		return err
	}
	if !changed {
		o.logger.WithContext(ctx).With(
			logger.String("stepId", stepID),
		).Debug("[Orchestrator] 步骤已非执行中，忽略重复完成信号")
		return nil
	}

	o.metrics.RecordStepExecuted(completed.Type, "completed", sinceStep(completed))
	o.publish(ctx, sg, events.EventStepCompleted, map[string]any{
		"stepId":   completed.ID,
		"stepName": completed.Name,
		"sequence": completed.Sequence,
	})

	o.logger.WithContext(ctx).With(
		logger.String("sagaId", sg.ID),
		logger.String("stepName", completed.Name),
		logger.Int("sequence", completed.Sequence),
	).Info("[Orchestrator] 步骤已完成")

	return o.ExecuteNextStep(ctx, sg.ID)
}

// HandleStepFailure 记录步骤失败.
//
// 重试预算未耗尽时，步骤回到 pending 并按退避策略调度重新派发；
// 预算耗尽时发布 step.failed 事件并启动补偿.
func (o *Orchestrator) HandleStepFailure(ctx context.Context, stepID, errorMessage string, errorData map[string]any) error {
	var (
		failed  *saga.Step
		retried bool
	)

	sg, changed, err := o.withConflictRetry(ctx, "handle_step_failure",
		func(ctx context.Context) (*saga.Saga, error) {
			return o.store.GetByStep(ctx, stepID)
		},
		func(sg *saga.Saga) (bool, error) {
			step, ok := sg.StepByID(stepID)
			if !ok {
				return false, errors.Join(ErrNotFound, saga.ErrStepNotFound)
			}
			if step.Status != saga.StepStatusRunning {
				return false, nil
			}
			if step.RetryCount < step.MaxRetries {
				step.ResetForRetry()
				failed, retried = step, true
				return true, nil
			}
			step.MarkFailed(errorMessage, errorData)
			failed, retried = step, false
			return true, nil
		})
	if err != nil {
		return err
	}
	if !changed {
		o.logger.WithContext(ctx).With(
			logger.String("stepId", stepID),
		).Debug("[Orchestrator] 步骤已非执行中，忽略重复失败信号")
		return nil
	}

	if retried {
		o.metrics.RecordStepRetry(failed.Type)
		delay := o.backoff(failed.RetryCount-1, o.retryBaseDelay)

		o.logger.WithContext(ctx).With(
			logger.String("sagaId", sg.ID),
			logger.String("stepName", failed.Name),
			logger.Int("retryCount", failed.RetryCount),
			logger.Duration("delay", delay),
			logger.String("error", errorMessage),
		).Warn("[Orchestrator] 步骤失败，调度重试")

		sagaID, correlationID := sg.ID, sg.CorrelationID
		o.schedule(delay, func() {
			retryCtx := logger.ContextWithCorrelationID(context.Background(), correlationID)
			if err := o.ExecuteNextStep(retryCtx, sagaID); err != nil {
				o.logger.With(
					logger.String("sagaId", sagaID),
					logger.Err(err),
				).Error("[Orchestrator] 重试派发失败")
			}
		})
		return nil
	}

	o.metrics.RecordStepExecuted(failed.Type, "failed", sinceStep(failed))
	o.publish(ctx, sg, events.EventStepFailed, map[string]any{
		"stepId":   failed.ID,
		"stepName": failed.Name,
		"error":    errorMessage,
	})

	o.logger.WithContext(ctx).With(
		logger.String("sagaId", sg.ID),
		logger.String("stepName", failed.Name),
		logger.String("error", errorMessage),
	).Error("[Orchestrator] 步骤重试耗尽，启动补偿")

	return o.StartCompensation(ctx, sg.ID, errorMessage)
}

// StartCompensation 将 Saga 转入补偿流程.
// Saga 已处于补偿中或终态时幂等忽略.
func (o *Orchestrator) StartCompensation(ctx context.Context, sagaID, reason string) error {
	if o.compensator == nil {
		return ErrNoCompensator
	}

	sg, changed, err := o.withConflictRetry(ctx, "start_compensation",
		func(ctx context.Context) (*saga.Saga, error) {
			return o.store.Get(ctx, sagaID)
		},
		func(sg *saga.Saga) (bool, error) {
			if sg.Status == saga.SagaStatusCompensating || sg.Status.IsTerminal() {
				return false, nil
			}
			if err := sg.Transition(saga.SagaStatusCompensating); err != nil {
				return false, err
			}
			return true, nil
		})
	if err != nil {
		return err
	}
	if !changed {
		o.logger.WithContext(ctx).With(
			logger.String("sagaId", sagaID),
		).Debug("[Orchestrator] Saga 已在补偿中或已终结，忽略")
		return nil
	}

	o.publish(ctx, sg, events.EventCompensationStarted, map[string]any{
		"reason": reason,
	})

	o.logger.WithContext(ctx).With(
		logger.String("sagaId", sagaID),
		logger.String("reason", reason),
	).Warn("[Orchestrator] 补偿已启动")

	return o.compensator.Compensate(ctx, sagaID)
}

// CompleteSaga 收尾成功完成的 Saga.
func (o *Orchestrator) CompleteSaga(ctx context.Context, sagaID string) error {
	sg, changed, err := o.withConflictRetry(ctx, "complete_saga",
		func(ctx context.Context) (*saga.Saga, error) {
			return o.store.Get(ctx, sagaID)
		},
		func(sg *saga.Saga) (bool, error) {
			if sg.Status == saga.SagaStatusCompleted {
				return false, nil
			}
			if err := sg.Transition(saga.SagaStatusCompleted); err != nil {
				return false, err
			}
			now := time.Now()
			sg.CompletedAt = &now
			return true, nil
		})
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}

	o.metrics.RecordSagaCompleted(sg.Name, time.Since(sg.StartedAt))
	o.publish(ctx, sg, events.EventSagaCompleted, map[string]any{
		"template": sg.Name,
	})

	o.logger.WithContext(ctx).With(
		logger.String("sagaId", sg.ID),
		logger.String("template", sg.Name),
		logger.Duration("duration", time.Since(sg.StartedAt)),
	).Info("[Orchestrator] Saga 已完成")
	return nil
}

// CompleteCompensation 收尾补偿完成的 Saga.
func (o *Orchestrator) CompleteCompensation(ctx context.Context, sagaID string) error {
	sg, changed, err := o.withConflictRetry(ctx, "complete_compensation",
		func(ctx context.Context) (*saga.Saga, error) {
			return o.store.Get(ctx, sagaID)
		},
		func(sg *saga.Saga) (bool, error) {
			if sg.Status == saga.SagaStatusCompensated {
				return false, nil
			}
			if err := sg.Transition(saga.SagaStatusCompensated); err != nil {
				return false, err
			}
			now := time.Now()
			sg.CompensatedAt = &now
			return true, nil
		})
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}

	o.metrics.RecordSagaCompensated(sg.Name)
	o.publish(ctx, sg, events.EventSagaCompensated, map[string]any{
		"template": sg.Name,
	})

	o.logger.WithContext(ctx).With(
		logger.String("sagaId", sg.ID),
		logger.String("template", sg.Name),
	).Warn("[Orchestrator] Saga 已补偿完毕")
	return nil
}

// GetSagaStatus 只读查询 Saga 当前状态.
func (o *Orchestrator) GetSagaStatus(ctx context.Context, sagaID string) (*saga.Saga, error) {
	sg, err := o.store.Get(ctx, sagaID)
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return sg, nil
}

// withConflictRetry 有界乐观锁冲突重试.
//
// 每轮重新加载聚合并重放变更；apply 返回 false 表示无需写入
//（重复信号），直接结束。版本冲突重试耗尽后返回 ErrConcurrencyConflict.
func (o *Orchestrator) withConflictRetry(ctx context.Context, operation string, load func(context.Context) (*saga.Saga, error), apply func(*saga.Saga) (bool, error)) (*saga.Saga, bool, error) {
	for attempt := 0; attempt <= o.conflictRetries; attempt++ {
		sg, err := load(ctx)
		if err != nil {
			return nil, false, wrapNotFound(err)
		}

		changed, err := apply(sg)
		if err != nil {
			return nil, false, err
		}
		if !changed {
			return sg, false, nil
		}

		if err := o.store.Save(ctx, sg); err != nil {
			if errors.Is(err, saga.ErrVersionConflict) {
				o.metrics.RecordVersionConflict(operation)
				o.logger.WithContext(ctx).With(
					logger.String("operation", operation),
					logger.String("sagaId", sg.ID),
					logger.Int("attempt", attempt+1),
				).Debug("[Orchestrator] 版本冲突，重新加载")
				continue
			}
			return nil, false, err
		}
		return sg, true, nil
	}
	return nil, false, ErrConcurrencyConflict
}

// publish 发布生命周期事件，失败只记录日志，不影响主流程.
func (o *Orchestrator) publish(ctx context.Context, sg *saga.Saga, eventType events.EventType, data map[string]any) {
	ev := events.NewEvent(eventType, sg.ID, data)
	ev.TenantID = sg.TenantID
	ev.BusinessUnitID = sg.BusinessUnitID
	ev.CorrelationID = sg.CorrelationID
	ev.BusinessKey = sg.BusinessKey

	if err := o.publisher.Publish(ctx, ev); err != nil {
		o.logger.WithContext(ctx).With(
			logger.String("eventType", string(eventType)),
			logger.String("sagaId", sg.ID),
			logger.Err(err),
		).Error("[Orchestrator] 事件发布失败")
	}
}

// wrapNotFound 把存储层的不存在错误并入 NotFound 分类.
func wrapNotFound(err error) error {
	if errors.Is(err, saga.ErrSagaNotFound) || errors.Is(err, saga.ErrStepNotFound) {
		return errors.Join(ErrNotFound, err)
	}
	return err
}

// sinceStep 计算步骤从开始执行到现在的耗时.
func sinceStep(step *saga.Step) time.Duration {
	if step.StartedAt == nil {
		return 0
	}
	return time.Since(*step.StartedAt)
}

// Package saga 提供支付 Saga 的聚合模型与状态存储.
//
// Saga 表示一笔跨服务业务事务的持久化状态，由编排器驱动；
// 步骤按 sequence 严格串行执行，失败时按逆序补偿。
// 所有写入通过 Store 的乐观并发控制（Version 比对）提交。
package saga

import (
	"time"

	"github.com/google/uuid"
)

// SagaStatus Saga 状态.
type SagaStatus string

const (
	// SagaStatusPending 待执行.
	SagaStatusPending SagaStatus = "pending"

	// SagaStatusRunning 执行中.
	SagaStatusRunning SagaStatus = "running"

	// SagaStatusCompleted 执行完成.
	SagaStatusCompleted SagaStatus = "completed"

	// SagaStatusFailed 执行失败.
	SagaStatusFailed SagaStatus = "failed"

	// SagaStatusCompensating 补偿中.
	SagaStatusCompensating SagaStatus = "compensating"

	// SagaStatusCompensated 已补偿.
	SagaStatusCompensated SagaStatus = "compensated"

	// SagaStatusCancelled 已取消.
	SagaStatusCancelled SagaStatus = "cancelled"

	// SagaStatusTimeout 已超时.
	SagaStatusTimeout SagaStatus = "timeout"
)

// IsTerminal 是否为终态.
func (s SagaStatus) IsTerminal() bool {
	switch s {
	case SagaStatusCompleted, SagaStatusCompensated, SagaStatusFailed,
		SagaStatusCancelled, SagaStatusTimeout:
		return true
	default:
		return false
	}
}

// validTransitions 合法的状态迁移.
// 状态沿两条单调路径推进：
// pending → running → completed 或 pending → running → compensating → compensated.
var validTransitions = map[SagaStatus][]SagaStatus{
	SagaStatusPending:      {SagaStatusRunning, SagaStatusCancelled},
	SagaStatusRunning:      {SagaStatusCompleted, SagaStatusCompensating, SagaStatusFailed, SagaStatusTimeout},
	SagaStatusCompensating: {SagaStatusCompensated, SagaStatusFailed},
}

// CanTransitionTo 判断是否允许迁移到目标状态.
func (s SagaStatus) CanTransitionTo(target SagaStatus) bool {
	for _, t := range validTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// TenantContext 租户上下文.
type TenantContext struct {
	TenantID       string `json:"tenant_id"`
	BusinessUnitID string `json:"business_unit_id"`
}

// Saga 一笔业务事务的持久化聚合.
//
// Saga 独占其 Steps，Step 不跨 Saga 共享；
// 对 Saga 或任一 Step 的修改都必须经由 Store.Save 的版本检查提交。
type Saga struct {
	// ID Saga 唯一标识
	ID string `json:"id"`

	// Name 实例化所用的模板名称
	Name string `json:"name"`

	// TenantID 租户标识
	TenantID string `json:"tenant_id"`

	// BusinessUnitID 业务单元标识
	BusinessUnitID string `json:"business_unit_id"`

	// CorrelationID 链路追踪标识
	CorrelationID string `json:"correlation_id"`

	// BusinessKey 业务键（如支付单号），用于异步事件回溯归属 Saga
	BusinessKey string `json:"business_key"`

	// Status 当前状态
	Status SagaStatus `json:"status"`

	// Steps 有序步骤列表，sequence 从 0 连续递增
	Steps []*Step `json:"steps"`

	// TotalSteps 步骤总数
	TotalSteps int `json:"total_steps"`

	// CurrentStepIndex 当前步骤索引，0 ≤ CurrentStepIndex ≤ TotalSteps
	CurrentStepIndex int `json:"current_step_index"`

	// Data 贯穿流程的业务数据
	Data map[string]any `json:"data,omitempty"`

	// StartedAt 开始时间
	StartedAt time.Time `json:"started_at"`

	// CompletedAt 完成时间
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// CompensatedAt 补偿完成时间
	CompensatedAt *time.Time `json:"compensated_at,omitempty"`

	// Version 乐观并发版本号，每次成功保存后递增
	Version int64 `json:"version"`
}

// Transition 迁移到目标状态，非法迁移返回 ErrInvalidTransition.
func (s *Saga) Transition(target SagaStatus) error {
	if s.Status == target {
		return nil
	}
	if !s.Status.CanTransitionTo(target) {
		return ErrInvalidTransition
	}
	s.Status = target
	return nil
}

// CurrentStep 返回当前待执行步骤；所有步骤都已推进完时返回 false.
func (s *Saga) CurrentStep() (*Step, bool) {
	if s.CurrentStepIndex < 0 || s.CurrentStepIndex >= len(s.Steps) {
		return nil, false
	}
	return s.Steps[s.CurrentStepIndex], true
}

// StepByID 根据步骤标识查找步骤.
func (s *Saga) StepByID(stepID string) (*Step, bool) {
	for _, step := range s.Steps {
		if step.ID == stepID {
			return step, true
		}
	}
	return nil, false
}

// RunningStepByType 查找指定类型且处于执行中的步骤.
// 用于把异步领域事件归属到具体步骤.
func (s *Saga) RunningStepByType(stepType string) (*Step, bool) {
	for _, step := range s.Steps {
		if step.Type == stepType && step.Status == StepStatusRunning {
			return step, true
		}
	}
	return nil, false
}

// Validate 校验聚合不变量.
func (s *Saga) Validate() error {
	if s.CurrentStepIndex < 0 || s.CurrentStepIndex > s.TotalSteps {
		return ErrInvalidStepIndex
	}
	if len(s.Steps) != s.TotalSteps {
		return ErrInvalidStepIndex
	}
	for i, step := range s.Steps {
		if step.Sequence != i {
			return ErrInvalidSequence
		}
	}
	return nil
}

// newSagaID 生成 Saga 标识.
func newSagaID() string {
	return uuid.NewString()
}

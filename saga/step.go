package saga

import (
	"time"

	"github.com/google/uuid"
)

// StepStatus 步骤状态.
type StepStatus string

const (
	// StepStatusPending 待执行.
	StepStatusPending StepStatus = "pending"

	// StepStatusRunning 执行中.
	StepStatusRunning StepStatus = "running"

	// StepStatusCompleted 执行完成.
	StepStatusCompleted StepStatus = "completed"

	// StepStatusFailed 执行失败.
	StepStatusFailed StepStatus = "failed"

	// StepStatusCompensated 已补偿.
	StepStatusCompensated StepStatus = "compensated"
)

// Step Saga 中的一个执行单元，对应一次下游服务调用.
//
// 步骤只在 pending 状态下被派发；执行中或终态的步骤
// 会忽略重复的派发请求，以此抵御消息重投.
type Step struct {
	// ID 步骤唯一标识
	ID string `json:"id"`

	// SagaID 所属 Saga
	SagaID string `json:"saga_id"`

	// Sequence 步骤序号，从 0 连续递增
	Sequence int `json:"sequence"`

	// Name 步骤名称
	Name string `json:"name"`

	// Type 步骤类型，决定派发到哪个下游目标
	Type string `json:"type"`

	// Status 当前状态
	Status StepStatus `json:"status"`

	// ServiceName 目标服务名称
	ServiceName string `json:"service_name"`

	// Endpoint 正向操作端点
	Endpoint string `json:"endpoint"`

	// CompensationEndpoint 补偿端点，为空表示该步骤不可补偿，回滚时跳过
	CompensationEndpoint string `json:"compensation_endpoint,omitempty"`

	// RetryCount 已重试次数
	RetryCount int `json:"retry_count"`

	// MaxRetries 最大重试次数
	MaxRetries int `json:"max_retries"`

	// InputData 输入数据
	InputData map[string]any `json:"input_data,omitempty"`

	// OutputData 输出数据（下游响应）
	OutputData map[string]any `json:"output_data,omitempty"`

	// ErrorMessage 错误信息
	ErrorMessage string `json:"error_message,omitempty"`

	// ErrorData 错误附加数据
	ErrorData map[string]any `json:"error_data,omitempty"`

	// StartedAt 开始时间
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt 完成时间
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Compensatable 是否可补偿.
func (s *Step) Compensatable() bool {
	return s.CompensationEndpoint != ""
}

// MarkRunning 标记步骤开始执行.
func (s *Step) MarkRunning(now time.Time) {
	s.Status = StepStatusRunning
	s.StartedAt = &now
}

// MarkCompleted 标记步骤完成并记录输出.
func (s *Step) MarkCompleted(output map[string]any, now time.Time) {
	s.Status = StepStatusCompleted
	s.OutputData = output
	s.CompletedAt = &now
}

// MarkFailed 标记步骤失败并记录错误.
func (s *Step) MarkFailed(message string, errorData map[string]any) {
	s.Status = StepStatusFailed
	s.ErrorMessage = message
	s.ErrorData = errorData
}

// MarkCompensated 标记步骤已补偿.
func (s *Step) MarkCompensated() {
	s.Status = StepStatusCompensated
}

// ResetForRetry 重置为待执行以便重新派发.
// 重试必须回到 pending，保持"仅在 pending 状态下派发"的不变量.
func (s *Step) ResetForRetry() {
	s.RetryCount++
	s.Status = StepStatusPending
}

// newStepID 生成步骤标识.
func newStepID() string {
	return uuid.NewString()
}

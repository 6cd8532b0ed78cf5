// Package dispatch 提供步骤派发表与下游调用客户端.
//
// 步骤类型到下游目标的映射是数据驱动的：
// 从配置构建只读的派发表，派发时按 stepType 查表解析目标，
// 而不是在代码里对类型做条件分支.
package dispatch

import (
	"time"
)

// Mode 调用模式.
type Mode string

const (
	// ModeSync 同步模式，响应即步骤结果.
	ModeSync Mode = "sync"

	// ModeAsync 异步模式，调用仅确认受理，
	// 真正的结果稍后以领域事件形式到达.
	ModeAsync Mode = "async"
)

// Target 一类步骤的下游目标.
type Target struct {
	// StepType 步骤类型
	StepType string `json:"step_type" yaml:"step_type" mapstructure:"step_type"`

	// BaseURL 服务基地址
	BaseURL string `json:"base_url" yaml:"base_url" mapstructure:"base_url"`

	// Timeout 单次调用超时
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// Mode 调用模式：sync 或 async
	Mode Mode `json:"mode" yaml:"mode" mapstructure:"mode"`

	// MaxAttempts 单次派发内的传输层重试次数
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts" mapstructure:"max_attempts"`
}

// Table 步骤派发表，启动时构建，运行期只读.
type Table struct {
	targets map[string]Target
}

// NewTable 构建派发表.
func NewTable(targets []Target) (*Table, error) {
	t := &Table{targets: make(map[string]Target, len(targets))}
	for _, target := range targets {
		if target.StepType == "" {
			return nil, ErrEmptyStepType
		}
		if target.BaseURL == "" {
			return nil, ErrEmptyBaseURL
		}
		if _, exists := t.targets[target.StepType]; exists {
			return nil, ErrDuplicateStepType
		}
		if target.Mode == "" {
			target.Mode = ModeSync
		}
		if target.Timeout <= 0 {
			target.Timeout = 30 * time.Second
		}
		if target.MaxAttempts <= 0 {
			target.MaxAttempts = 1
		}
		t.targets[target.StepType] = target
	}
	return t, nil
}

// MustNewTable 构建派发表，失败时 panic.
func MustNewTable(targets []Target) *Table {
	t, err := NewTable(targets)
	if err != nil {
		panic(err)
	}
	return t
}

// Resolve 按步骤类型解析下游目标.
func (t *Table) Resolve(stepType string) (Target, error) {
	target, ok := t.targets[stepType]
	if !ok {
		return Target{}, ErrTargetNotFound
	}
	return target, nil
}

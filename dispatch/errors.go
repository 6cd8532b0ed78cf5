package dispatch

import "errors"

// 预定义错误.
var (
	// ErrTargetNotFound 派发表中没有对应的步骤类型.
	ErrTargetNotFound = errors.New("dispatch: 未配置的步骤类型")

	// ErrEmptyStepType 步骤类型为空.
	ErrEmptyStepType = errors.New("dispatch: 步骤类型为空")

	// ErrEmptyBaseURL 服务基地址为空.
	ErrEmptyBaseURL = errors.New("dispatch: 服务基地址为空")

	// ErrDuplicateStepType 步骤类型重复.
	ErrDuplicateStepType = errors.New("dispatch: 步骤类型重复")

	// ErrCallFailed 下游返回非 2xx 响应.
	ErrCallFailed = errors.New("dispatch: 下游调用失败")
)

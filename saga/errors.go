package saga

import "errors"

// 预定义错误.
//
// 所有错误均可通过 errors.Is 进行判断.
var (
	// ErrSagaNotFound Saga 不存在.
	ErrSagaNotFound = errors.New("saga: Saga 不存在")

	// ErrStepNotFound 步骤不存在.
	ErrStepNotFound = errors.New("saga: 步骤不存在")

	// ErrTemplateNotFound 模板不存在.
	ErrTemplateNotFound = errors.New("saga: 模板不存在")

	// ErrDuplicateTemplate 模板名称重复.
	ErrDuplicateTemplate = errors.New("saga: 模板名称重复")

	// ErrEmptyTemplateName 模板名称为空.
	ErrEmptyTemplateName = errors.New("saga: 模板名称为空")

	// ErrNoSteps 模板没有定义步骤.
	ErrNoSteps = errors.New("saga: 没有定义步骤")

	// ErrInvalidTransition 非法的状态迁移.
	ErrInvalidTransition = errors.New("saga: 非法的状态迁移")

	// ErrInvalidStepIndex 步骤索引越界.
	ErrInvalidStepIndex = errors.New("saga: 步骤索引越界")

	// ErrInvalidSequence 步骤序号不连续.
	ErrInvalidSequence = errors.New("saga: 步骤序号不连续")

	// ErrVersionConflict 版本冲突，写入时版本号已变化.
	ErrVersionConflict = errors.New("saga: 版本冲突")

	// ErrDuplicateSaga Saga 已存在.
	ErrDuplicateSaga = errors.New("saga: Saga 已存在")
)

package consumer

import "errors"

// 预定义错误.
var (
	// ErrNilCoordinator 编排器为空.
	ErrNilCoordinator = errors.New("consumer: 编排器为空")

	// ErrNilStore 存储为空.
	ErrNilStore = errors.New("consumer: 存储为空")

	// ErrNilDeadLetter 死信发布器为空.
	ErrNilDeadLetter = errors.New("consumer: 死信发布器为空")

	// ErrNilProducer 生产者为空.
	ErrNilProducer = errors.New("consumer: 生产者为空")

	// ErrEmptyTopic 主题为空.
	ErrEmptyTopic = errors.New("consumer: 主题为空")

	// ErrValidation 事件校验失败.
	ErrValidation = errors.New("consumer: 事件校验失败")

	// ErrUnroutable 事件无法路由到已知的步骤类型.
	ErrUnroutable = errors.New("consumer: 事件类型未映射到步骤类型")
)

package executor

import "errors"

// 预定义错误.
var (
	// ErrNilStore 存储为空.
	ErrNilStore = errors.New("executor: 存储为空")

	// ErrNilTable 派发表为空.
	ErrNilTable = errors.New("executor: 派发表为空")

	// ErrNilCaller 调用客户端为空.
	ErrNilCaller = errors.New("executor: 调用客户端为空")

	// ErrNilPublisher 事件发布器为空.
	ErrNilPublisher = errors.New("executor: 事件发布器为空")

	// ErrNoReporter 结果上报回调未接入.
	ErrNoReporter = errors.New("executor: 结果上报回调未接入")

	// ErrConcurrencyConflict 并发冲突重试耗尽.
	ErrConcurrencyConflict = errors.New("executor: 并发冲突重试耗尽")
)

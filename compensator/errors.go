package compensator

import "errors"

// 预定义错误.
var (
	// ErrNilStore 存储为空.
	ErrNilStore = errors.New("compensator: 存储为空")

	// ErrNilTable 派发表为空.
	ErrNilTable = errors.New("compensator: 派发表为空")

	// ErrNilCaller 调用客户端为空.
	ErrNilCaller = errors.New("compensator: 调用客户端为空")

	// ErrNoCompleter 收尾回调未接入.
	ErrNoCompleter = errors.New("compensator: 收尾回调未接入")

	// ErrConcurrencyConflict 并发冲突重试耗尽.
	ErrConcurrencyConflict = errors.New("compensator: 并发冲突重试耗尽")
)

package orchestrator

import "errors"

// 错误分类.
// 每类是一个独立哨兵，调用方通过 errors.Is 分支处理，
// 不依赖类型层次；包装使用 errors.Join / %w.
var (
	// ErrValidation 入站事件格式错误或字段缺失，不产生任何状态变更.
	ErrValidation = errors.New("orchestrator: 事件校验失败")

	// ErrNotFound Saga、步骤或模板不存在，直接返回调用方，不重试.
	ErrNotFound = errors.New("orchestrator: 资源不存在")

	// ErrTransientExecution 下游超时、服务端错误或连接失败，
	// 在重试预算内自动重试，耗尽后升级为补偿.
	ErrTransientExecution = errors.New("orchestrator: 步骤执行瞬时失败")

	// ErrCompensation 补偿调用失败，记录日志后继续补偿其余步骤.
	ErrCompensation = errors.New("orchestrator: 补偿调用失败")

	// ErrConcurrencyConflict 乐观锁冲突重试耗尽.
	ErrConcurrencyConflict = errors.New("orchestrator: 并发冲突重试耗尽")
)

// 构造参数错误.
var (
	// ErrNilStore 存储为空.
	ErrNilStore = errors.New("orchestrator: 存储为空")

	// ErrNilRegistry 模板注册表为空.
	ErrNilRegistry = errors.New("orchestrator: 模板注册表为空")

	// ErrNilPublisher 事件发布器为空.
	ErrNilPublisher = errors.New("orchestrator: 事件发布器为空")

	// ErrNoExecutor 执行引擎未接入.
	ErrNoExecutor = errors.New("orchestrator: 执行引擎未接入")

	// ErrNoCompensator 补偿引擎未接入.
	ErrNoCompensator = errors.New("orchestrator: 补偿引擎未接入")
)

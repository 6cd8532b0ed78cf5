package sweeper

import "errors"

// 预定义错误.
var (
	// ErrNilStore 存储为空.
	ErrNilStore = errors.New("sweeper: 存储为空")

	// ErrNilTable 派发表为空.
	ErrNilTable = errors.New("sweeper: 派发表为空")

	// ErrNilHandler 失败处理回调为空.
	ErrNilHandler = errors.New("sweeper: 失败处理回调为空")

	// ErrAlreadyStarted 巡检已启动.
	ErrAlreadyStarted = errors.New("sweeper: 巡检已启动")

	// ErrInvalidSpec 无效的 cron 表达式.
	ErrInvalidSpec = errors.New("sweeper: 无效的 cron 表达式")
)

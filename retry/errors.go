package retry

import "errors"

// 预定义错误.
var (
	// ErrMaxAttempts 已达到最大重试次数.
	ErrMaxAttempts = errors.New("retry: 已达到最大重试次数")
)

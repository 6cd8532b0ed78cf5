package logger

import "errors"

// 预定义错误.
var (
	// ErrNilConfig 配置为空.
	ErrNilConfig = errors.New("logger: 配置为空")

	// ErrInvalidLevel 不支持的日志级别.
	ErrInvalidLevel = errors.New("logger: 不支持的日志级别")

	// ErrInvalidFormat 不支持的输出格式.
	ErrInvalidFormat = errors.New("logger: 不支持的输出格式")
)

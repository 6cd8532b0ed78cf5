package config

import "errors"

// 预定义错误常量.
var (
	// ErrFileNotFound 配置文件不存在.
	ErrFileNotFound = errors.New("config: 配置文件不存在")

	// ErrEmptyServiceName 服务名称为空.
	ErrEmptyServiceName = errors.New("config: 服务名称为空")

	// ErrNoTemplates 未配置任何 Saga 模板.
	ErrNoTemplates = errors.New("config: 未配置任何 Saga 模板")

	// ErrNoDispatchTargets 未配置任何派发目标.
	ErrNoDispatchTargets = errors.New("config: 未配置任何派发目标")

	// ErrUnknownStore 不支持的存储类型.
	ErrUnknownStore = errors.New("config: 不支持的存储类型")

	// ErrMissingTemplateRef 选择策略引用了不存在的模板.
	ErrMissingTemplateRef = errors.New("config: 选择策略引用了不存在的模板")
)

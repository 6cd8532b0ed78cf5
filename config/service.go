package config

import (
	"fmt"
	"time"

	"github.com/Tsukikage7/payment-saga/database"
	"github.com/Tsukikage7/payment-saga/dispatch"
	"github.com/Tsukikage7/payment-saga/logger"
	"github.com/Tsukikage7/payment-saga/messaging"
	"github.com/Tsukikage7/payment-saga/metrics"
	"github.com/Tsukikage7/payment-saga/saga"
)

// 支持的 Saga 存储类型.
const (
	StoreMemory = "memory"
	StoreGorm   = "gorm"
	StoreRedis  = "redis"
)

// Config 服务完整配置.
type Config struct {
	// Service 服务基础信息
	Service ServiceConfig `json:"service" yaml:"service" mapstructure:"service"`

	// Logger 日志配置
	Logger logger.Config `json:"logger" yaml:"logger" mapstructure:"logger"`

	// Messaging 消息队列配置
	Messaging messaging.Config `json:"messaging" yaml:"messaging" mapstructure:"messaging"`

	// Store Saga 存储类型：memory, gorm, redis
	Store string `json:"store" yaml:"store" mapstructure:"store"`

	// Database 数据库配置（store 为 gorm 时必填）
	Database *database.Config `json:"database" yaml:"database" mapstructure:"database"`

	// Redis Redis 配置（store 为 redis 时必填）
	Redis *RedisConfig `json:"redis" yaml:"redis" mapstructure:"redis"`

	// Metrics 指标监控配置
	Metrics metrics.Config `json:"metrics" yaml:"metrics" mapstructure:"metrics"`

	// Orchestrator 编排器配置
	Orchestrator OrchestratorConfig `json:"orchestrator" yaml:"orchestrator" mapstructure:"orchestrator"`

	// Dispatch 步骤派发目标列表
	Dispatch []dispatch.Target `json:"dispatch" yaml:"dispatch" mapstructure:"dispatch"`

	// Templates Saga 模板定义列表
	Templates []TemplateConfig `json:"templates" yaml:"templates" mapstructure:"templates"`

	// Selection 模板选择策略
	Selection SelectionConfig `json:"selection" yaml:"selection" mapstructure:"selection"`

	// Topics 事件类型到主题的映射，缺省使用事件类型本身作为主题
	Topics map[string]string `json:"topics" yaml:"topics" mapstructure:"topics"`

	// Consumer 事件消费配置
	Consumer ConsumerConfig `json:"consumer" yaml:"consumer" mapstructure:"consumer"`

	// Sweeper 卡死步骤巡检配置
	Sweeper SweeperConfig `json:"sweeper" yaml:"sweeper" mapstructure:"sweeper"`
}

// ServiceConfig 服务基础信息.
type ServiceConfig struct {
	// Name 服务名称
	Name string `json:"name" yaml:"name" mapstructure:"name"`

	// HTTPAddr 管理端口监听地址（指标、健康检查）
	HTTPAddr string `json:"http_addr" yaml:"http_addr" mapstructure:"http_addr"`
}

// RedisConfig Redis 连接配置.
type RedisConfig struct {
	// Addr 服务器地址
	Addr string `json:"addr" yaml:"addr" mapstructure:"addr"`

	// Password 密码
	Password string `json:"password" yaml:"password" mapstructure:"password"`

	// DB 数据库编号
	DB int `json:"db" yaml:"db" mapstructure:"db"`
}

// OrchestratorConfig 编排器配置.
type OrchestratorConfig struct {
	// ConflictRetries 乐观锁冲突时的最大重试次数
	ConflictRetries int `json:"conflict_retries" yaml:"conflict_retries" mapstructure:"conflict_retries"`

	// RetryBackoff 步骤重试退避策略：fixed, exponential, linear
	RetryBackoff string `json:"retry_backoff" yaml:"retry_backoff" mapstructure:"retry_backoff"`

	// RetryBaseDelay 步骤重试基础等待时间
	RetryBaseDelay time.Duration `json:"retry_base_delay" yaml:"retry_base_delay" mapstructure:"retry_base_delay"`
}

// TemplateConfig Saga 模板定义.
type TemplateConfig struct {
	// Name 模板名称
	Name string `json:"name" yaml:"name" mapstructure:"name"`

	// Version 模板版本
	Version int `json:"version" yaml:"version" mapstructure:"version"`

	// Steps 步骤定义序列
	Steps []saga.StepDefinition `json:"steps" yaml:"steps" mapstructure:"steps"`
}

// SelectionConfig 模板选择策略.
type SelectionConfig struct {
	// HighValueThreshold 高额支付金额阈值
	HighValueThreshold float64 `json:"high_value_threshold" yaml:"high_value_threshold" mapstructure:"high_value_threshold"`

	// HighValueTemplate 高额支付模板名称
	HighValueTemplate string `json:"high_value_template" yaml:"high_value_template" mapstructure:"high_value_template"`

	// FastPathTemplate 快速通道模板名称
	FastPathTemplate string `json:"fast_path_template" yaml:"fast_path_template" mapstructure:"fast_path_template"`

	// DefaultTemplate 默认模板名称
	DefaultTemplate string `json:"default_template" yaml:"default_template" mapstructure:"default_template"`
}

// ConsumerConfig 事件消费配置.
type ConsumerConfig struct {
	// GroupID 消费者组 ID
	GroupID string `json:"group_id" yaml:"group_id" mapstructure:"group_id"`

	// TriggerTopic 支付发起事件主题
	TriggerTopic string `json:"trigger_topic" yaml:"trigger_topic" mapstructure:"trigger_topic"`

	// ResolverTopics 下游异步响应主题列表
	ResolverTopics []string `json:"resolver_topics" yaml:"resolver_topics" mapstructure:"resolver_topics"`

	// EventStepTypes 响应事件类型到步骤类型的映射
	EventStepTypes map[string]string `json:"event_step_types" yaml:"event_step_types" mapstructure:"event_step_types"`

	// DeadLetterTopic 死信主题
	DeadLetterTopic string `json:"dead_letter_topic" yaml:"dead_letter_topic" mapstructure:"dead_letter_topic"`
}

// TriggerGroupID 触发消费者的消费者组 ID.
//
// 触发消费者与响应消费者订阅不同的主题集合，
// 共用一个消费者组会引发无谓的重平衡，因此各自派生独立组 ID.
func (c ConsumerConfig) TriggerGroupID() string {
	return c.GroupID + "-trigger"
}

// ResolverGroupID 响应消费者的消费者组 ID.
func (c ConsumerConfig) ResolverGroupID() string {
	return c.GroupID + "-resolver"
}

// SweeperConfig 卡死步骤巡检配置.
type SweeperConfig struct {
	// Enabled 是否启用巡检
	Enabled bool `json:"enabled" yaml:"enabled" mapstructure:"enabled"`

	// Spec cron 表达式，缺省每分钟一次
	Spec string `json:"spec" yaml:"spec" mapstructure:"spec"`

	// Multiplier 判定卡死的超时放大系数
	Multiplier float64 `json:"multiplier" yaml:"multiplier" mapstructure:"multiplier"`
}

// Validate 验证配置.
func (c *Config) Validate() error {
	if c.Service.Name == "" {
		return ErrEmptyServiceName
	}

	switch c.Store {
	case "", StoreMemory, StoreGorm, StoreRedis:
	default:
		return fmt.Errorf("%w: %s", ErrUnknownStore, c.Store)
	}

	if len(c.Templates) == 0 {
		return ErrNoTemplates
	}
	if len(c.Dispatch) == 0 {
		return ErrNoDispatchTargets
	}

	names := make(map[string]struct{}, len(c.Templates))
	for _, t := range c.Templates {
		names[t.Name] = struct{}{}
	}
	for _, ref := range []string{c.Selection.DefaultTemplate, c.Selection.HighValueTemplate, c.Selection.FastPathTemplate} {
		if ref == "" {
			continue
		}
		if _, ok := names[ref]; !ok {
			return fmt.Errorf("%w: %s", ErrMissingTemplateRef, ref)
		}
	}

	c.applyDefaults()
	return nil
}

// applyDefaults 应用默认值.
func (c *Config) applyDefaults() {
	if c.Store == "" {
		c.Store = StoreMemory
	}
	if c.Service.HTTPAddr == "" {
		c.Service.HTTPAddr = ":8080"
	}
	if c.Selection.HighValueThreshold == 0 {
		c.Selection.HighValueThreshold = 10000
	}
	if c.Orchestrator.ConflictRetries == 0 {
		c.Orchestrator.ConflictRetries = 3
	}
	if c.Orchestrator.RetryBackoff == "" {
		c.Orchestrator.RetryBackoff = "exponential"
	}
	if c.Orchestrator.RetryBaseDelay == 0 {
		c.Orchestrator.RetryBaseDelay = time.Second
	}
	if c.Sweeper.Spec == "" {
		c.Sweeper.Spec = "@every 1m"
	}
	if c.Sweeper.Multiplier == 0 {
		c.Sweeper.Multiplier = 1
	}
}

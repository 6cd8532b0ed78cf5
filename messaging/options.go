package messaging

import (
	"time"

	"github.com/Tsukikage7/payment-saga/logger"
)

// ProducerOption 生产者配置选项.
type ProducerOption func(*producerOptions)

type producerOptions struct {
	logger logger.Logger
}

// WithProducerLogger 设置日志记录器.
func WithProducerLogger(log logger.Logger) ProducerOption {
	return func(o *producerOptions) {
		o.logger = log
	}
}

// ConsumerOption 消费者配置选项.
type ConsumerOption func(*consumerOptions)

type consumerOptions struct {
	logger            logger.Logger
	maxRetries        int           // 最大重试次数
	retryInterval     time.Duration // 重试间隔（指数退避的基数）
	reconnectInterval time.Duration // 消费循环重连间隔
	deadLetterTopic   string        // 死信队列主题
	dlqProducer       Producer      // 死信队列生产者
}

// WithConsumerLogger 设置日志记录器.
func WithConsumerLogger(log logger.Logger) ConsumerOption {
	return func(o *consumerOptions) {
		o.logger = log
	}
}

// WithConsumerRetry 设置消息处理重试策略.
//
// 当消息处理失败时，会按指数退避策略重试.
// 重试间隔 = retryInterval * 2^(重试次数-1)
func WithConsumerRetry(maxRetries int, retryInterval time.Duration) ConsumerOption {
	return func(o *consumerOptions) {
		o.maxRetries = maxRetries
		o.retryInterval = retryInterval
	}
}

// WithDeadLetterQueue 设置死信队列.
//
// 当消息重试耗尽后，会发送到死信队列而不是丢弃.
// 死信消息携带原始主题、键、偏移量和错误信息.
func WithDeadLetterQueue(topic string, producer Producer) ConsumerOption {
	return func(o *consumerOptions) {
		o.deadLetterTopic = topic
		o.dlqProducer = producer
	}
}

// WithReconnectInterval 设置消费循环重连间隔.
//
// 当消费循环发生错误时，等待指定时间后重试. 默认为 1 秒.
func WithReconnectInterval(interval time.Duration) ConsumerOption {
	return func(o *consumerOptions) {
		o.reconnectInterval = interval
	}
}

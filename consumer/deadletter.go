package consumer

import (
	"context"

	"github.com/Tsukikage7/payment-saga/logger"
	"github.com/Tsukikage7/payment-saga/messaging"
	"github.com/Tsukikage7/payment-saga/metrics"
)

// 死信消息头.
const (
	HeaderOriginalTopic = "x-original-topic"
	HeaderOriginalKey   = "x-original-key"
	HeaderError         = "x-error"
)

// DeadLetter 死信发布器.
//
// 无法校验或无法路由的事件被原样转发到死信主题，
// 连同原主题、原消息键和致因错误描述，绝不静默丢弃.
type DeadLetter struct {
	producer messaging.Producer
	topic    string
	logger   logger.Logger
	metrics  metrics.Collector
}

// DeadLetterOption 死信发布器配置选项.
type DeadLetterOption func(*DeadLetter)

// WithDeadLetterLogger 设置日志记录器.
func WithDeadLetterLogger(log logger.Logger) DeadLetterOption {
	return func(d *DeadLetter) {
		d.logger = log
	}
}

// WithDeadLetterMetrics 设置指标收集器.
func WithDeadLetterMetrics(collector metrics.Collector) DeadLetterOption {
	return func(d *DeadLetter) {
		d.metrics = collector
	}
}

// NewDeadLetter 创建死信发布器.
func NewDeadLetter(producer messaging.Producer, topic string, opts ...DeadLetterOption) (*DeadLetter, error) {
	if producer == nil {
		return nil, ErrNilProducer
	}
	if topic == "" {
		return nil, ErrEmptyTopic
	}

	d := &DeadLetter{
		producer: producer,
		topic:    topic,
		logger:   logger.Nop(),
		metrics:  metrics.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Send 把事件连同致因错误转发到死信主题.
func (d *DeadLetter) Send(ctx context.Context, original *messaging.Message, cause error) {
	msg := &messaging.Message{
		Topic: d.topic,
		Key:   original.Key,
		Value: original.Value,
		Headers: map[string]string{
			HeaderOriginalTopic: original.Topic,
			HeaderOriginalKey:   string(original.Key),
			HeaderError:         cause.Error(),
		},
	}

	if _, err := d.producer.SendMessage(ctx, msg); err != nil {
		d.logger.WithContext(ctx).With(
			logger.String("originalTopic", original.Topic),
			logger.Err(err),
		).Error("[Consumer] 死信发送失败")
		return
	}

	d.metrics.RecordDeadLetter(original.Topic)
	d.logger.WithContext(ctx).With(
		logger.String("originalTopic", original.Topic),
		logger.String("error", cause.Error()),
	).Warn("[Consumer] 事件已转入死信")
}

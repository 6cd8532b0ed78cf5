package events

import (
	"context"
	"encoding/json"

	"github.com/Tsukikage7/payment-saga/logger"
	"github.com/Tsukikage7/payment-saga/messaging"
)

// Publisher 生命周期事件发布接口.
type Publisher interface {
	// Publish 发布事件到其类型对应的主题.
	Publish(ctx context.Context, event *Event) error
}

// ProducerPublisher 基于消息生产者的事件发布器.
type ProducerPublisher struct {
	producer messaging.Producer
	topics   Topics
	logger   logger.Logger
}

// PublisherOption 发布器配置选项.
type PublisherOption func(*ProducerPublisher)

// WithTopics 设置主题映射.
func WithTopics(topics Topics) PublisherOption {
	return func(p *ProducerPublisher) {
		p.topics = topics
	}
}

// WithPublisherLogger 设置日志记录器.
func WithPublisherLogger(log logger.Logger) PublisherOption {
	return func(p *ProducerPublisher) {
		p.logger = log
	}
}

// NewProducerPublisher 创建事件发布器.
func NewProducerPublisher(producer messaging.Producer, opts ...PublisherOption) *ProducerPublisher {
	p := &ProducerPublisher{
		producer: producer,
		topics:   DefaultTopics(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish 发布事件.
//
// 消息键取业务键，缺失时退回 correlationId，
// 保证同一事务的事件进入同一有序流.
func (p *ProducerPublisher) Publish(ctx context.Context, event *Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return err
	}

	key := event.BusinessKey
	if key == "" {
		key = event.CorrelationID
	}

	msg := &messaging.Message{
		Topic: p.topics.Topic(event.EventType),
		Key:   []byte(key),
		Value: value,
		Headers: map[string]string{
			"event-id":       event.EventID,
			"event-type":     string(event.EventType),
			"correlation-id": event.CorrelationID,
		},
	}

	if _, err := p.producer.SendMessage(ctx, msg); err != nil {
		if p.logger != nil {
			p.logger.WithContext(ctx).With(
				logger.String("eventType", string(event.EventType)),
				logger.String("sagaId", event.SagaID),
				logger.Err(err),
			).Error("[Events] 事件发布失败")
		}
		return err
	}

	if p.logger != nil {
		p.logger.WithContext(ctx).With(
			logger.String("eventType", string(event.EventType)),
			logger.String("sagaId", event.SagaID),
		).Debug("[Events] 事件已发布")
	}
	return nil
}

// NopPublisher 空发布器，用于测试或禁用事件发布的场景.
type NopPublisher struct{}

// NewNopPublisher 创建空发布器.
func NewNopPublisher() *NopPublisher {
	return &NopPublisher{}
}

// Publish 发布事件（空实现）.
func (p *NopPublisher) Publish(ctx context.Context, event *Event) error {
	return nil
}

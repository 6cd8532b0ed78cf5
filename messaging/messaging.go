// Package messaging 提供消息总线的生产者和消费者客户端.
//
// 支持 Kafka 和 RabbitMQ，通过配置切换. 编排器依赖传输层的一个
// 前置条件：同一消息键的消息必须路由到同一有序流.
// Kafka 通过分区键满足，RabbitMQ 通过单队列串行消费满足.
//
// 示例:
//
//	producer, _ := messaging.NewProducer(cfg, messaging.WithProducerLogger(log))
//	defer producer.Close()
//
//	msg, _ := producer.SendMessage(ctx, &messaging.Message{
//	    Topic: "payment.initiated",
//	    Key:   []byte("pay-123"),
//	    Value: []byte(`{"payment_id":"pay-123"}`),
//	})
//
//	consumer, _ := messaging.NewConsumer(cfg, "saga-orchestrator", messaging.WithConsumerLogger(log))
//	defer consumer.Close()
//
//	consumer.Consume(ctx, []string{"payment.initiated"}, func(msg *messaging.Message) error {
//	    return handle(msg)
//	})
package messaging

import (
	"context"
)

// MessageHandler 消息处理函数.
type MessageHandler func(*Message) error

// Producer 生产者接口.
type Producer interface {
	// SendMessage 发送单条消息，返回包含分区和偏移量的消息.
	SendMessage(ctx context.Context, msg *Message) (*Message, error)
	// Close 关闭生产者.
	Close() error
}

// Consumer 消费者接口.
type Consumer interface {
	// Consume 开始消费消息，handler 处理每条消息.
	Consume(ctx context.Context, topics []string, handler MessageHandler) error
	// Close 关闭消费者.
	Close() error
}

// NewProducer 根据配置创建生产者.
func NewProducer(cfg *Config, opts ...ProducerOption) (Producer, error) {
	switch cfg.Type {
	case "kafka", "":
		return NewKafkaProducer(cfg.Brokers, opts...)
	case "rabbitmq":
		return newRabbitMQProducer(cfg, opts...)
	default:
		return nil, ErrUnsupportedType
	}
}

// NewConsumer 根据配置创建消费者.
func NewConsumer(cfg *Config, groupID string, opts ...ConsumerOption) (Consumer, error) {
	switch cfg.Type {
	case "kafka", "":
		return NewKafkaConsumer(cfg.Brokers, groupID, opts...)
	case "rabbitmq":
		return newRabbitMQConsumer(cfg, groupID, opts...)
	default:
		return nil, ErrUnsupportedType
	}
}

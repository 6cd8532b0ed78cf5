package messaging

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/Tsukikage7/payment-saga/logger"
)

// exchangeType 交换机类型.
type exchangeType string

const (
	exchangeDirect exchangeType = "direct"
	exchangeTopic  exchangeType = "topic"
)

// rabbitMQProducer RabbitMQ 生产者.
//
// topic 即 routing key. 消息以持久化模式投递，
// 默认启用发布确认以对齐 Kafka 生产者的可靠投递语义.
type rabbitMQProducer struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	mu       sync.Mutex
	closed   atomic.Bool
	confirms chan amqp.Confirmation

	exchange     string
	exchangeType exchangeType
	durable      bool
	confirm      bool
	logger       logger.Logger
}

func newRabbitMQProducer(cfg *Config, opts ...ProducerOption) (*rabbitMQProducer, error) {
	if cfg.URL == "" {
		return nil, ErrNoBrokers
	}

	options := &producerOptions{}
	for _, opt := range opts {
		opt(options)
	}

	p := &rabbitMQProducer{
		exchangeType: exchangeTopic,
		durable:      true,
		confirm:      true,
		logger:       options.logger,
	}
	if cfg.RabbitMQ != nil {
		if cfg.RabbitMQ.Exchange != "" {
			p.exchange = cfg.RabbitMQ.Exchange
		}
		if cfg.RabbitMQ.ExchangeType != "" {
			p.exchangeType = exchangeType(cfg.RabbitMQ.ExchangeType)
		}
		p.durable = cfg.RabbitMQ.Durable
		p.confirm = cfg.RabbitMQ.Confirm
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCreateProducer, err)
	}
	p.conn = conn

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: %v", ErrCreateProducer, err)
	}

	if p.exchange != "" {
		if err := ch.ExchangeDeclare(p.exchange, string(p.exchangeType), p.durable, false, false, false, nil); err != nil {
			ch.Close()
			conn.Close()
			return nil, fmt.Errorf("声明交换机失败: %w", err)
		}
	}

	if p.confirm {
		if err := ch.Confirm(false); err != nil {
			ch.Close()
			conn.Close()
			return nil, fmt.Errorf("启用发布确认失败: %w", err)
		}
		p.confirms = ch.NotifyPublish(make(chan amqp.Confirmation, 100))
	}

	p.channel = ch
	return p, nil
}

// SendMessage 发送消息.
func (p *rabbitMQProducer) SendMessage(ctx context.Context, msg *Message) (*Message, error) {
	if p.closed.Load() {
		return nil, ErrProducerClosed
	}
	if msg == nil {
		return nil, ErrNilMessage
	}
	if msg.Topic == "" {
		return nil, ErrEmptyTopic
	}

	publishing := amqp.Publishing{
		ContentType:  "application/json",
		Body:         msg.Value,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		MessageId:    string(msg.Key),
	}
	if len(msg.Headers) > 0 {
		publishing.Headers = make(amqp.Table)
		for k, v := range msg.Headers {
			publishing.Headers[k] = v
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.channel.PublishWithContext(ctx, p.exchange, msg.Topic, false, false, publishing); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSendMessage, err)
	}

	if p.confirm && p.confirms != nil {
		select {
		case confirm := <-p.confirms:
			if !confirm.Ack {
				return nil, fmt.Errorf("%w: 消息被拒绝", ErrSendMessage)
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	msg.Timestamp = publishing.Timestamp
	return msg, nil
}

// Close 关闭生产者.
func (p *rabbitMQProducer) Close() error {
	if p.closed.Swap(true) {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel != nil {
		p.channel.Close()
	}
	return p.conn.Close()
}

// rabbitMQConsumer RabbitMQ 消费者.
//
// groupID 作为队列名，topic 作为绑定键；单队列串行消费，
// 天然满足同键消息的有序处理前置条件.
type rabbitMQConsumer struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	closed  atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	groupID       string
	exchange      string
	exchangeType  exchangeType
	durable       bool
	prefetchCount int
	logger        logger.Logger
}

func newRabbitMQConsumer(cfg *Config, groupID string, opts ...ConsumerOption) (*rabbitMQConsumer, error) {
	if groupID == "" {
		return nil, ErrEmptyGroupID
	}
	if cfg.URL == "" {
		return nil, ErrNoBrokers
	}

	options := &consumerOptions{}
	for _, opt := range opts {
		opt(options)
	}

	c := &rabbitMQConsumer{
		groupID:       groupID,
		exchangeType:  exchangeTopic,
		durable:       true,
		prefetchCount: 10,
		logger:        options.logger,
	}
	if cfg.RabbitMQ != nil {
		if cfg.RabbitMQ.Exchange != "" {
			c.exchange = cfg.RabbitMQ.Exchange
		}
		if cfg.RabbitMQ.ExchangeType != "" {
			c.exchangeType = exchangeType(cfg.RabbitMQ.ExchangeType)
		}
		c.durable = cfg.RabbitMQ.Durable
		if cfg.RabbitMQ.PrefetchCount > 0 {
			c.prefetchCount = cfg.RabbitMQ.PrefetchCount
		}
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCreateConsumer, err)
	}
	c.conn = conn

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: %v", ErrCreateConsumer, err)
	}
	if err := ch.Qos(c.prefetchCount, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("设置 QoS 失败: %w", err)
	}
	if c.exchange != "" {
		if err := ch.ExchangeDeclare(c.exchange, string(c.exchangeType), c.durable, false, false, false, nil); err != nil {
			ch.Close()
			conn.Close()
			return nil, fmt.Errorf("声明交换机失败: %w", err)
		}
	}
	c.channel = ch

	return c, nil
}

// Consume 开始消费消息.
//
// handler 返回 nil 时确认消息；返回错误时以重入队方式拒绝，
// 等待下一次投递.
func (c *rabbitMQConsumer) Consume(ctx context.Context, topics []string, handler MessageHandler) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	if len(topics) == 0 {
		return ErrNoTopics
	}
	if handler == nil {
		return ErrNilHandler
	}

	queue, err := c.channel.QueueDeclare(c.groupID, c.durable, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("声明队列失败: %w", err)
	}
	if c.exchange != "" {
		for _, topic := range topics {
			if err := c.channel.QueueBind(queue.Name, topic, c.exchange, false, nil); err != nil {
				return fmt.Errorf("绑定队列失败: %w", err)
			}
		}
	}

	deliveries, err := c.channel.Consume(queue.Name, c.groupID, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("启动消费失败: %w", err)
	}

	ctx, c.cancel = context.WithCancel(ctx)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case delivery, ok := <-deliveries:
				if !ok {
					return
				}

				msg := &Message{
					Topic:     delivery.RoutingKey,
					Key:       []byte(delivery.MessageId),
					Value:     delivery.Body,
					Headers:   make(map[string]string, len(delivery.Headers)),
					Timestamp: delivery.Timestamp,
				}
				for k, v := range delivery.Headers {
					if s, ok := v.(string); ok {
						msg.Headers[k] = s
					}
				}

				if err := handler(msg); err != nil {
					if c.logger != nil {
						c.logger.With(
							logger.String("topic", msg.Topic),
							logger.Err(err),
						).Warn("[Messaging] 消息处理失败，重新入队")
					}
					delivery.Nack(false, true)
					continue
				}
				delivery.Ack(false)
			}
		}
	}()

	return nil
}

// Close 关闭消费者.
func (c *rabbitMQConsumer) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()

	if c.channel != nil {
		c.channel.Close()
	}
	return c.conn.Close()
}

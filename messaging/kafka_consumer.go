package messaging

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"github.com/Tsukikage7/payment-saga/logger"
)

// KafkaConsumer Kafka 消费者.
//
// 使用消费者组模式，支持自动重平衡.
// 内置最佳实践配置：
//   - AutoCommit: 禁用 (手动提交，保证消息处理完成后再确认)
//   - Offsets.Initial: Newest (从最新消息开始消费)
type KafkaConsumer struct {
	consumerGroup     sarama.ConsumerGroup
	groupID           string
	handler           MessageHandler
	topics            []string
	cancel            context.CancelFunc
	wg                sync.WaitGroup
	logger            logger.Logger
	maxRetries        int
	retryInterval     time.Duration
	reconnectInterval time.Duration
	deadLetterTopic   string
	dlqProducer       Producer
}

// NewKafkaConsumer 创建 Kafka 消费者.
//
// 参数:
//   - brokers: Kafka 服务器地址列表
//   - groupID: 消费者组ID，同组消费者共享消息
//   - opts: 可选配置项
func NewKafkaConsumer(brokers []string, groupID string, opts ...ConsumerOption) (*KafkaConsumer, error) {
	if groupID == "" {
		return nil, ErrEmptyGroupID
	}
	if len(brokers) == 0 {
		return nil, ErrNoBrokers
	}

	options := &consumerOptions{}
	for _, opt := range opts {
		opt(options)
	}

	config := sarama.NewConfig()
	config.Version = sarama.V3_8_0_0
	config.Consumer.Return.Errors = true
	config.Consumer.Offsets.Initial = sarama.OffsetNewest
	config.Consumer.Offsets.AutoCommit.Enable = false

	consumerGroup, err := sarama.NewConsumerGroup(brokers, groupID, config)
	if err != nil {
		return nil, errors.Join(ErrCreateConsumer, err)
	}

	reconnectInterval := options.reconnectInterval
	if reconnectInterval <= 0 {
		reconnectInterval = time.Second
	}

	c := &KafkaConsumer{
		consumerGroup:     consumerGroup,
		groupID:           groupID,
		logger:            options.logger,
		maxRetries:        options.maxRetries,
		retryInterval:     options.retryInterval,
		reconnectInterval: reconnectInterval,
		deadLetterTopic:   options.deadLetterTopic,
		dlqProducer:       options.dlqProducer,
	}

	if c.logger != nil {
		c.logger.With(
			logger.Any("brokers", brokers),
			logger.String("groupID", groupID),
		).Debug("[Messaging] Kafka消费者启动")
	}

	return c, nil
}

// Consume 开始消费消息.
//
// 该方法会启动后台 goroutine 消费消息，调用后立即返回.
// 消息处理成功（handler 返回 nil）后会自动标记偏移量.
func (c *KafkaConsumer) Consume(ctx context.Context, topics []string, handler MessageHandler) error {
	if len(topics) == 0 {
		return ErrNoTopics
	}
	if handler == nil {
		return ErrNilHandler
	}

	c.topics = topics
	c.handler = handler
	ctx, c.cancel = context.WithCancel(ctx)

	// 消费循环
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.recoverPanic("消费循环")
		for {
			if err := c.consumerGroup.Consume(ctx, c.topics, c); err != nil {
				if ctx.Err() != nil {
					return
				}
				if c.logger != nil {
					c.logger.With(logger.Err(err)).Error("[Messaging] 消费失败")
				}
				time.Sleep(c.reconnectInterval)
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()

	// 错误监听
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.recoverPanic("错误监听")
		for {
			select {
			case <-ctx.Done():
				return
			case err, ok := <-c.consumerGroup.Errors():
				if !ok {
					return
				}
				if c.logger != nil {
					c.logger.With(logger.Err(err)).Warn("[Messaging] 消费者错误")
				}
			}
		}
	}()

	return nil
}

// Close 关闭消费者.
//
// 停止消费并等待所有 goroutine 退出，释放资源.
// 重复调用是安全的.
func (c *KafkaConsumer) Close() error {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()

	if c.consumerGroup != nil {
		return c.consumerGroup.Close()
	}
	return nil
}

// Setup 实现 sarama.ConsumerGroupHandler 接口.
func (c *KafkaConsumer) Setup(session sarama.ConsumerGroupSession) error {
	return nil
}

// Cleanup 实现 sarama.ConsumerGroupHandler 接口.
func (c *KafkaConsumer) Cleanup(session sarama.ConsumerGroupSession) error {
	session.Commit()
	return nil
}

// ConsumeClaim 实现 sarama.ConsumerGroupHandler 接口.
// 处理分区消息.
func (c *KafkaConsumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			c.processMessage(session, msg)

		case <-session.Context().Done():
			return nil
		}
	}
}

// processMessage 处理单条消息.
func (c *KafkaConsumer) processMessage(session sarama.ConsumerGroupSession, msg *sarama.ConsumerMessage) {
	message := &Message{
		Topic:     msg.Topic,
		Key:       msg.Key,
		Value:     msg.Value,
		Headers:   make(map[string]string, len(msg.Headers)),
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Timestamp: msg.Timestamp,
	}
	for _, header := range msg.Headers {
		message.Headers[string(header.Key)] = string(header.Value)
	}

	// 处理消息（带重试）
	var lastErr error
	maxAttempts := c.maxRetries + 1
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := c.handler(message); err != nil {
			lastErr = err
			if attempt < maxAttempts {
				// 指数退避：interval * 2^(attempt-1)
				backoff := c.retryInterval * time.Duration(1<<(attempt-1))
				if c.logger != nil {
					c.logger.With(
						logger.Duration("backoff", backoff),
						logger.Int("attempt", attempt),
						logger.String("topic", msg.Topic),
						logger.Int64("offset", msg.Offset),
						logger.Err(err),
					).Warn("[Messaging] 消息处理失败，即将重试")
				}
				time.Sleep(backoff)
				continue
			}
		} else {
			lastErr = nil
			break
		}
	}

	if lastErr != nil {
		if c.logger != nil {
			c.logger.With(
				logger.String("topic", msg.Topic),
				logger.Int64("offset", msg.Offset),
				logger.Err(lastErr),
			).Error("[Messaging] 消息处理失败，重试耗尽")
		}
		if c.dlqProducer != nil && c.deadLetterTopic != "" {
			c.sendToDeadLetterQueue(session.Context(), message, lastErr)
		}
	}

	// 无论成功或失败（发送到DLQ后），都标记消息已处理
	session.MarkMessage(msg, "")
}

// recoverPanic 恢复 goroutine panic 并记录日志.
func (c *KafkaConsumer) recoverPanic(goroutineName string) {
	if r := recover(); r != nil {
		if c.logger != nil {
			c.logger.With(
				logger.String("goroutine", goroutineName),
				logger.Any("panic", r),
			).Error("[Messaging] goroutine panic")
		}
	}
}

// sendToDeadLetterQueue 发送消息到死信队列.
func (c *KafkaConsumer) sendToDeadLetterQueue(ctx context.Context, msg *Message, err error) {
	dlqMsg := &Message{
		Topic: c.deadLetterTopic,
		Key:   msg.Key,
		Value: msg.Value,
		Headers: map[string]string{
			"x-original-topic":     msg.Topic,
			"x-original-partition": strconv.FormatInt(int64(msg.Partition), 10),
			"x-original-offset":    strconv.FormatInt(msg.Offset, 10),
			"x-error-message":      err.Error(),
			"x-consumer-group":     c.groupID,
		},
	}
	// 保留原始 headers
	for k, v := range msg.Headers {
		if _, exists := dlqMsg.Headers[k]; !exists {
			dlqMsg.Headers[k] = v
		}
	}

	if _, sendErr := c.dlqProducer.SendMessage(ctx, dlqMsg); sendErr != nil {
		if c.logger != nil {
			c.logger.With(
				logger.String("topic", msg.Topic),
				logger.Int64("offset", msg.Offset),
				logger.Err(sendErr),
			).Error("[Messaging] 发送死信队列失败")
		}
	}
}

package messaging

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"github.com/Tsukikage7/payment-saga/logger"
)

// KafkaProducer Kafka 生产者.
//
// 使用同步发送模式，保证消息可靠投递.
// 内置最佳实践配置：
//   - Idempotent: true (幂等性，保证消息不重复)
//   - RequiredAcks: WaitForAll (等待所有副本确认)
//   - Retry.Max: 3 (最多重试3次)
//   - Compression: Snappy (使用Snappy压缩)
type KafkaProducer struct {
	producer sarama.SyncProducer
	closed   bool
	mu       sync.RWMutex
	logger   logger.Logger
}

// NewKafkaProducer 创建 Kafka 生产者.
//
// 参数:
//   - brokers: Kafka 服务器地址列表
//   - opts: 可选配置项
//
// 返回创建的生产者实例，使用完毕后需调用 Close 关闭.
func NewKafkaProducer(brokers []string, opts ...ProducerOption) (*KafkaProducer, error) {
	if len(brokers) == 0 {
		return nil, ErrNoBrokers
	}

	options := &producerOptions{}
	for _, opt := range opts {
		opt(options)
	}

	config := sarama.NewConfig()
	config.Version = sarama.V3_8_0_0
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 3
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Idempotent = true
	config.Net.MaxOpenRequests = 1

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, errors.Join(ErrCreateProducer, err)
	}

	p := &KafkaProducer{
		producer: producer,
		logger:   options.logger,
	}

	if p.logger != nil {
		p.logger.Debugf("[Messaging] Kafka生产者启动: brokers=%v", brokers)
	}

	return p, nil
}

// SendMessage 发送消息.
//
// 同步发送消息并等待确认，返回包含分区和偏移量信息的消息.
func (p *KafkaProducer) SendMessage(ctx context.Context, msg *Message) (*Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return nil, ErrProducerClosed
	}

	if msg == nil {
		return nil, ErrNilMessage
	}
	if msg.Topic == "" {
		return nil, ErrEmptyTopic
	}

	producerMsg := &sarama.ProducerMessage{
		Topic:     msg.Topic,
		Value:     sarama.ByteEncoder(msg.Value),
		Timestamp: time.Now(),
	}
	if len(msg.Key) > 0 {
		producerMsg.Key = sarama.ByteEncoder(msg.Key)
	}
	for k, v := range msg.Headers {
		producerMsg.Headers = append(producerMsg.Headers, sarama.RecordHeader{
			Key:   []byte(k),
			Value: []byte(v),
		})
	}

	partition, offset, err := p.producer.SendMessage(producerMsg)
	if err != nil {
		if p.logger != nil {
			p.logger.With(
				logger.String("topic", msg.Topic),
				logger.Err(err),
			).Error("[Messaging] 消息发送失败")
		}
		return nil, errors.Join(ErrSendMessage, err)
	}

	msg.Partition = partition
	msg.Offset = offset
	msg.Timestamp = producerMsg.Timestamp
	return msg, nil
}

// Close 关闭生产者.
//
// 重复调用是安全的.
func (p *KafkaProducer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	return p.producer.Close()
}

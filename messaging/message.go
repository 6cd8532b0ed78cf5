package messaging

import "time"

// Message 消息结构.
//
// 用于生产者发送和消费者接收消息.
// Key 和 Value 均为 []byte 类型，序列化由调用方控制.
type Message struct {
	// Topic 消息主题，必填.
	Topic string

	// Key 消息键，用于分区路由.
	// 相同 Key 的消息会路由到同一分区，保证顺序性.
	// Saga 事件以业务键作为 Key.
	Key []byte

	// Value 消息内容.
	Value []byte

	// Headers 消息头，用于传递元数据.
	Headers map[string]string

	// Partition 分区号.
	// 发送后由服务端返回填充.
	Partition int32

	// Offset 消息偏移量.
	// 发送后由服务端返回填充.
	Offset int64

	// Timestamp 消息时间戳.
	Timestamp time.Time
}

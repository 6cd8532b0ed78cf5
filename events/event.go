// Package events 提供 Saga 生命周期事件的定义与发布.
//
// 每种事件对应一个独立主题；消息键取 Saga 的业务键，
// 保证同一笔事务的事件落在同一分区并保持顺序.
package events

import (
	"time"

	"github.com/google/uuid"
)

// EventType 事件类型.
type EventType string

// Saga 生命周期事件类型.
const (
	EventSagaStarted         EventType = "saga.started"
	EventStepStarted         EventType = "step.started"
	EventStepCompleted       EventType = "step.completed"
	EventStepFailed          EventType = "step.failed"
	EventSagaCompleted       EventType = "saga.completed"
	EventCompensationStarted EventType = "compensation.started"
	EventSagaCompensated     EventType = "saga.compensated"
)

// Event Saga 生命周期事件.
type Event struct {
	// EventID 事件唯一标识
	EventID string `json:"event_id"`

	// SagaID 所属 Saga
	SagaID string `json:"saga_id"`

	// EventType 事件类型
	EventType EventType `json:"event_type"`

	// TenantID 租户标识
	TenantID string `json:"tenant_id"`

	// BusinessUnitID 业务单元标识
	BusinessUnitID string `json:"business_unit_id"`

	// CorrelationID 链路追踪标识
	CorrelationID string `json:"correlation_id"`

	// BusinessKey 业务键，同时作为消息分区键
	BusinessKey string `json:"business_key"`

	// OccurredAt 事件发生时间
	OccurredAt time.Time `json:"occurred_at"`

	// EventData 事件附加数据
	EventData map[string]any `json:"event_data,omitempty"`
}

// NewEvent 创建生命周期事件.
func NewEvent(eventType EventType, sagaID string, data map[string]any) *Event {
	return &Event{
		EventID:    uuid.NewString(),
		SagaID:     sagaID,
		EventType:  eventType,
		OccurredAt: time.Now(),
		EventData:  data,
	}
}

// Topics 事件类型到主题名称的映射.
type Topics map[EventType]string

// DefaultTopics 返回默认主题映射，主题名与事件类型同名.
func DefaultTopics() Topics {
	return Topics{
		EventSagaStarted:         string(EventSagaStarted),
		EventStepStarted:         string(EventStepStarted),
		EventStepCompleted:       string(EventStepCompleted),
		EventStepFailed:          string(EventStepFailed),
		EventSagaCompleted:       string(EventSagaCompleted),
		EventCompensationStarted: string(EventCompensationStarted),
		EventSagaCompensated:     string(EventSagaCompensated),
	}
}

// Topic 返回事件类型对应的主题，未配置时返回事件类型本身.
func (t Topics) Topic(eventType EventType) string {
	if topic, ok := t[eventType]; ok && topic != "" {
		return topic
	}
	return string(eventType)
}

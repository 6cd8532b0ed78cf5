package messaging

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewProducerUnsupportedType(t *testing.T) {
	_, err := NewProducer(&Config{Type: "pulsar"})
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

func TestNewConsumerUnsupportedType(t *testing.T) {
	_, err := NewConsumer(&Config{Type: "pulsar"}, "group")
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

func TestNewKafkaConsumerValidation(t *testing.T) {
	_, err := NewKafkaConsumer([]string{"localhost:9092"}, "")
	assert.ErrorIs(t, err, ErrEmptyGroupID)

	_, err = NewKafkaConsumer(nil, "group")
	assert.ErrorIs(t, err, ErrNoBrokers)
}

func TestNewKafkaProducerValidation(t *testing.T) {
	_, err := NewKafkaProducer(nil)
	assert.ErrorIs(t, err, ErrNoBrokers)
}

func TestNewRabbitMQRequiresURL(t *testing.T) {
	_, err := NewProducer(&Config{Type: "rabbitmq"})
	assert.ErrorIs(t, err, ErrNoBrokers)

	_, err = NewConsumer(&Config{Type: "rabbitmq"}, "group")
	assert.ErrorIs(t, err, ErrNoBrokers)
}

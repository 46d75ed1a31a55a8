package outbox

import (
	"context"
	"fmt"
	"log/slog"

	kafka "github.com/segmentio/kafka-go"
)

// Publisher delivers a claimed message to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, m Message) error
}

// KafkaPublisher writes every event to a single Kafka topic. The event topic
// travels in the "event-type" header and the outbox id is the message key.
type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher creates a publisher writing every message to topic.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}}
}

func (p *KafkaPublisher) Publish(ctx context.Context, m Message) error {
	err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(m.ID),
		Value: m.Payload,
		Time:  m.CreatedAt,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(m.Topic)},
		},
	})
	if err != nil {
		return fmt.Errorf("outbox: kafka write %s: %w", m.Topic, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// LogPublisher logs events instead of shipping them. Used when no brokers
// are configured.
type LogPublisher struct {
	Logger *slog.Logger
}

func (p LogPublisher) Publish(_ context.Context, m Message) error {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("outbox event", "id", m.ID, "topic", m.Topic, "payload", string(m.Payload))
	return nil
}

package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// DefaultTopic receives appointment events when no topic is configured.
const DefaultTopic = "afyalink.appointments"

// messageWriter is the part of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events to a Kafka topic keyed by appointment ID, so all
// events for one appointment land on the same partition in order.
type KafkaPublisher struct {
	writer messageWriter
	topic  string
}

// NewKafkaPublisher creates a publisher for brokers and topic.
func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("no kafka brokers configured")
	}
	if topic == "" {
		topic = DefaultTopic
	}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           50 * time.Millisecond,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	slog.Debug("KafkaPublisher.NewKafkaPublisher: writer ready", "brokers", brokers, "topic", topic)
	return &KafkaPublisher{writer: writer, topic: topic}, nil
}

// Publish writes e synchronously; the caller bounds it with ctx.
func (p *KafkaPublisher) Publish(ctx context.Context, e AppointmentEvent) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(e.AppointmentID),
		Value: data,
		Time:  e.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(e.ID)},
			{Key: "event_type", Value: []byte(e.Type)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		slog.Error("KafkaPublisher.Publish: write failed", "topic", p.topic, "type", e.Type, "appointmentID", e.AppointmentID, "error", err)
		return fmt.Errorf("failed to write event to kafka: %w", err)
	}
	slog.Debug("KafkaPublisher.Publish: event written", "topic", p.topic, "type", e.Type, "appointmentID", e.AppointmentID)
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

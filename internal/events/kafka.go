package events

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/maltedev/property-crawler/internal/database"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events to Kafka. The topic is derived from the
// event's target stream ("stream:listings" becomes "listings") unless a fixed
// topic is configured.
type KafkaPublisher struct {
	writer messageWriter
	topic  string
}

// NewKafkaPublisher connects to brokers. An empty topic routes each event by
// its target stream.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.LeastBytes{},
			AllowAutoTopicCreation: false,
		},
		topic: topic,
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event *database.OutboxEvent) error {
	data, err := envelope(event)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Topic: p.topicFor(event),
		Key:   []byte(event.AggregateID),
		Value: data,
		Time:  time.Now().UTC(),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "outbox_id", Value: []byte(event.ID.String())},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish to kafka: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func (p *KafkaPublisher) topicFor(event *database.OutboxEvent) string {
	if p.topic != "" {
		return p.topic
	}
	topic := strings.TrimPrefix(event.TargetStream, "stream:")
	return strings.ReplaceAll(topic, ":", ".")
}

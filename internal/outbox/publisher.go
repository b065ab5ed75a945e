// Package outbox delivers durably recorded events to downstream consumers.
package outbox

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/congo-pay/walletledger/internal/model"
)

//go:generate mockgen -source=$GOFILE -destination=mock/publisher.go -package=mock_outbox

// Publisher hands one event to a downstream system.
type Publisher interface {
	Publish(ctx context.Context, ev model.OutboxEvent) error
}

// MessageWriter is the subset of *kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaPublisher writes events to a Kafka topic. Messages are keyed by
// aggregate id so events of one transaction stay ordered.
type KafkaPublisher struct {
	writer MessageWriter
}

// NewKafkaPublisher wraps a kafka writer.
func NewKafkaPublisher(writer MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: writer}
}

// Publish writes the event payload with its type and id as headers.
func (p *KafkaPublisher) Publish(ctx context.Context, ev model.OutboxEvent) error {
	err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.AggregateID.String()),
		Value: ev.Payload,
		Time:  ev.CreatedAt,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(ev.ID.String())},
			{Key: "event_type", Value: []byte(ev.EventType)},
		},
	})
	if err != nil {
		return fmt.Errorf("write kafka message: %w", err)
	}
	return nil
}

// LogPublisher writes events to the structured logger. It is used when no
// brokers are configured.
type LogPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher constructs a logging publisher.
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

// Publish logs the event.
func (p *LogPublisher) Publish(_ context.Context, ev model.OutboxEvent) error {
	if p == nil || p.logger == nil {
		return nil
	}
	p.logger.Info("outbox event",
		slog.String("event_id", ev.ID.String()),
		slog.String("event_type", ev.EventType),
		slog.String("aggregate_id", ev.AggregateID.String()),
		slog.String("payload", string(ev.Payload)),
	)
	return nil
}

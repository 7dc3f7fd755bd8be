// Package messaging streams screening events to Kafka
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Aidin1998/watchlist_screening/internal/infrastructure/config"
	"github.com/Aidin1998/watchlist_screening/internal/screening/events"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// MessageWriter is the subset of kafka.Writer used by the publisher
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher publishes screening events to a single topic, keyed so that
// every event of a request lands on the same partition.
type KafkaPublisher struct {
	writer MessageWriter
	topic  string
	logger *zap.SugaredLogger
}

// NewKafkaWriter creates a kafka writer for the configured topic
func NewKafkaWriter(cfg config.KafkaConfig) *kafka.Writer {
	batchTimeout := cfg.BatchTimeout
	if batchTimeout <= 0 {
		batchTimeout = 50 * time.Millisecond
	}
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.CRC32Balancer{},
		BatchTimeout: batchTimeout,
		RequiredAcks: kafka.RequireOne,
		MaxAttempts:  3,
	}
}

// NewKafkaPublisher wraps writer as an events.Publisher
func NewKafkaPublisher(writer MessageWriter, topic string, logger *zap.SugaredLogger) *KafkaPublisher {
	return &KafkaPublisher{
		writer: writer,
		topic:  topic,
		logger: logger,
	}
}

// Publish writes the event as JSON
func (p *KafkaPublisher) Publish(ctx context.Context, event events.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event %s: %w", event.ID, err)
	}

	msg := kafka.Message{
		Key:   []byte(event.Key()),
		Value: data,
		Time:  event.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
			{Key: "event_id", Value: []byte(event.ID)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Errorw("Failed to publish event to Kafka",
			"topic", p.topic,
			"event_id", event.ID,
			"type", event.Type,
			"error", err)
		return fmt.Errorf("failed to publish event %s: %w", event.ID, err)
	}
	return nil
}

// Close flushes pending messages and closes the writer
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

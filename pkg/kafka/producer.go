package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/pkg/config"
	"github.com/segmentio/kafka-go"
)

// Event is the unit of data published to Kafka. Key is used for partition
// hashing and Value is JSON-serialised.
type Event struct {
	Key   string
	Value any
}

// Producer publishes JSON-encoded events to a Kafka topic.
type Producer struct {
	writer *kafka.Writer
	logger *slog.Logger
}

// NewProducer creates a Producer for the given topic. Analytics events are
// best-effort, so the writer runs async and only logs delivery failures; the
// search path never waits on the broker.
func NewProducer(cfg config.KafkaConfig, topic string) *Producer {
	logger := slog.Default().With("component", "kafka-producer", "topic", topic)
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		MaxAttempts:  3,
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				logger.Warn("async delivery failed", "count", len(messages), "error", err)
			}
		},
	}
	return &Producer{
		writer: w,
		logger: logger,
	}
}

// PublishBatch writes events in one call. Events whose value cannot be
// encoded are logged and skipped so one bad event never drops its batch.
func (p *Producer) PublishBatch(ctx context.Context, events []Event) error {
	messages, skipped := encodeMessages(events)
	if skipped > 0 {
		p.logger.Warn("skipped unencodable events", "count", skipped)
	}
	if len(messages) == 0 {
		return nil
	}
	if err := p.writer.WriteMessages(ctx, messages...); err != nil {
		return fmt.Errorf("publishing batch to kafka: %w", err)
	}
	p.logger.Debug("batch published", "count", len(messages))
	return nil
}

func encodeMessages(events []Event) ([]kafka.Message, int) {
	messages := make([]kafka.Message, 0, len(events))
	skipped := 0
	for _, event := range events {
		value, err := json.Marshal(event.Value)
		if err != nil {
			skipped++
			continue
		}
		messages = append(messages, kafka.Message{Key: []byte(event.Key), Value: value})
	}
	return messages, skipped
}

// Close flushes pending writes and closes the underlying Kafka writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}

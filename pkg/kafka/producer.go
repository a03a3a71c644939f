// Package kafka publishes JSON events to a Kafka topic with segmentio/kafka-go.
// Writes are split into batches and paced by a token-bucket limiter so a
// large export does not flood the brokers.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/topic-crossval/pkg/config"
	"github.com/segmentio/kafka-go"
	"golang.org/x/time/rate"
)

// Event is the unit of data published to Kafka. Key is used for partition
// hashing and Value is JSON-serialised.
type Event struct {
	Key   string
	Value any
}

// MessageWriter is the part of *kafka.Writer the producer uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes JSON-encoded events to a Kafka topic.
type Producer struct {
	writer    MessageWriter
	limiter   *rate.Limiter
	batchSize int
	logger    *slog.Logger
}

// NewProducer creates a Producer for the given topic.
func NewProducer(cfg config.KafkaConfig, topic string) *Producer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		MaxAttempts:  3,
		RequiredAcks: kafka.RequireAll,
		Async:        false,
	}
	return NewProducerWithWriter(w, topic, cfg.BatchSize, cfg.MessagesPerSecond)
}

// NewProducerWithWriter builds a Producer on top of any MessageWriter.
// A messagesPerSecond of zero disables pacing.
func NewProducerWithWriter(w MessageWriter, topic string, batchSize int, messagesPerSecond float64) *Producer {
	if batchSize < 1 {
		batchSize = 100
	}
	limiter := rate.NewLimiter(rate.Inf, batchSize)
	if messagesPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(messagesPerSecond), batchSize)
	}
	return &Producer{
		writer:    w,
		limiter:   limiter,
		batchSize: batchSize,
		logger:    slog.Default().With("component", "kafka-producer", "topic", topic),
	}
}

// Publish serialises a single event and writes it to Kafka synchronously.
func (p *Producer) Publish(ctx context.Context, event Event) error {
	return p.PublishBatch(ctx, []Event{event})
}

// PublishBatch writes events in batches of at most the configured size,
// waiting on the rate limiter before each batch. It stops at the first
// failed batch and reports how many events were written before it.
func (p *Producer) PublishBatch(ctx context.Context, events []Event) error {
	messages := make([]kafka.Message, 0, len(events))
	for _, event := range events {
		value, err := json.Marshal(event.Value)
		if err != nil {
			return fmt.Errorf("marshaling event value for key %q: %w", event.Key, err)
		}
		messages = append(messages, kafka.Message{
			Key:   []byte(event.Key),
			Value: value,
		})
	}

	written := 0
	for written < len(messages) {
		end := written + p.batchSize
		if end > len(messages) {
			end = len(messages)
		}
		batch := messages[written:end]
		if err := p.limiter.WaitN(ctx, len(batch)); err != nil {
			return fmt.Errorf("waiting for publish budget after %d of %d messages: %w", written, len(messages), err)
		}
		if err := p.writer.WriteMessages(ctx, batch...); err != nil {
			p.logger.Error("failed to publish batch",
				"count", len(batch),
				"written", written,
				"error", err,
			)
			return fmt.Errorf("publishing batch to kafka after %d of %d messages: %w", written, len(messages), err)
		}
		written = end
	}
	p.logger.Debug("batch published", "count", len(messages))
	return nil
}

// Close flushes pending writes and closes the underlying Kafka writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}

// Package kafka publishes memory events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	segmentio "github.com/segmentio/kafka-go"

	"github.com/papercomputeco/remem/pkg/eventstream"
)

// Config holds Kafka publisher settings.
type Config struct {
	Brokers []string
	Topic   string
}

// Publisher writes memory events to Kafka, keyed by user id so per-user
// events stay ordered within a partition.
type Publisher struct {
	writer *segmentio.Writer
}

// NewPublisher creates a Kafka-backed eventstream publisher.
func NewPublisher(cfg Config) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka publisher requires at least one broker")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka publisher requires a topic")
	}

	writer := &segmentio.Writer{
		Addr:         segmentio.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &segmentio.Hash{},
		RequiredAcks: segmentio.RequireOne,
	}

	return &Publisher{writer: writer}, nil
}

// Publish marshals the event and writes it to the configured topic.
func (p *Publisher) Publish(ctx context.Context, event *eventstream.MemoryEvent) error {
	if event == nil {
		return eventstream.ErrNilEvent
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling memory event: %w", err)
	}

	msg := segmentio.Message{
		Key:   []byte(event.UserID),
		Value: payload,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("writing memory event: %w", err)
	}

	return nil
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

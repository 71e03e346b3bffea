// Package emit publishes persisted whale events to downstream consumers.
package emit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"whaleScope/internal/model"
)

// Sink receives newly persisted events.
type Sink interface {
	Publish(ctx context.Context, events []model.WhaleEvent) error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, []model.WhaleEvent) error { return nil }

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink writes one JSON message per event keyed by chain:hash.
type KafkaSink struct {
	mu     sync.Mutex
	writer messageWriter
	logger *zap.Logger
}

func NewKafkaSink(brokers []string, topic string, logger *zap.Logger) (*KafkaSink, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are required")
	}
	if topic == "" {
		return nil, fmt.Errorf("kafka topic is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaSink{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			AllowAutoTopicCreation: true,
		},
		logger: logger,
	}, nil
}

func (k *KafkaSink) Publish(ctx context.Context, events []model.WhaleEvent) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(events))
	for _, e := range events {
		value, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal event %s: %w", e.Hash, err)
		}
		msgs = append(msgs, kafka.Message{Key: []byte(MessageKey(e)), Value: value})
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	if k.writer == nil {
		return fmt.Errorf("kafka sink closed")
	}
	if err := k.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write %d events to kafka: %w", len(msgs), err)
	}
	k.logger.Debug("events published", zap.String("chain", events[0].ChainID), zap.Int("events", len(msgs)))
	return nil
}

func (k *KafkaSink) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.writer == nil {
		return nil
	}
	err := k.writer.Close()
	k.writer = nil
	return err
}

// MessageKey partitions events by chain and transaction hash.
func MessageKey(e model.WhaleEvent) string {
	return e.ChainID + ":" + e.Hash
}

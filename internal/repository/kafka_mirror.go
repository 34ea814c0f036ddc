package repository

import (
	"context"
	"fmt"

	"TickStockApp/internal/domain/models"
	"TickStockApp/internal/domain/repository"
)

// MessagePublisher is the producer surface the mirror needs.
type MessagePublisher interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
}

// KafkaMirror copies fallback detections onto a Kafka topic keyed by symbol.
type KafkaMirror struct {
	producer MessagePublisher
	topic    string
}

// NewKafkaMirror creates a mirror writing to topic.
func NewKafkaMirror(producer MessagePublisher, topic string) *KafkaMirror {
	return &KafkaMirror{producer: producer, topic: topic}
}

func (m *KafkaMirror) Mirror(ctx context.Context, ev *models.PatternEvent) error {
	if err := m.producer.Publish(ctx, m.topic, []byte(ev.Data.Symbol), ev); err != nil {
		return fmt.Errorf("kafka mirror %s: %w", m.topic, err)
	}
	return nil
}

var _ repository.DetectionMirror = (*KafkaMirror)(nil)

package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"TickStockApp/internal/domain/models"
	"TickStockApp/internal/domain/repository"
	"TickStockApp/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// RedisBus implements EventBus on Redis pub-sub.
type RedisBus struct {
	client  redis.UniversalClient
	log     *logger.Logger
	bufSize int
}

// NewRedisBus wraps an already validated client.
func NewRedisBus(client redis.UniversalClient, l *logger.Logger) *RedisBus {
	if l == nil {
		l = logger.Nop()
	}
	return &RedisBus{client: client, log: l.With(logger.String("component", "redis_bus")), bufSize: 256}
}

func (b *RedisBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := b.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", channel, err)
	}
	return nil
}

// Ping checks the connection is still usable.
func (b *RedisBus) Ping(ctx context.Context) error {
	if err := b.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// PublishMessage JSON-encodes payload unless it is already bytes or a string.
func (b *RedisBus) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	var data []byte
	switch v := payload.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		var err error
		data, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
	}
	return b.Publish(ctx, topic, data)
}

// Subscribe returns a channel of raw payloads that closes when ctx ends or the
// subscription breaks.
func (b *RedisBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ps := b.client.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redis subscribe %s: %w", channel, err)
	}

	out := make(chan []byte, b.bufSize)
	msgs := ps.Channel()
	go func() {
		defer close(out)
		defer ps.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-msgs:
				if !ok {
					b.log.Warn("subscription closed", logger.String("channel", channel))
					return
				}
				select {
				case out <- []byte(m.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// LastHeartbeat reads a float unix timestamp from key. A missing key yields the zero time.
func (b *RedisBus) LastHeartbeat(ctx context.Context, key string) (time.Time, error) {
	v, err := b.client.Get(ctx, key).Float64()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("redis heartbeat %s: %w", key, err)
	}
	return models.FromUnixSeconds(v), nil
}

var _ repository.EventBus = (*RedisBus)(nil)

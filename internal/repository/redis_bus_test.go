package repository

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"TickStockApp/internal/domain/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBus(t *testing.T) (*miniredis.Miniredis, *RedisBus) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewRedisBus(client, nil)
}

func TestLastHeartbeat(t *testing.T) {
	mr, bus := newBus(t)
	ctx := context.Background()

	ts, err := bus.LastHeartbeat(ctx, "tickstock:producer:heartbeat")
	require.NoError(t, err)
	assert.True(t, ts.IsZero())

	require.NoError(t, mr.Set("tickstock:producer:heartbeat", "1700000000.5"))
	ts, err = bus.LastHeartbeat(ctx, "tickstock:producer:heartbeat")
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000), ts.Unix())
	assert.Equal(t, 500*time.Millisecond, time.Duration(ts.Nanosecond()))

	require.NoError(t, mr.Set("tickstock:producer:heartbeat", "yesterday"))
	_, err = bus.LastHeartbeat(ctx, "tickstock:producer:heartbeat")
	require.Error(t, err)
}

func TestSubscribeReceivesPublishedPayloads(t *testing.T) {
	_, bus := newBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msgs, err := bus.Subscribe(ctx, "tickstock.events.patterns")
	require.NoError(t, err)

	require.NoError(t, bus.PublishMessage(ctx, "tickstock.events.patterns", map[string]string{"symbol": "AAPL"}))

	select {
	case raw := <-msgs:
		var got map[string]string
		require.NoError(t, json.Unmarshal(raw, &got))
		assert.Equal(t, "AAPL", got["symbol"])
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}

	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-msgs:
			return !ok
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}

type recordingProducer struct {
	topic string
	key   []byte
	value interface{}
}

func (p *recordingProducer) Publish(_ context.Context, topic string, key []byte, value interface{}) error {
	p.topic, p.key, p.value = topic, key, value
	return nil
}

func TestKafkaMirrorKeysBySymbol(t *testing.T) {
	p := &recordingProducer{}
	m := NewKafkaMirror(p, "fallback.detections")
	ev := &models.PatternEvent{Data: models.PatternEventData{Symbol: "TSLA"}}

	require.NoError(t, m.Mirror(context.Background(), ev))
	assert.Equal(t, "fallback.detections", p.topic)
	assert.Equal(t, []byte("TSLA"), p.key)
	assert.Same(t, ev, p.value)
}

func TestPingReflectsServerState(t *testing.T) {
	mr, bus := newBus(t)
	require.NoError(t, bus.Ping(context.Background()))

	mr.Close()
	require.Error(t, bus.Ping(context.Background()))
}

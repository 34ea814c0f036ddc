package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	mu        sync.Mutex
	topics    []string
	summaries []ErrorSummary
}

func (p *capturePublisher) PublishMessage(_ context.Context, topic string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.summaries = append(p.summaries, payload.(ErrorSummary))
	return nil
}

func (p *capturePublisher) snapshot() ([]string, []ErrorSummary) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.topics...), append([]ErrorSummary(nil), p.summaries...)
}

func TestNewWritesJSONWithFields(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(&Config{Level: "debug", Format: "json", Writer: &buf})
	require.NoError(t, err)

	l.With(String("component", "fallback_detector")).Info("tick dropped",
		String("symbol", "AAPL"),
		Int64("seq", 42),
		Duration("elapsed_ms", 1500*time.Microsecond),
		Bool("upstream", false),
	)

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "info", line["level"])
	assert.Equal(t, "tick dropped", line["message"])
	assert.Equal(t, "fallback_detector", line["component"])
	assert.Equal(t, "AAPL", line["symbol"])
	assert.Equal(t, float64(42), line["seq"])
	assert.Equal(t, 1.5, line["elapsed_ms"])
	assert.Equal(t, false, line["upstream"])
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(&Config{Level: "loud"})
	require.Error(t, err)
}

func TestLevelFiltersDebug(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(&Config{Level: "warn", Format: "json", Writer: &buf})
	require.NoError(t, err)

	l.Debug("hidden")
	l.Info("hidden")
	assert.Zero(t, buf.Len())
	l.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestCollectorAggregatesRepeatedErrors(t *testing.T) {
	pub := &capturePublisher{}
	l, err := New(&Config{Level: "error", Format: "json", Writer: &bytes.Buffer{}})
	require.NoError(t, err)
	l.AddCollector(&CollectionConfig{TimeInterval: time.Hour, Topic: "tickstock.health.status", Publisher: pub})

	child := l.With(String("component", "redis_bus"))
	for i := 0; i < 3; i++ {
		child.Error("publish failed", Error(errors.New("connection refused")))
	}
	child.Warn("not collected")
	l.RemoveCollector()

	require.Eventually(t, func() bool {
		_, s := pub.snapshot()
		return len(s) == 1
	}, time.Second, 5*time.Millisecond)

	topics, summaries := pub.snapshot()
	assert.Equal(t, "tickstock.health.status", topics[0])
	s := summaries[0]
	assert.Equal(t, "error_summary", s.EventType)
	assert.Equal(t, "tickstock_app", s.Source)
	require.Len(t, s.Entries, 1)
	assert.Equal(t, 3, s.Entries[0].Count)
	assert.Equal(t, "publish failed", s.Entries[0].Message)
	assert.Equal(t, "connection refused", s.Entries[0].Fields["error"])
}

func TestCollectorFlushesAtCountThreshold(t *testing.T) {
	pub := &capturePublisher{}
	c := NewLogCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 2, Publisher: pub})
	defer c.Close()

	c.AddLog("error", "a", nil, "x.go:1")
	c.AddLog("error", "b", nil, "x.go:2")

	require.Eventually(t, func() bool {
		_, s := pub.snapshot()
		return len(s) == 1 && len(s[0].Entries) == 2
	}, time.Second, 5*time.Millisecond)
}

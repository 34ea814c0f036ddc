package flowlog

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"TickStockApp/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type logLine struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

func newTestLogger(t *testing.T) (*logger.Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	l, err := logger.New(&logger.Config{Level: "debug", Format: "json", Writer: &buf})
	require.NoError(t, err)
	return l, &buf
}

func lines(t *testing.T, buf *bytes.Buffer) []logLine {
	t.Helper()
	var out []logLine
	for _, raw := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if raw == "" {
			continue
		}
		var l logLine
		require.NoError(t, json.Unmarshal([]byte(raw), &l))
		out = append(out, l)
	}
	return out
}

func TestFlowLifecycle(t *testing.T) {
	l, buf := newTestLogger(t)
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	f := New(l, WithEnabled(true), WithClock(clock.Now))

	id := f.StartFlow(Event{Symbol: "AAPL", Pattern: "Hammer", Confidence: 0.85})
	require.Equal(t, FlowID("flow-000001"), id)
	assert.Equal(t, 1, f.ActiveFlows())

	f.LogCheckpoint(id, PatternDetected, "")
	clock.Advance(3 * time.Millisecond)
	f.LogCheckpoint(id, EventPublished, "tickstock.events.patterns")

	cps := f.Checkpoints(id)
	require.Len(t, cps, 2)
	assert.Equal(t, PatternDetected, cps[0].Point)
	assert.False(t, cps[1].At.Before(cps[0].At))

	f.CompleteFlow(id)
	assert.Equal(t, 0, f.ActiveFlows())

	// stale id after completion is ignored
	before := buf.Len()
	f.LogCheckpoint(id, WebSocketDelivered, "")
	assert.Equal(t, before, buf.Len())

	var messages []string
	for _, line := range lines(t, buf) {
		messages = append(messages, line.Message)
	}
	assert.Contains(t, messages, "[flow-000001] ✓ Pattern Detected: Hammer@AAPL (85%)")
	assert.Contains(t, messages, "[flow-000001] → Published to Redis - tickstock.events.patterns (+3ms)")
}

func TestDisabledLoggerRecordsNothing(t *testing.T) {
	l, buf := newTestLogger(t)
	clock := &fakeClock{now: time.Unix(0, 0)}
	f := New(l, WithClock(clock.Now))

	id := f.StartFlow(Event{Symbol: "MSFT", Pattern: "Doji"})
	assert.Equal(t, FlowID(""), id)

	for i := 0; i < 10; i++ {
		f.LogCheckpoint(id, PatternDetected, "")
		clock.Advance(time.Second)
		f.CompleteFlow(id)
	}
	assert.Zero(t, buf.Len())
	assert.Zero(t, f.ActiveFlows())
}

func TestSlowFlowWarns(t *testing.T) {
	l, buf := newTestLogger(t)
	clock := &fakeClock{now: time.Unix(0, 0)}
	f := New(l, WithEnabled(true), WithClock(clock.Now))

	id := f.StartFlow(Event{Symbol: "TSLA", Pattern: "PriceGap"})
	clock.Advance(150 * time.Millisecond)
	f.CompleteFlow(id)

	out := lines(t, buf)
	last := out[len(out)-1]
	assert.Equal(t, "warn", last.Level)
	assert.Equal(t, "[flow-000001] slow flow: 150ms", last.Message)
}

func TestCheckpointsNeverGoBackwards(t *testing.T) {
	clock := &fakeClock{now: time.Unix(100, 0)}
	f := New(nil, WithEnabled(true), WithClock(clock.Now))

	id := f.StartFlow(Event{Symbol: "AAPL"})
	clock.Advance(10 * time.Millisecond)
	f.LogCheckpoint(id, PatternDetected, "")
	clock.Advance(-5 * time.Millisecond)
	f.LogCheckpoint(id, EventPublished, "")

	cps := f.Checkpoints(id)
	require.Len(t, cps, 2)
	assert.Equal(t, cps[0].At, cps[1].At)
}

func TestConcurrentFlows(t *testing.T) {
	f := New(nil, WithEnabled(true))

	var wg sync.WaitGroup
	ids := make(chan FlowID, 200)
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := f.StartFlow(Event{Symbol: "AAPL"})
			f.LogCheckpoint(id, PatternDetected, "")
			ids <- id
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[FlowID]bool)
	for id := range ids {
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
		f.CompleteFlow(id)
	}
	assert.Len(t, seen, 200)
	assert.Zero(t, f.ActiveFlows())
}

func TestConfigureFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flows.log")
	f := New(nil)
	require.NoError(t, f.Configure(true, path, "info"))
	defer f.Close()

	assert.True(t, f.Enabled())
	id := f.StartFlow(Event{Symbol: "AAPL", Pattern: "Doji", Confidence: 0.6})
	assert.NotEmpty(t, id)

	require.NoError(t, f.Configure(false, "", ""))
	assert.Empty(t, f.StartFlow(Event{Symbol: "AAPL"}))
}

func TestConfigureRejectsBadLevel(t *testing.T) {
	f := New(nil)
	err := f.Configure(true, filepath.Join(t.TempDir(), "flows.log"), "chatty")
	require.Error(t, err)
	assert.False(t, f.Enabled())
}

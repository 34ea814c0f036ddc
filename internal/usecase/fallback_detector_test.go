package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"TickStockApp/internal/domain/models"
	domrepo "TickStockApp/internal/domain/repository"
	"TickStockApp/pkg/flowlog"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	channel string
	payload []byte
}

type fakeBus struct {
	mu        sync.Mutex
	heartbeat time.Time
	hbErr     error
	pubErr    error
	out       chan published
	feed      chan []byte
}

func newFakeBus() *fakeBus {
	return &fakeBus{out: make(chan published, 64)}
}

func (b *fakeBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	err := b.pubErr
	b.mu.Unlock()
	if err != nil {
		return err
	}
	b.out <- published{channel: channel, payload: payload}
	return nil
}

func (b *fakeBus) Subscribe(ctx context.Context, _ string) (<-chan []byte, error) {
	if b.feed == nil {
		return nil, errors.New("not supported")
	}
	out := make(chan []byte)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case p := <-b.feed:
				select {
				case out <- p:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (b *fakeBus) LastHeartbeat(context.Context, string) (time.Time, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.heartbeat, b.hbErr
}

func (b *fakeBus) setHeartbeat(ts time.Time) {
	b.mu.Lock()
	b.heartbeat = ts
	b.mu.Unlock()
}

func (b *fakeBus) next(t *testing.T) models.PatternEvent {
	t.Helper()
	select {
	case p := <-b.out:
		var ev models.PatternEvent
		require.NoError(t, json.Unmarshal(p.payload, &ev))
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no pattern published")
	}
	return models.PatternEvent{}
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []string
	panics bool
}

func (r *recordingBroadcaster) Emit(event string, _ interface{}, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.panics {
		r.panics = false
		panic("emit exploded")
	}
	r.events = append(r.events, event)
	return nil
}

func (r *recordingBroadcaster) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func startDetector(t *testing.T, bus *fakeBus, opts ...DetectorOption) *FallbackDetector {
	t.Helper()
	base := []DetectorOption{
		WithLoopTimings(10*time.Millisecond, 20*time.Millisecond, 10*time.Millisecond),
		WithHeartbeat("", 20*time.Millisecond, 0),
	}
	d := NewFallbackDetector(bus, append(base, opts...)...)
	require.NoError(t, d.Start(context.Background()))
	t.Cleanup(d.Stop)
	return d
}

func TestAddMarketTickBoundsBuffer(t *testing.T) {
	bus := newFakeBus()
	bus.setHeartbeat(time.Now())
	d := startDetector(t, bus, WithQueueSize(500))

	for i := 0; i < 150; i++ {
		d.AddMarketTick("AAPL", 100+float64(i)/1000, 100, time.Time{})
	}

	stats := d.Stats()
	assert.Equal(t, 100, stats.BufferSizes["AAPL"])

	d.mu.Lock()
	oldest := d.buffers["AAPL"].last(100)[0]
	d.mu.Unlock()
	assert.InDelta(t, 100.05, oldest.Price, 1e-9)
}

func TestAddMarketTickRejectsInvalid(t *testing.T) {
	d := startDetector(t, newFakeBus())
	d.AddMarketTick("AAPL", 0, 100, time.Time{})
	d.AddMarketTick("AAPL", -1, 100, time.Time{})
	d.AddMarketTick("AAPL", 10, -5, time.Time{})
	d.AddMarketTick("", 10, 5, time.Time{})
	assert.Empty(t, d.Stats().BufferSizes)
}

func TestPriceGapPublishedWhenUpstreamStale(t *testing.T) {
	bus := newFakeBus()
	hub := &recordingBroadcaster{}
	flows := flowlog.New(nil, flowlog.WithEnabled(true))
	d := startDetector(t, bus, WithBroadcaster(hub), WithFlowLogger(flows))

	for _, p := range []float64{100, 100, 100, 100, 103} {
		d.AddMarketTick("AAPL", p, 10, time.Time{})
	}

	ev := bus.next(t)
	assert.Equal(t, "pattern_detected", ev.EventType)
	assert.Equal(t, "fallback_detector", ev.Source)
	assert.Equal(t, "AAPL", ev.Data.Symbol)
	assert.Equal(t, "PriceGap", ev.Data.Pattern)
	assert.Equal(t, "fallback", ev.Data.Source)
	assert.Equal(t, "bullish", ev.Data.Direction)
	assert.InDelta(t, 3.0, ev.Data.PriceChange, 1e-9)
	assert.InDelta(t, 1.03, ev.Data.Indicators.RelativeStrength, 1e-9)
	assert.InDelta(t, 72*3600, ev.Data.ExpiresAt-ev.Data.Timestamp, 1e-3)

	require.Eventually(t, func() bool { return hub.count() > 0 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return flows.ActiveFlows() == 0 }, time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, d.Stats().PatternCount, int64(1))
	assert.NotNil(t, d.Stats().LastDetection)
}

func TestSurgeFiresAtFullWindow(t *testing.T) {
	bus := newFakeBus()
	d := startDetector(t, bus)

	for i := 0; i < 9; i++ {
		d.AddMarketTick("MSFT", 300, 1000, time.Time{})
	}
	d.AddMarketTick("MSFT", 300, 5000, time.Time{})

	ev := bus.next(t)
	assert.Equal(t, "HighVolumeSurge", ev.Data.Pattern)
	assert.InDelta(t, 5.0, ev.Data.Indicators.RelativeVolume, 1e-9)
	assert.Equal(t, int64(5000), ev.Data.Indicators.Volume)
}

func TestNoDetectionWhileUpstreamFresh(t *testing.T) {
	bus := newFakeBus()
	bus.setHeartbeat(time.Now())
	d := startDetector(t, bus)

	require.Eventually(t, func() bool { return d.Stats().LastHeartbeat != nil }, time.Second, 5*time.Millisecond)
	for _, p := range []float64{100, 100, 100, 100, 110} {
		d.AddMarketTick("AAPL", p, 10, time.Time{})
	}

	select {
	case <-bus.out:
		t.Fatal("detector published while upstream was healthy")
	case <-time.After(150 * time.Millisecond):
	}
	assert.Equal(t, models.HealthStandby, d.HealthStatus())
}

type dropCounter struct {
	domrepo.NopMetrics
	mu      sync.Mutex
	dropped int
}

func (m *dropCounter) RecordTickDropped(string) {
	m.mu.Lock()
	m.dropped++
	m.mu.Unlock()
}

func TestQueueFullDropsTicks(t *testing.T) {
	bus := newFakeBus()
	bus.setHeartbeat(time.Now())
	m := &dropCounter{}
	d := startDetector(t, bus, WithQueueSize(1), WithDetectorMetrics(m))

	require.Eventually(t, func() bool { return d.Stats().LastHeartbeat != nil }, time.Second, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond) // let any in-flight queue wait expire
	for i := 0; i < 5; i++ {
		d.AddMarketTick("AAPL", 100, 10, time.Time{})
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	assert.Equal(t, 4, m.dropped)
	assert.Equal(t, 5, d.Stats().BufferSizes["AAPL"])
}

func TestHealthStatusTransitions(t *testing.T) {
	clock := &testClock{now: time.Now()}
	bus := newFakeBus()
	d := NewFallbackDetector(bus,
		WithDetectorClock(clock.Now),
		WithLoopTimings(10*time.Millisecond, 20*time.Millisecond, 10*time.Millisecond),
		WithHeartbeat("", 10*time.Millisecond, 30*time.Second),
	)
	assert.Equal(t, models.HealthInactive, d.HealthStatus())

	require.NoError(t, d.Start(context.Background()))
	defer d.Stop()
	assert.Equal(t, models.HealthActive, d.HealthStatus())

	bus.setHeartbeat(clock.Now())
	require.Eventually(t, func() bool { return d.HealthStatus() == models.HealthStandby }, time.Second, 5*time.Millisecond)

	clock.Advance(31 * time.Second)
	assert.Equal(t, models.HealthActive, d.HealthStatus())

	clock.Advance(5 * time.Minute)
	assert.Equal(t, models.HealthWarning, d.HealthStatus())

	d.Stop()
	assert.Equal(t, models.HealthInactive, d.HealthStatus())
}

func TestLoopSurvivesBroadcasterPanic(t *testing.T) {
	bus := newFakeBus()
	hub := &recordingBroadcaster{panics: true}
	d := startDetector(t, bus, WithBroadcaster(hub))

	for _, p := range []float64{100, 100, 100, 100, 103} {
		d.AddMarketTick("AAPL", p, 10, time.Time{})
	}
	bus.next(t)

	for _, p := range []float64{100, 100, 100, 100, 95} {
		d.AddMarketTick("TSLA", p, 10, time.Time{})
	}
	require.Eventually(t, func() bool { return hub.count() > 0 }, 2*time.Second, 5*time.Millisecond)
	assert.True(t, d.Stats().Running)
}

func TestPublishFailureDoesNotStopDelivery(t *testing.T) {
	bus := newFakeBus()
	bus.pubErr = errors.New("connection refused")
	hub := &recordingBroadcaster{}
	d := startDetector(t, bus, WithBroadcaster(hub))

	for _, p := range []float64{100, 100, 100, 100, 103} {
		d.AddMarketTick("AAPL", p, 10, time.Time{})
	}
	require.Eventually(t, func() bool { return hub.count() > 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestStopMakesAddMarketTickNoop(t *testing.T) {
	d := startDetector(t, newFakeBus())
	d.Stop()
	d.Stop()

	d.AddMarketTick("AAPL", 100, 10, time.Time{})
	stats := d.Stats()
	assert.False(t, stats.Running)
	assert.Empty(t, stats.BufferSizes)
	assert.Zero(t, stats.RuntimeSeconds)
}

func TestStartIsIdempotent(t *testing.T) {
	d := startDetector(t, newFakeBus())
	require.NoError(t, d.Start(context.Background()))
	assert.True(t, d.Stats().Running)
}

func TestRestartDiscardsStaleTicks(t *testing.T) {
	bus := newFakeBus()
	bus.setHeartbeat(time.Now())
	d := startDetector(t, bus)

	require.Eventually(t, func() bool { return d.Stats().LastHeartbeat != nil }, time.Second, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond) // let any in-flight queue wait expire
	for i := 0; i < 3; i++ {
		d.AddMarketTick("AAPL", 100, 10, time.Time{})
	}
	d.Stop()
	require.Equal(t, 3, d.Stats().QueueDepth)

	require.NoError(t, d.Start(context.Background()))
	stats := d.Stats()
	assert.Zero(t, stats.QueueDepth)
	assert.Empty(t, stats.BufferSizes)
}

// Package flowlog traces a single event across producer, broker, consumer
// and delivery with one flow id and timestamped checkpoints.
package flowlog

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"TickStockApp/pkg/logger"
)

// FlowID identifies a tracked flow. The empty id means tracking is off.
type FlowID string

// IntegrationPoint is a boundary an event crosses.
type IntegrationPoint int

const (
	PatternDetected IntegrationPoint = iota + 1
	EventPublished
	RedisReceived
	EventParsed
	WebSocketQueued
	WebSocketDelivered
)

func (p IntegrationPoint) String() string {
	switch p {
	case PatternDetected:
		return "pattern_detected"
	case EventPublished:
		return "event_published"
	case RedisReceived:
		return "redis_received"
	case EventParsed:
		return "event_parsed"
	case WebSocketQueued:
		return "websocket_queued"
	case WebSocketDelivered:
		return "websocket_delivered"
	default:
		return fmt.Sprintf("IntegrationPoint(%d)", int(p))
	}
}

func (p IntegrationPoint) label(ev Event) string {
	switch p {
	case PatternDetected:
		return fmt.Sprintf("✓ Pattern Detected: %s@%s (%.0f%%)", ev.Pattern, ev.Symbol, ev.Confidence*100)
	case EventPublished:
		return "→ Published to Redis"
	case RedisReceived:
		return "← Received from Redis"
	case EventParsed:
		return fmt.Sprintf("✓ Event Parsed: %s@%s", ev.Pattern, ev.Symbol)
	case WebSocketQueued:
		return "→ Queued for WebSocket"
	case WebSocketDelivered:
		return "✓ Delivered via WebSocket"
	default:
		return p.String()
	}
}

// Checkpoint is one timestamped step of a flow.
type Checkpoint struct {
	Point  IntegrationPoint
	At     time.Time
	Detail string
}

type flow struct {
	event       Event
	start       time.Time
	checkpoints []Checkpoint
}

// Option configures a FlowLogger.
type Option func(*FlowLogger)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(f *FlowLogger) { f.now = now }
}

// WithSlowThreshold sets the total duration above which a completed flow is flagged.
func WithSlowThreshold(d time.Duration) Option {
	return func(f *FlowLogger) { f.slow = d }
}

// WithEnabled sets the initial enabled state.
func WithEnabled(enabled bool) Option {
	return func(f *FlowLogger) { f.enabled.Store(enabled) }
}

// FlowLogger traces events through the integration points between detection
// and delivery. It is safe for concurrent use; a disabled logger records
// nothing and hands out empty flow ids.
type FlowLogger struct {
	enabled atomic.Bool
	counter atomic.Uint64

	mu    sync.Mutex
	flows map[FlowID]*flow

	sinkMu sync.RWMutex
	base   *logger.Logger
	sink   *logger.Logger
	owned  *logger.Logger // file sink created by Configure

	now  func() time.Time
	slow time.Duration
}

// New creates a flow logger writing to base. It starts disabled unless WithEnabled is given.
func New(base *logger.Logger, opts ...Option) *FlowLogger {
	if base == nil {
		base = logger.Nop()
	}
	f := &FlowLogger{
		flows: make(map[FlowID]*flow),
		base:  base,
		sink:  base,
		now:   time.Now,
		slow:  100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Configure toggles tracking and, when filePath is set, routes flow lines to a
// dedicated rotating JSON file at the given level.
func (f *FlowLogger) Configure(enabled bool, filePath, level string) error {
	sink := f.base
	var owned *logger.Logger
	if filePath != "" {
		if level == "" {
			level = "info"
		}
		l, err := logger.New(&logger.Config{Level: level, Format: "json", Output: filePath})
		if err != nil {
			return fmt.Errorf("flow log sink: %w", err)
		}
		sink, owned = l, l
	}

	f.sinkMu.Lock()
	prev := f.owned
	f.sink, f.owned = sink, owned
	f.sinkMu.Unlock()

	if prev != nil {
		_ = prev.Close()
	}
	f.enabled.Store(enabled)
	return nil
}

// Enabled reports whether flows are being tracked.
func (f *FlowLogger) Enabled() bool { return f.enabled.Load() }

// Close releases a file sink opened by Configure.
func (f *FlowLogger) Close() error {
	f.sinkMu.Lock()
	owned := f.owned
	f.sink, f.owned = f.base, nil
	f.sinkMu.Unlock()
	if owned != nil {
		return owned.Close()
	}
	return nil
}

// StartFlow begins tracking ev and returns its id, or "" when disabled.
func (f *FlowLogger) StartFlow(ev Event) FlowID {
	if !f.enabled.Load() {
		return ""
	}
	id := FlowID(fmt.Sprintf("flow-%06d", f.counter.Add(1)))

	f.mu.Lock()
	f.flows[id] = &flow{event: ev, start: f.now()}
	f.mu.Unlock()

	f.logger().Debug(fmt.Sprintf("[%s] flow started", id),
		logger.String("flow_id", string(id)),
		logger.String("symbol", ev.Symbol),
		logger.String("pattern", ev.Pattern),
		logger.String("source", ev.Source),
	)
	return id
}

// LogCheckpoint records point on an active flow. Unknown ids are ignored.
func (f *FlowLogger) LogCheckpoint(id FlowID, point IntegrationPoint, detail string) {
	if id == "" || !f.enabled.Load() {
		return
	}

	f.mu.Lock()
	fl, ok := f.flows[id]
	if !ok {
		f.mu.Unlock()
		return
	}
	at := f.now()
	if n := len(fl.checkpoints); n > 0 && at.Before(fl.checkpoints[n-1].At) {
		at = fl.checkpoints[n-1].At
	}
	if at.Before(fl.start) {
		at = fl.start
	}
	fl.checkpoints = append(fl.checkpoints, Checkpoint{Point: point, At: at, Detail: detail})
	ev, elapsed := fl.event, at.Sub(fl.start)
	f.mu.Unlock()

	msg := fmt.Sprintf("[%s] %s", id, point.label(ev))
	if detail != "" {
		msg += " - " + detail
	}
	if elapsed > time.Millisecond {
		msg += fmt.Sprintf(" (+%dms)", elapsed.Milliseconds())
	}
	f.logger().Info(msg,
		logger.String("flow_id", string(id)),
		logger.String("point", point.String()),
		logger.Duration("elapsed_ms", elapsed),
	)
}

// CompleteFlow stops tracking id and flags it when it took too long.
func (f *FlowLogger) CompleteFlow(id FlowID) {
	if id == "" {
		return
	}

	f.mu.Lock()
	fl, ok := f.flows[id]
	delete(f.flows, id)
	f.mu.Unlock()
	if !ok {
		return
	}

	total := f.now().Sub(fl.start)
	fields := []logger.Field{
		logger.String("flow_id", string(id)),
		logger.String("symbol", fl.event.Symbol),
		logger.Int("checkpoints", len(fl.checkpoints)),
		logger.Duration("total_ms", total),
	}
	if total > f.slow {
		f.logger().Warn(fmt.Sprintf("[%s] slow flow: %dms", id, total.Milliseconds()), fields...)
		return
	}
	f.logger().Debug(fmt.Sprintf("[%s] flow complete", id), fields...)
}

// ActiveFlows returns the number of flows started but not completed.
func (f *FlowLogger) ActiveFlows() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.flows)
}

// Checkpoints returns a copy of the checkpoints recorded for an active flow.
func (f *FlowLogger) Checkpoints(id FlowID) []Checkpoint {
	f.mu.Lock()
	defer f.mu.Unlock()
	fl, ok := f.flows[id]
	if !ok {
		return nil
	}
	out := make([]Checkpoint, len(fl.checkpoints))
	copy(out, fl.checkpoints)
	return out
}

func (f *FlowLogger) logger() *logger.Logger {
	f.sinkMu.RLock()
	defer f.sinkMu.RUnlock()
	return f.sink
}

package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"TickStockApp/internal/domain/models"
	domrepo "TickStockApp/internal/domain/repository"
	"TickStockApp/internal/service/ratelimit"
	"TickStockApp/pkg/flowlog"
	"TickStockApp/pkg/logger"
)

// DetectorOption configures FallbackDetector.
type DetectorOption func(*DetectorConfig)

// DetectorConfig holds detector configuration.
type DetectorConfig struct {
	BufferSize        int
	QueueSize         int
	HeartbeatKey      string
	HeartbeatInterval time.Duration
	HeartbeatTTL      time.Duration
	IdleSleep         time.Duration
	QueueTimeout      time.Duration
	ErrorBackoff      time.Duration
	StopTimeout       time.Duration
	PublishTimeout    time.Duration
	WarningAfter      time.Duration
	PatternsChannel   string
	Namespace         string
	Expiry            time.Duration
	Now               func() time.Time

	Logger      *logger.Logger
	Metrics     domrepo.Metrics
	Broadcaster domrepo.Broadcaster
	Mirror      domrepo.DetectionMirror
	Flows       *flowlog.FlowLogger
}

// WithBufferSize sets the per-symbol ring capacity.
func WithBufferSize(n int) DetectorOption {
	return func(c *DetectorConfig) {
		if n > 0 {
			c.BufferSize = n
		}
	}
}

// WithQueueSize sets the detection queue capacity.
func WithQueueSize(n int) DetectorOption {
	return func(c *DetectorConfig) {
		if n > 0 {
			c.QueueSize = n
		}
	}
}

// WithHeartbeat sets the heartbeat key, poll interval and freshness window.
func WithHeartbeat(key string, interval, ttl time.Duration) DetectorOption {
	return func(c *DetectorConfig) {
		if key != "" {
			c.HeartbeatKey = key
		}
		if interval > 0 {
			c.HeartbeatInterval = interval
		}
		if ttl > 0 {
			c.HeartbeatTTL = ttl
		}
	}
}

// WithLoopTimings sets the idle sleep, queue pull timeout and error back-off.
func WithLoopTimings(idle, queue, backoff time.Duration) DetectorOption {
	return func(c *DetectorConfig) {
		if idle > 0 {
			c.IdleSleep = idle
		}
		if queue > 0 {
			c.QueueTimeout = queue
		}
		if backoff > 0 {
			c.ErrorBackoff = backoff
		}
	}
}

// WithPatternsChannel sets the channel detections are published on.
func WithPatternsChannel(ch string) DetectorOption {
	return func(c *DetectorConfig) {
		if ch != "" {
			c.PatternsChannel = ch
		}
	}
}

// WithDetectorClock replaces time.Now for timestamps and freshness checks.
func WithDetectorClock(now func() time.Time) DetectorOption {
	return func(c *DetectorConfig) { c.Now = now }
}

// WithDetectorLogger sets the logger.
func WithDetectorLogger(l *logger.Logger) DetectorOption {
	return func(c *DetectorConfig) {
		if l != nil {
			c.Logger = l
		}
	}
}

// WithDetectorMetrics sets the metrics sink.
func WithDetectorMetrics(m domrepo.Metrics) DetectorOption {
	return func(c *DetectorConfig) {
		if m != nil {
			c.Metrics = m
		}
	}
}

// WithBroadcaster sets the direct real-time delivery path.
func WithBroadcaster(b domrepo.Broadcaster) DetectorOption {
	return func(c *DetectorConfig) { c.Broadcaster = b }
}

// WithMirror sets an extra sink that receives every detection.
func WithMirror(m domrepo.DetectionMirror) DetectorOption {
	return func(c *DetectorConfig) { c.Mirror = m }
}

// WithFlowLogger enables flow checkpoints for published detections.
func WithFlowLogger(f *flowlog.FlowLogger) DetectorOption {
	return func(c *DetectorConfig) {
		if f != nil {
			c.Flows = f
		}
	}
}

// DetectorStats is a point-in-time view of the detector.
type DetectorStats struct {
	Running               bool           `json:"running"`
	PatternCount          int64          `json:"pattern_count"`
	BufferSizes           map[string]int `json:"buffer_sizes"`
	QueueDepth            int            `json:"queue_depth"`
	UpstreamAvailable     bool           `json:"upstream_available"`
	AvgDetectionLatencyMS float64        `json:"avg_detection_latency_ms"`
	RuntimeSeconds        float64        `json:"runtime_seconds"`
	LastDetection         *time.Time     `json:"last_detection,omitempty"`
	LastHeartbeat         *time.Time     `json:"last_heartbeat,omitempty"`
}

type queuedTick struct {
	symbol string
	seq    uint64
}

// FallbackDetector emits best-effort patterns from raw ticks while the
// upstream engine's heartbeat is stale.
type FallbackDetector struct {
	cfg *DetectorConfig
	bus domrepo.EventBus
	log *logger.Logger

	running       atomic.Bool
	upstream      atomic.Bool
	lastHeartbeat atomic.Int64 // unix nanos, 0 when never seen
	lastDetection atomic.Int64
	startedAt     atomic.Int64
	patternCount  atomic.Int64
	latencyBits   atomic.Uint64 // float64 EMA in ms

	mu      sync.Mutex
	buffers map[string]*tickRing

	queue   chan queuedTick
	dropLog *ratelimit.Limiter // per-symbol throttle for queue-full warnings

	lifecycle sync.Mutex
	cancel    context.CancelFunc
	loopDone  chan struct{}
}

// NewFallbackDetector creates a stopped detector publishing through bus.
func NewFallbackDetector(bus domrepo.EventBus, opts ...DetectorOption) *FallbackDetector {
	cfg := &DetectorConfig{
		BufferSize:        100,
		QueueSize:         1000,
		HeartbeatKey:      "tickstock:producer:heartbeat",
		HeartbeatInterval: 5 * time.Second,
		HeartbeatTTL:      30 * time.Second,
		IdleSleep:         1 * time.Second,
		QueueTimeout:      1 * time.Second,
		ErrorBackoff:      1 * time.Second,
		StopTimeout:       5 * time.Second,
		PublishTimeout:    2 * time.Second,
		WarningAfter:      5 * time.Minute,
		PatternsChannel:   "tickstock.events.patterns",
		Namespace:         "/",
		Expiry:            72 * time.Hour,
		Now:               time.Now,
		Logger:            logger.Nop(),
		Metrics:           domrepo.NopMetrics{},
		Flows:             flowlog.New(nil),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.BufferSize < maxHeuristicSpan {
		cfg.BufferSize = maxHeuristicSpan
	}

	return &FallbackDetector{
		cfg:     cfg,
		bus:     bus,
		log:     cfg.Logger.With(logger.String("component", "fallback_detector")),
		buffers: make(map[string]*tickRing),
		queue:   make(chan queuedTick, cfg.QueueSize),
		dropLog: ratelimit.New(1, 0.2, ratelimit.WithClock(cfg.Now)),
	}
}

// Start launches the detection loop and the heartbeat monitor. Calling it on a
// running detector is a no-op.
func (d *FallbackDetector) Start(ctx context.Context) error {
	d.lifecycle.Lock()
	defer d.lifecycle.Unlock()
	if d.running.Load() {
		return nil
	}

	d.resetState()

	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.loopDone = make(chan struct{})
	d.startedAt.Store(d.cfg.Now().UnixNano())
	d.running.Store(true)

	go d.detectionLoop(ctx, d.loopDone)
	go d.heartbeatMonitor(ctx)

	d.log.Info("fallback detector started",
		logger.String("channel", d.cfg.PatternsChannel),
		logger.String("heartbeat_key", d.cfg.HeartbeatKey),
	)
	return nil
}

// resetState drops ticks and history left over from a previous run.
func (d *FallbackDetector) resetState() {
	d.mu.Lock()
	d.buffers = make(map[string]*tickRing)
	d.mu.Unlock()
	for {
		select {
		case <-d.queue:
		default:
			return
		}
	}
}

// Stop signals both tasks and waits a bounded time for the detection loop.
func (d *FallbackDetector) Stop() {
	d.lifecycle.Lock()
	defer d.lifecycle.Unlock()
	if !d.running.Swap(false) {
		return
	}
	d.cancel()

	timer := time.NewTimer(d.cfg.StopTimeout)
	defer timer.Stop()
	select {
	case <-d.loopDone:
		d.log.Info("fallback detector stopped", logger.Int64("patterns", d.patternCount.Load()))
	case <-timer.C:
		d.log.Warn("detection loop did not exit in time", logger.Duration("timeout_ms", d.cfg.StopTimeout))
	}
}

// AddMarketTick buffers a tick and queues it for evaluation. It never blocks.
// A zero ts means now.
func (d *FallbackDetector) AddMarketTick(symbol string, price float64, volume int64, ts time.Time) {
	if !d.running.Load() {
		return
	}
	if symbol == "" || price <= 0 || volume < 0 {
		d.cfg.Metrics.RecordError("invalid_tick")
		d.log.Debug("invalid tick ignored",
			logger.String("symbol", symbol),
			logger.Float64("price", price),
			logger.Int64("volume", volume),
		)
		return
	}
	if ts.IsZero() {
		ts = d.cfg.Now()
	}
	tick := models.Tick{Symbol: symbol, Price: price, Volume: volume, Timestamp: ts}

	d.mu.Lock()
	ring, ok := d.buffers[symbol]
	if !ok {
		ring = newTickRing(d.cfg.BufferSize)
		d.buffers[symbol] = ring
	}
	seq := ring.push(tick)
	d.mu.Unlock()

	select {
	case d.queue <- queuedTick{symbol: symbol, seq: seq}:
		d.cfg.Metrics.RecordTickIngested(symbol)
	default:
		d.cfg.Metrics.RecordTickDropped(symbol)
		if d.dropLog.Allow(symbol) {
			d.log.Warn("detection queue full, tick dropped", logger.String("symbol", symbol))
		}
	}
}

// Stats returns current counters and buffer sizes.
func (d *FallbackDetector) Stats() DetectorStats {
	now := d.cfg.Now()
	s := DetectorStats{
		Running:               d.running.Load(),
		PatternCount:          d.patternCount.Load(),
		QueueDepth:            len(d.queue),
		UpstreamAvailable:     d.heartbeatFresh(now),
		AvgDetectionLatencyMS: math.Float64frombits(d.latencyBits.Load()),
	}
	if s.Running {
		s.RuntimeSeconds = now.Sub(time.Unix(0, d.startedAt.Load())).Seconds()
	}
	if v := d.lastDetection.Load(); v != 0 {
		t := time.Unix(0, v)
		s.LastDetection = &t
	}
	if v := d.lastHeartbeat.Load(); v != 0 {
		t := time.Unix(0, v)
		s.LastHeartbeat = &t
	}

	d.mu.Lock()
	s.BufferSizes = make(map[string]int, len(d.buffers))
	for sym, ring := range d.buffers {
		s.BufferSizes[sym] = ring.len()
	}
	d.mu.Unlock()
	return s
}

// HealthStatus derives the detector health from Stats.
func (d *FallbackDetector) HealthStatus() models.HealthStatus {
	s := d.Stats()
	switch {
	case !s.Running:
		return models.HealthInactive
	case s.UpstreamAvailable:
		return models.HealthStandby
	}

	quiet := s.RuntimeSeconds
	if s.LastDetection != nil {
		quiet = d.cfg.Now().Sub(*s.LastDetection).Seconds()
	}
	if quiet >= d.cfg.WarningAfter.Seconds() {
		return models.HealthWarning
	}
	return models.HealthActive
}

func (d *FallbackDetector) detectionLoop(ctx context.Context, done chan struct{}) {
	defer close(done)
	for ctx.Err() == nil {
		if err := d.step(ctx); err != nil {
			d.cfg.Metrics.RecordError("detection_loop")
			d.log.Error("detection loop error", logger.Error(err))
			if !sleepCtx(ctx, d.cfg.ErrorBackoff) {
				return
			}
		}
	}
}

// step runs one loop iteration. Panics are returned as errors.
func (d *FallbackDetector) step(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()

	if d.checkUpstreamStatus() {
		sleepCtx(ctx, d.cfg.IdleSleep)
		return nil
	}

	timer := time.NewTimer(d.cfg.QueueTimeout)
	defer timer.Stop()

	var item queuedTick
	select {
	case <-ctx.Done():
		return nil
	case <-timer.C:
		return nil
	case item = <-d.queue:
	}

	start := time.Now()
	detections := d.detect(item)
	elapsed := time.Since(start)
	d.observeLatency(elapsed)
	d.cfg.Metrics.RecordDetectionLatency(elapsed.Seconds())

	for _, det := range detections {
		d.publishPattern(ctx, det)
	}
	return nil
}

// detect runs every heuristic over the buffer as it stood when item arrived.
func (d *FallbackDetector) detect(item queuedTick) []*models.PatternDetection {
	d.mu.Lock()
	ring, ok := d.buffers[item.symbol]
	var ticks []models.Tick
	if ok {
		ticks = ring.upTo(item.seq, maxHeuristicSpan)
	}
	d.mu.Unlock()
	if len(ticks) == 0 {
		return nil
	}

	var out []*models.PatternDetection
	for _, h := range heuristics {
		if det := d.runHeuristic(h.kind, h.run, item.symbol, ticks); det != nil {
			out = append(out, det)
		}
	}
	return out
}

// runHeuristic isolates one heuristic so a failure in it does not suppress
// the others for the same tick.
func (d *FallbackDetector) runHeuristic(kind models.PatternKind, run heuristic, symbol string, ticks []models.Tick) (det *models.PatternDetection) {
	defer func() {
		if r := recover(); r != nil {
			det = nil
			d.cfg.Metrics.RecordError("heuristic_panic")
			d.log.Error("heuristic failed",
				logger.String("pattern", kind.String()),
				logger.String("symbol", symbol),
				logger.Any("panic", r),
			)
		}
	}()
	return run(symbol, ticks)
}

func (d *FallbackDetector) publishPattern(ctx context.Context, det *models.PatternDetection) {
	now := d.cfg.Now()
	ev := models.NewFallbackEvent(det, now, d.cfg.Expiry)

	flowID := d.cfg.Flows.StartFlow(flowlog.Event{
		Symbol:     det.Symbol,
		Pattern:    det.Kind.String(),
		Confidence: det.Confidence,
		Source:     models.DataSourceFallback,
	})
	defer d.cfg.Flows.CompleteFlow(flowID)
	d.cfg.Flows.LogCheckpoint(flowID, flowlog.PatternDetected, "")

	d.patternCount.Add(1)
	d.lastDetection.Store(now.UnixNano())
	d.cfg.Metrics.RecordDetection(det.Kind.String())
	d.log.Info("fallback pattern detected",
		logger.String("symbol", det.Symbol),
		logger.String("pattern", det.Kind.String()),
		logger.Float64("confidence", det.Confidence),
		logger.String("direction", det.Direction.String()),
	)

	payload, err := json.Marshal(ev)
	if err != nil {
		d.log.Error("encode pattern event", logger.Error(err))
		return
	}

	pctx, cancel := context.WithTimeout(ctx, d.cfg.PublishTimeout)
	defer cancel()

	if err := d.bus.Publish(pctx, d.cfg.PatternsChannel, payload); err != nil {
		d.cfg.Metrics.RecordPublishError("redis")
		d.log.Warn("pattern publish failed", logger.String("symbol", det.Symbol), logger.Error(err))
	} else {
		d.cfg.Flows.LogCheckpoint(flowID, flowlog.EventPublished, d.cfg.PatternsChannel)
	}

	if d.cfg.Broadcaster != nil {
		d.cfg.Flows.LogCheckpoint(flowID, flowlog.WebSocketQueued, "direct")
		if err := d.cfg.Broadcaster.Emit("pattern_alert", ev, d.cfg.Namespace); err != nil {
			d.cfg.Metrics.RecordPublishError("websocket")
			d.log.Warn("pattern emit failed", logger.String("symbol", det.Symbol), logger.Error(err))
		} else {
			d.cfg.Flows.LogCheckpoint(flowID, flowlog.WebSocketDelivered, "direct")
		}
	}

	if d.cfg.Mirror != nil {
		if err := d.cfg.Mirror.Mirror(pctx, ev); err != nil {
			d.cfg.Metrics.RecordPublishError("kafka")
			d.log.Warn("pattern mirror failed", logger.String("symbol", det.Symbol), logger.Error(err))
		}
	}
}

// checkUpstreamStatus refreshes the cached upstream flag and logs transitions.
func (d *FallbackDetector) checkUpstreamStatus() bool {
	available := d.heartbeatFresh(d.cfg.Now())
	if prev := d.upstream.Swap(available); prev != available {
		d.cfg.Metrics.SetUpstreamAvailable(available)
		if available {
			d.log.Info("upstream heartbeat fresh, fallback detection on standby")
		} else {
			d.log.Info("upstream heartbeat stale, fallback detection active")
		}
	}
	return available
}

func (d *FallbackDetector) heartbeatFresh(now time.Time) bool {
	v := d.lastHeartbeat.Load()
	if v == 0 {
		return false
	}
	return now.Sub(time.Unix(0, v)) <= d.cfg.HeartbeatTTL
}

func (d *FallbackDetector) heartbeatMonitor(ctx context.Context) {
	d.pollHeartbeat(ctx)

	ticker := time.NewTicker(d.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.pollHeartbeat(ctx)
		}
	}
}

func (d *FallbackDetector) pollHeartbeat(ctx context.Context) {
	hctx, cancel := context.WithTimeout(ctx, d.cfg.PublishTimeout)
	defer cancel()

	ts, err := d.bus.LastHeartbeat(hctx, d.cfg.HeartbeatKey)
	if err != nil {
		if ctx.Err() == nil {
			d.cfg.Metrics.RecordError("heartbeat_poll")
			d.log.Warn("heartbeat poll failed", logger.Error(err))
		}
		return
	}
	if ts.IsZero() {
		d.lastHeartbeat.Store(0)
		return
	}
	d.lastHeartbeat.Store(ts.UnixNano())
}

func (d *FallbackDetector) observeLatency(elapsed time.Duration) {
	sample := float64(elapsed) / float64(time.Millisecond)
	for {
		old := d.latencyBits.Load()
		next := 0.9*math.Float64frombits(old) + 0.1*sample
		if d.latencyBits.CompareAndSwap(old, math.Float64bits(next)) {
			return
		}
	}
}

// sleepCtx waits for d or ctx, reporting false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

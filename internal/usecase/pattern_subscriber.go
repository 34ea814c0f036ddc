package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	domrepo "TickStockApp/internal/domain/repository"
	"TickStockApp/pkg/flowlog"
	"TickStockApp/pkg/logger"
)

// SubscriberOption configures PatternSubscriber.
type SubscriberOption func(*PatternSubscriber)

// WithSkipSources drops events whose data.source matches, typically events
// this process already delivered itself.
func WithSkipSources(sources ...string) SubscriberOption {
	return func(s *PatternSubscriber) {
		for _, src := range sources {
			s.skip[src] = struct{}{}
		}
	}
}

// WithSubscriberNamespace sets the namespace events are emitted to.
func WithSubscriberNamespace(ns string) SubscriberOption {
	return func(s *PatternSubscriber) {
		if ns != "" {
			s.namespace = ns
		}
	}
}

// WithSubscriberFlows traces received events with f.
func WithSubscriberFlows(f *flowlog.FlowLogger) SubscriberOption {
	return func(s *PatternSubscriber) {
		if f != nil {
			s.flows = f
		}
	}
}

// WithSubscriberMetrics sets the metrics sink.
func WithSubscriberMetrics(m domrepo.Metrics) SubscriberOption {
	return func(s *PatternSubscriber) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithResubscribeBackoff bounds the delay between resubscribe attempts after
// the subscription drops. The delay doubles on each failed attempt.
func WithResubscribeBackoff(min, max time.Duration) SubscriberOption {
	return func(s *PatternSubscriber) {
		if min > 0 {
			s.backoffMin = min
		}
		if max >= s.backoffMin {
			s.backoffMax = max
		}
	}
}

// PatternSubscriber relays pattern events from the bus to real-time clients.
type PatternSubscriber struct {
	bus       domrepo.EventBus
	out       domrepo.Broadcaster
	channel   string
	namespace string
	skip      map[string]struct{}
	flows     *flowlog.FlowLogger
	metrics   domrepo.Metrics
	log       *logger.Logger

	backoffMin time.Duration
	backoffMax time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewPatternSubscriber(bus domrepo.EventBus, out domrepo.Broadcaster, channel string, l *logger.Logger, opts ...SubscriberOption) *PatternSubscriber {
	if l == nil {
		l = logger.Nop()
	}
	s := &PatternSubscriber{
		bus:       bus,
		out:       out,
		channel:   channel,
		namespace: "/",
		skip:      make(map[string]struct{}),
		flows:     flowlog.New(nil),
		metrics:   domrepo.NopMetrics{},
		log:       l.With(logger.String("component", "pattern_subscriber")),

		backoffMin: 500 * time.Millisecond,
		backoffMax: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start subscribes and relays until ctx ends or Stop is called.
func (s *PatternSubscriber) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	msgs, err := s.bus.Subscribe(ctx, s.channel)
	if err != nil {
		cancel()
		return fmt.Errorf("subscribe %s: %w", s.channel, err)
	}
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.relay(ctx, msgs, s.done)

	s.log.Info("pattern subscriber started", logger.String("channel", s.channel))
	return nil
}

// Stop ends the subscription and waits for the relay to exit.
func (s *PatternSubscriber) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// relay forwards messages and resubscribes whenever the subscription closes
// while ctx is still live.
func (s *PatternSubscriber) relay(ctx context.Context, msgs <-chan []byte, done chan struct{}) {
	defer close(done)
	for {
		for payload := range msgs {
			s.handle(payload)
		}
		if ctx.Err() != nil {
			return
		}
		s.metrics.RecordError("subscription_lost")
		s.log.Warn("pattern subscription lost, resubscribing", logger.String("channel", s.channel))

		next, ok := s.resubscribe(ctx)
		if !ok {
			return
		}
		msgs = next
		s.log.Info("pattern subscription restored", logger.String("channel", s.channel))
	}
}

func (s *PatternSubscriber) resubscribe(ctx context.Context) (<-chan []byte, bool) {
	delay := s.backoffMin
	for {
		if !sleepCtx(ctx, delay) {
			return nil, false
		}
		msgs, err := s.bus.Subscribe(ctx, s.channel)
		if err == nil {
			return msgs, true
		}
		s.log.Warn("resubscribe failed", logger.String("channel", s.channel), logger.Error(err))
		delay *= 2
		if delay > s.backoffMax {
			delay = s.backoffMax
		}
	}
}

func (s *PatternSubscriber) handle(payload []byte) {
	ev, err := flowlog.ParseEvent(payload)
	if err != nil {
		s.metrics.RecordError("pattern_decode")
		s.log.Warn("undecodable pattern event", logger.Error(err))
		return
	}
	if _, skip := s.skip[ev.Source]; skip {
		return
	}

	id := s.flows.StartFlow(ev)
	defer s.flows.CompleteFlow(id)
	s.flows.LogCheckpoint(id, flowlog.RedisReceived, s.channel)

	if ev.Symbol == "" || ev.Pattern == "" {
		s.metrics.RecordError("pattern_decode")
		s.log.Warn("pattern event missing symbol or pattern", logger.String("symbol", ev.Symbol))
		return
	}
	s.flows.LogCheckpoint(id, flowlog.EventParsed, "")

	// payload is forwarded as-is; upstream producers nest fields differently
	s.flows.LogCheckpoint(id, flowlog.WebSocketQueued, s.namespace)
	if err := s.out.Emit("pattern_alert", json.RawMessage(payload), s.namespace); err != nil {
		s.metrics.RecordPublishError("websocket")
		s.log.Warn("pattern emit failed", logger.String("symbol", ev.Symbol), logger.Error(err))
		return
	}
	s.flows.LogCheckpoint(id, flowlog.WebSocketDelivered, "")
}

package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"TickStockApp/internal/domain/models"
	domrepo "TickStockApp/internal/domain/repository"
	"TickStockApp/pkg/logger"
)

// HealthSource reports detector state.
type HealthSource interface {
	Stats() DetectorStats
	HealthStatus() models.HealthStatus
}

// HealthPublisher periodically announces detector health on the bus.
type HealthPublisher struct {
	bus      domrepo.EventBus
	src      HealthSource
	channel  string
	interval time.Duration
	now      func() time.Time
	log      *logger.Logger
}

func NewHealthPublisher(bus domrepo.EventBus, src HealthSource, channel string, interval time.Duration, l *logger.Logger) *HealthPublisher {
	if l == nil {
		l = logger.Nop()
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &HealthPublisher{
		bus:      bus,
		src:      src,
		channel:  channel,
		interval: interval,
		now:      time.Now,
		log:      l.With(logger.String("component", "health_publisher")),
	}
}

// Run publishes once immediately and then every interval until ctx ends.
func (p *HealthPublisher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		if err := p.PublishOnce(ctx); err != nil && ctx.Err() == nil {
			p.log.Warn("health publish failed", logger.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// PublishOnce sends the current health snapshot.
func (p *HealthPublisher) PublishOnce(ctx context.Context) error {
	ev := models.HealthEvent{
		EventType: "fallback_health",
		Source:    models.EventSourceFallback,
		Timestamp: models.UnixSeconds(p.now()),
		Status:    p.src.HealthStatus(),
		Stats:     p.src.Stats(),
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode health event: %w", err)
	}
	if err := p.bus.Publish(ctx, p.channel, b); err != nil {
		return fmt.Errorf("publish health: %w", err)
	}
	return nil
}

package repository

import (
	"context"
	"time"

	"TickStockApp/internal/domain/models"
)

// EventBus is the pub-sub broker shared with the upstream engine.
type EventBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	// LastHeartbeat returns the upstream heartbeat time, or the zero time if the key is absent.
	LastHeartbeat(ctx context.Context, key string) (time.Time, error)
}

// Broadcaster pushes events to connected real-time clients.
type Broadcaster interface {
	Emit(event string, payload interface{}, namespace string) error
}

// DetectionMirror receives a copy of every fallback detection.
type DetectionMirror interface {
	Mirror(ctx context.Context, ev *models.PatternEvent) error
}

type Metrics interface {
	RecordTickIngested(symbol string)
	RecordTickDropped(symbol string)
	RecordDetection(pattern string)
	RecordPublishError(target string)
	RecordDetectionLatency(seconds float64)
	SetUpstreamAvailable(available bool)
	RecordValidationStep(step string, seconds float64, ok bool)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}

// NopMetrics discards everything.
type NopMetrics struct{}

func (NopMetrics) RecordTickIngested(string)                  {}
func (NopMetrics) RecordTickDropped(string)                   {}
func (NopMetrics) RecordDetection(string)                     {}
func (NopMetrics) RecordPublishError(string)                  {}
func (NopMetrics) RecordDetectionLatency(float64)             {}
func (NopMetrics) SetUpstreamAvailable(bool)                  {}
func (NopMetrics) RecordValidationStep(string, float64, bool) {}
func (NopMetrics) RecordError(string)                         {}
func (NopMetrics) RecordLatency(string, float64)              {}

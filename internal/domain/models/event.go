package models

import "time"

const (
	EventTypePatternDetected = "pattern_detected"
	EventSourceFallback      = "fallback_detector"
	DataSourceFallback       = "fallback"
)

// PatternEvent is the envelope published on the patterns channel.
type PatternEvent struct {
	EventType string           `json:"event_type"`
	Source    string           `json:"source"`
	Timestamp float64          `json:"timestamp"`
	Data      PatternEventData `json:"data"`
}

type PatternEventData struct {
	Symbol       string          `json:"symbol"`
	Pattern      string          `json:"pattern"`
	Confidence   float64         `json:"confidence"`
	CurrentPrice float64         `json:"current_price"`
	PriceChange  float64         `json:"price_change"`
	Timestamp    float64         `json:"timestamp"`
	ExpiresAt    float64         `json:"expires_at"`
	Indicators   EventIndicators `json:"indicators"`
	Source       string          `json:"source"`
	Direction    string          `json:"direction,omitempty"`
}

type EventIndicators struct {
	RelativeStrength float64 `json:"relative_strength"`
	RelativeVolume   float64 `json:"relative_volume"`
	Volume           int64   `json:"volume"`
}

// NewFallbackEvent builds the envelope for a locally detected pattern.
// expiry is added to the detection timestamp to compute expires_at.
func NewFallbackEvent(d *PatternDetection, now time.Time, expiry time.Duration) *PatternEvent {
	priceChange := d.Metadata["price_change_pct"]
	if v, ok := d.Metadata["gap_percent"]; ok {
		priceChange = v
	}
	relVolume := 1.0
	if v, ok := d.Metadata["volume_ratio"]; ok {
		relVolume = v
	}

	return &PatternEvent{
		EventType: EventTypePatternDetected,
		Source:    EventSourceFallback,
		Timestamp: UnixSeconds(now),
		Data: PatternEventData{
			Symbol:       d.Symbol,
			Pattern:      d.Kind.String(),
			Confidence:   d.Confidence,
			CurrentPrice: d.Price,
			PriceChange:  priceChange,
			Timestamp:    UnixSeconds(d.Timestamp),
			ExpiresAt:    UnixSeconds(d.Timestamp.Add(expiry)),
			Indicators: EventIndicators{
				RelativeStrength: 1 + priceChange/100,
				RelativeVolume:   relVolume,
				Volume:           d.Volume,
			},
			Source:    DataSourceFallback,
			Direction: d.Direction.String(),
		},
	}
}

// IsFallback reports whether the event came from the local detector.
func (e *PatternEvent) IsFallback() bool {
	return e.Data.Source == DataSourceFallback
}

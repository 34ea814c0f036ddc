package redisvalidator

import (
	"strings"
	"time"
)

// Environment selects latency thresholds. Only PRODUCTION is strict.
type Environment string

const Production Environment = "PRODUCTION"

func (e Environment) IsProduction() bool {
	return strings.EqualFold(string(e), string(Production))
}

func (e Environment) label() string {
	if e.IsProduction() {
		return "production"
	}
	return "non-production"
}

// Thresholds are the latency limits for one environment.
type Thresholds struct {
	MaxLatency time.Duration // hard ceiling, exceeding it fails
	AvgWarn    time.Duration // average above this warns
	MaxWarn    time.Duration // max above this warns
}

// ThresholdsFor returns the limits for env.
func ThresholdsFor(env Environment) Thresholds {
	if env.IsProduction() {
		return Thresholds{
			MaxLatency: 50 * time.Millisecond,
			AvgWarn:    10 * time.Millisecond,
			MaxWarn:    25 * time.Millisecond,
		}
	}
	return Thresholds{
		MaxLatency: 5000 * time.Millisecond,
		AvgWarn:    100 * time.Millisecond,
		MaxWarn:    1000 * time.Millisecond,
	}
}

type ConnectivityReport struct {
	PingOK        bool     `json:"ping_ok"`
	LatencyMS     float64  `json:"latency_ms"`
	ServerVersion string   `json:"server_version,omitempty"`
	UptimeSeconds int64    `json:"uptime_seconds,omitempty"`
	Warnings      []string `json:"warnings,omitempty"`
}

type PubSubReport struct {
	TestChannel        string   `json:"test_channel"`
	SubscribeLatencyMS float64  `json:"subscribe_latency_ms"`
	ChannelsProbed     []string `json:"channels_probed"`
	Warnings           []string `json:"warnings,omitempty"`
}

type PerformanceReport struct {
	Samples  int      `json:"samples"`
	AvgMS    float64  `json:"avg_ms"`
	MinMS    float64  `json:"min_ms"`
	MaxMS    float64  `json:"max_ms"`
	Warnings []string `json:"warnings,omitempty"`
}

// ValidationReport is the outcome of one InitializeMandatory run.
type ValidationReport struct {
	Environment  Environment         `json:"environment"`
	StartedAt    time.Time           `json:"started_at"`
	DurationMS   float64             `json:"duration_ms"`
	Success      bool                `json:"success"`
	FailedStep   string              `json:"failed_step,omitempty"`
	Error        string              `json:"error,omitempty"`
	Connectivity *ConnectivityReport `json:"connectivity,omitempty"`
	PubSub       *PubSubReport       `json:"pubsub,omitempty"`
	Performance  *PerformanceReport  `json:"performance,omitempty"`
}

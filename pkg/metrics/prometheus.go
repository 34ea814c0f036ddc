package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	ticksIngested     *prometheus.CounterVec
	ticksDropped      *prometheus.CounterVec
	detections        *prometheus.CounterVec
	publishErrors     *prometheus.CounterVec
	errorsTotal       *prometheus.CounterVec
	detectionLatency  prometheus.Histogram
	upstreamAvailable prometheus.Gauge
	validationSteps   *prometheus.HistogramVec
	latency           *prometheus.HistogramVec
}

// New creates a recorder registered on the default Prometheus registry.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a recorder registered on reg.
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		ticksIngested: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tickstock_fallback_ticks_ingested_total",
				Help: "Ticks accepted into the fallback detector",
			},
			[]string{"symbol"},
		),
		ticksDropped: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tickstock_fallback_ticks_dropped_total",
				Help: "Ticks dropped because the detection queue was full",
			},
			[]string{"symbol"},
		),
		detections: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tickstock_fallback_detections_total",
				Help: "Patterns emitted by the fallback detector",
			},
			[]string{"pattern"},
		),
		publishErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tickstock_publish_errors_total",
				Help: "Failed publishes by delivery target",
			},
			[]string{"target"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tickstock_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		detectionLatency: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tickstock_fallback_detection_seconds",
				Help:    "Time spent running heuristics for one tick",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
			},
		),
		upstreamAvailable: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "tickstock_upstream_available",
				Help: "1 when the upstream engine heartbeat is fresh",
			},
		),
		validationSteps: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tickstock_redis_validation_step_seconds",
				Help:    "Duration of startup Redis validation steps",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"step", "result"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tickstock_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordTickIngested counts a tick accepted by the detector.
func (r *Recorder) RecordTickIngested(symbol string) {
	r.ticksIngested.WithLabelValues(symbol).Inc()
}

// RecordTickDropped counts a tick dropped on a full queue.
func (r *Recorder) RecordTickDropped(symbol string) {
	r.ticksDropped.WithLabelValues(symbol).Inc()
}

// RecordDetection counts an emitted pattern.
func (r *Recorder) RecordDetection(pattern string) {
	r.detections.WithLabelValues(pattern).Inc()
}

// RecordPublishError counts a failed publish to redis, websocket or kafka.
func (r *Recorder) RecordPublishError(target string) {
	r.publishErrors.WithLabelValues(target).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordDetectionLatency observes one detection cycle.
func (r *Recorder) RecordDetectionLatency(seconds float64) {
	r.detectionLatency.Observe(seconds)
}

// SetUpstreamAvailable flips the upstream gauge.
func (r *Recorder) SetUpstreamAvailable(available bool) {
	if available {
		r.upstreamAvailable.Set(1)
		return
	}
	r.upstreamAvailable.Set(0)
}

// RecordValidationStep observes a startup validation step.
func (r *Recorder) RecordValidationStep(step string, seconds float64, ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	r.validationSteps.WithLabelValues(step, result).Observe(seconds)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

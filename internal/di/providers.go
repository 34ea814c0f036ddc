package di

import (
	"context"
	"fmt"
	"time"

	"TickStockApp/internal/domain/models"
	"TickStockApp/internal/domain/repository"
	"TickStockApp/internal/handler/api"
	internalrepo "TickStockApp/internal/repository"
	"TickStockApp/internal/service/redisvalidator"
	"TickStockApp/internal/usecase"
	"TickStockApp/pkg/config"
	"TickStockApp/pkg/flowlog"
	xhttp "TickStockApp/pkg/http"
	pkgkafka "TickStockApp/pkg/kafka"
	applogger "TickStockApp/pkg/logger"
	"TickStockApp/pkg/metrics"
	"TickStockApp/pkg/server"
	"TickStockApp/pkg/websocket"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

// startupValidationTimeout bounds the whole mandatory Redis check.
const startupValidationTimeout = 30 * time.Second

// ProvideLogger creates the application logger from the logging section.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("service", "tickstock_app")), nil
}

// ProvideRegistry creates the Prometheus registry served on /metrics.
func ProvideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics(reg *prometheus.Registry) repository.Metrics {
	return metrics.NewWithRegistry(reg)
}

// ProvideRedisValidator creates the startup validator.
func ProvideRedisValidator(cfg *config.Config, l *applogger.Logger, m repository.Metrics) *redisvalidator.Validator {
	return redisvalidator.New(
		redisvalidator.WithSubscribeTimeout(cfg.Redis.SubscribeTimeout),
		redisvalidator.WithPerfSamples(cfg.Redis.PerfSamples),
		redisvalidator.WithRequiredChannels(requiredChannels(cfg)),
		redisvalidator.WithLogger(l),
		redisvalidator.WithMetrics(m),
	)
}

// requiredChannels is the configured patterns and health channels plus the
// backtesting channels, which have no config keys of their own.
func requiredChannels(cfg *config.Config) []string {
	return []string{
		cfg.Detector.PatternsChannel,
		redisvalidator.ChannelBacktestingProgress,
		redisvalidator.ChannelBacktestingResults,
		cfg.Detector.HealthChannel,
	}
}

// ProvideRedisClient runs the mandatory Redis validation and returns the
// validated client. Startup fails if any step fails.
func ProvideRedisClient(cfg *config.Config, v *redisvalidator.Validator) (*redis.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), startupValidationTimeout)
	defer cancel()

	client, err := v.InitializeMandatory(ctx, redisvalidator.ConnectionConfig{
		URL:      cfg.Redis.URL,
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		DB:       cfg.Redis.DB,
		Password: cfg.Redis.Password,
	}, redisvalidator.Environment(cfg.Environment))
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	return client, nil
}

// ProvideRedisBus wraps the validated client and routes aggregated error
// logs to the health channel.
func ProvideRedisBus(cfg *config.Config, client *redis.Client, l *applogger.Logger) *internalrepo.RedisBus {
	bus := internalrepo.NewRedisBus(client, l)
	if cfg.Logging.ErrorSummaryInterval > 0 {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval: cfg.Logging.ErrorSummaryInterval,
			Topic:        cfg.Detector.HealthChannel,
			Publisher:    bus,
		})
	}
	return bus
}

// ProvideFlowLogger creates the integration flow logger.
func ProvideFlowLogger(cfg *config.Config, l *applogger.Logger) (*flowlog.FlowLogger, error) {
	f := flowlog.New(l.With(applogger.String("component", "flow")))
	if err := f.Configure(cfg.FlowLog.Enabled, cfg.FlowLog.FilePath, cfg.FlowLog.Level); err != nil {
		return nil, err
	}
	return f, nil
}

// ProvideHub creates the websocket hub.
func ProvideHub(l *applogger.Logger) *websocket.Hub {
	return websocket.NewHub(l)
}

// ProvideKafkaProducer creates a producer for the detections topic, or nil
// when no detections topic is configured.
func ProvideKafkaProducer(cfg *config.Config, reg *prometheus.Registry, l *applogger.Logger) (*pkgkafka.Producer, error) {
	if cfg.Kafka.DetectionsTopic == "" || len(cfg.Kafka.Brokers) == 0 {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithHashByKey(true),
		pkgkafka.WithProducerRegisterer(reg),
		pkgkafka.WithProducerLogger(l),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideDetectionMirror mirrors detections to Kafka when a producer exists.
func ProvideDetectionMirror(producer *pkgkafka.Producer, cfg *config.Config) repository.DetectionMirror {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaMirror(producer, cfg.Kafka.DetectionsTopic)
}

// ProvideFallbackDetector creates the fallback detector.
func ProvideFallbackDetector(
	cfg *config.Config,
	bus *internalrepo.RedisBus,
	hub *websocket.Hub,
	mirror repository.DetectionMirror,
	flows *flowlog.FlowLogger,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.FallbackDetector {
	return usecase.NewFallbackDetector(bus,
		usecase.WithBufferSize(cfg.Detector.BufferSize),
		usecase.WithQueueSize(cfg.Detector.QueueSize),
		usecase.WithHeartbeat(cfg.Detector.HeartbeatKey, cfg.Detector.HeartbeatInterval, cfg.Detector.HeartbeatTTL),
		usecase.WithPatternsChannel(cfg.Detector.PatternsChannel),
		usecase.WithBroadcaster(hub),
		usecase.WithMirror(mirror),
		usecase.WithFlowLogger(flows),
		usecase.WithDetectorMetrics(m),
		usecase.WithDetectorLogger(l),
	)
}

// ProvidePatternSubscriber relays upstream pattern events to the hub.
func ProvidePatternSubscriber(
	cfg *config.Config,
	bus *internalrepo.RedisBus,
	hub *websocket.Hub,
	flows *flowlog.FlowLogger,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.PatternSubscriber {
	return usecase.NewPatternSubscriber(bus, hub, cfg.Detector.PatternsChannel, l,
		usecase.WithSkipSources(models.DataSourceFallback),
		usecase.WithSubscriberFlows(flows),
		usecase.WithSubscriberMetrics(m),
	)
}

// ProvideHealthPublisher publishes detector health on the health channel.
func ProvideHealthPublisher(cfg *config.Config, bus *internalrepo.RedisBus, det *usecase.FallbackDetector, l *applogger.Logger) *usecase.HealthPublisher {
	return usecase.NewHealthPublisher(bus, det, cfg.Detector.HealthChannel, cfg.Detector.HealthPublishInterval, l)
}

// ProvideKafkaConsumer creates the tick consumer, or nil when no brokers are configured.
func ProvideKafkaConsumer(cfg *config.Config, reg *prometheus.Registry, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
		pkgkafka.WithConsumerRegisterer(reg),
		pkgkafka.WithConsumerLogger(l),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(pkgkafka.NewHookChain(pkgkafka.TraceHook(), pkgkafka.LoggingHook(l)))
	return consumer, nil
}

// ProvideKafkaTicksHandler feeds the ticks topic into the detector.
func ProvideKafkaTicksHandler(cfg *config.Config, det *usecase.FallbackDetector, m repository.Metrics) *usecase.KafkaTicksHandler {
	return usecase.NewKafkaTicksHandler(cfg.Kafka.TicksTopic, det, m)
}

// ProvideIntegrationHandler creates the diagnostics HTTP handler.
func ProvideIntegrationHandler(
	l *applogger.Logger,
	det *usecase.FallbackDetector,
	bus *internalrepo.RedisBus,
	v *redisvalidator.Validator,
	hub *websocket.Hub,
) *api.IntegrationEchoHandler {
	return api.NewIntegrationEchoHandler(l, det, bus, v, hub)
}

// ProvideHTTPServer creates the echo server.
func ProvideHTTPServer(cfg *config.Config, h *api.IntegrationEchoHandler, reg *prometheus.Registry, l *applogger.Logger) *xhttp.Server {
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	return xhttp.NewServer([]xhttp.Handler{h},
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithMetrics(metricsPath, reg),
		xhttp.WithLogger(l),
	)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	client *redis.Client,
	det *usecase.FallbackDetector,
	sub *usecase.PatternSubscriber,
	health *usecase.HealthPublisher,
	consumer *pkgkafka.Consumer,
	ticks *usecase.KafkaTicksHandler,
	producer *pkgkafka.Producer,
	hub *websocket.Hub,
	httpServer *xhttp.Server,
	flows *flowlog.FlowLogger,
) *server.App {
	return server.New(cfg, server.Components{
		Logger:     l,
		Detector:   det,
		Subscriber: sub,
		Health:     health,
		Consumer:   consumer,
		Ticks:      ticks,
		Producer:   producer,
		Hub:        hub,
		HTTP:       httpServer,
		Flows:      flows,
		Redis:      client,
	})
}

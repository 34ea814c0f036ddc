//go:build wireinject
// +build wireinject

package di

import (
	"TickStockApp/pkg/config"
	"TickStockApp/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Observability
		ProvideLogger,
		ProvideRegistry,
		ProvideMetrics,
		ProvideFlowLogger,

		// Redis, validated before anything else touches it
		ProvideRedisValidator,
		ProvideRedisClient,
		ProvideRedisBus,

		// Kafka
		ProvideKafkaProducer,
		ProvideDetectionMirror,
		ProvideKafkaConsumer,

		// Delivery
		ProvideHub,

		// Use cases
		ProvideFallbackDetector,
		ProvidePatternSubscriber,
		ProvideHealthPublisher,
		ProvideKafkaTicksHandler,

		// HTTP
		ProvideIntegrationHandler,
		ProvideHTTPServer,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}

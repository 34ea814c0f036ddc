package server

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"TickStockApp/internal/usecase"
	"TickStockApp/pkg/config"
	"TickStockApp/pkg/flowlog"
	xhttp "TickStockApp/pkg/http"
	pkgkafka "TickStockApp/pkg/kafka"
	applogger "TickStockApp/pkg/logger"
	"TickStockApp/pkg/websocket"
)

// Components groups everything the App starts and stops.
type Components struct {
	Logger     *applogger.Logger
	Detector   *usecase.FallbackDetector
	Subscriber *usecase.PatternSubscriber
	Health     *usecase.HealthPublisher
	Consumer   *pkgkafka.Consumer   // nil when no brokers are configured
	Ticks      pkgkafka.MessageHandler
	Producer   *pkgkafka.Producer   // nil unless detections are mirrored
	Hub        *websocket.Hub
	HTTP       *xhttp.Server
	Flows      *flowlog.FlowLogger
	Redis      io.Closer
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg *config.Config
	c   Components
	log *applogger.Logger
}

// New creates a new App instance with all dependencies.
func New(cfg *config.Config, c Components) *App {
	l := c.Logger
	if l == nil {
		l = applogger.Nop()
	}
	return &App{cfg: cfg, c: c, log: l}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Start(ctx); err != nil {
		a.shutdown()
		return err
	}

	<-ctx.Done()
	a.log.Info("shutdown signal received")
	a.shutdown()
	return nil
}

// Start launches background components. It returns once they are running.
func (a *App) Start(ctx context.Context) error {
	if a.cfg.Detector.Enabled && a.c.Detector != nil {
		if err := a.c.Detector.Start(ctx); err != nil {
			return err
		}
		if a.c.Health != nil {
			go a.c.Health.Run(ctx)
		}
	}

	if a.c.Subscriber != nil {
		if err := a.c.Subscriber.Start(ctx); err != nil {
			return err
		}
	}

	if a.c.Consumer != nil && a.c.Ticks != nil {
		a.c.Consumer.RegisterHandler(a.c.Ticks)
		if err := a.c.Consumer.Start(); err != nil {
			return err
		}
		a.log.Info("kafka tick ingestion started", applogger.String("topic", a.c.Ticks.Topic()))
	}

	if a.c.HTTP != nil {
		if err := a.c.HTTP.Start(); err != nil {
			return err
		}
	}

	a.log.Info("tickstock app started",
		applogger.String("environment", a.cfg.Environment),
		applogger.Bool("fallback_detector", a.cfg.Detector.Enabled),
		applogger.Bool("flow_logging", a.c.Flows != nil && a.c.Flows.Enabled()),
	)
	return nil
}

// shutdown stops producers of work before the sinks they write to.
func (a *App) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout+5*time.Second)
	defer cancel()

	if a.c.HTTP != nil {
		if err := a.c.HTTP.Stop(ctx); err != nil {
			a.log.Error("http shutdown error", applogger.Error(err))
		}
	}
	if a.c.Consumer != nil {
		if err := a.c.Consumer.Stop(ctx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}
	if a.c.Subscriber != nil {
		a.c.Subscriber.Stop()
	}
	if a.c.Detector != nil {
		a.c.Detector.Stop()
	}
	if a.c.Hub != nil {
		a.c.Hub.Close()
	}
	if a.c.Producer != nil {
		if err := a.c.Producer.Close(); err != nil {
			a.log.Warn("kafka producer close error", applogger.Error(err))
		}
	}
	if a.c.Flows != nil {
		_ = a.c.Flows.Close()
	}

	a.log.RemoveCollector()
	if a.c.Redis != nil {
		if err := a.c.Redis.Close(); err != nil {
			a.log.Warn("redis close error", applogger.Error(err))
		}
	}
	a.log.Info("shutdown complete")
	_ = a.log.Close()
}

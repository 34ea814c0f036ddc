package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"TickStockApp/internal/di"
	"TickStockApp/internal/service/redisvalidator"
	"TickStockApp/pkg/config"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	log.Printf("env=%s redis=%s:%d fallback=%t", cfg.Environment, cfg.Redis.Host, cfg.Redis.Port, cfg.Detector.Enabled)

	// Redis validation runs inside the injector; a failure here means the
	// app must not start.
	app, err := di.InitializeApp(cfg)
	if err != nil {
		if guide, ok := redisvalidator.Troubleshooting(err); ok {
			fmt.Fprintln(os.Stderr, guide)
		}
		log.Printf("app initialization failed: %v", err)
		os.Exit(1)
	}

	if err := app.Run(); err != nil {
		log.Printf("app error: %v", err)
		os.Exit(1)
	}
}

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/oncology-therapy-mcp-server/internal/api"
	"github.com/oncology-therapy-mcp-server/internal/app"
	"github.com/oncology-therapy-mcp-server/internal/config"
	"github.com/oncology-therapy-mcp-server/internal/logging"
	"github.com/oncology-therapy-mcp-server/internal/metrics"
)

func main() {
	// Load configuration
	configManager, err := config.NewManager()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Validate configuration
	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	cfg := configManager.GetConfig()
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to configure logging: %v", err)
	}

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()
	engine, err := app.NewEngine(ctx, cfg, logger, m)
	if err != nil {
		logger.WithError(err).Fatal("Failed to build recommendation engine")
	}
	defer engine.Close()

	var opts []api.Option
	for name, check := range engine.HealthChecks() {
		opts = append(opts, api.WithHealthCheck(name, check))
	}
	server := api.NewServer(configManager, engine.Recommender, m, logger, opts...)

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	logger.WithField("port", cfg.Server.Port).Info("Starting oncology therapy recommendation server")

	// Start server
	if err := server.Start(ctx); err != nil {
		logger.WithError(err).Error("Server failed")
		engine.Close()
		os.Exit(1)
	}

	logger.Info("Server stopped")
}

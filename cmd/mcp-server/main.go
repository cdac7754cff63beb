// Package main is the stdio MCP entry point. It needs no external services:
// the knowledge base is embedded or kept in a local SQLite file.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/oncology-therapy-mcp-server/internal/app"
	"github.com/oncology-therapy-mcp-server/internal/config"
	"github.com/oncology-therapy-mcp-server/internal/logging"
	"github.com/oncology-therapy-mcp-server/internal/mcp"
	"github.com/oncology-therapy-mcp-server/internal/setup"
)

func main() {
	// Load configuration with the standalone profile
	configManager, err := config.NewManager(config.StandaloneDefaults())
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Check for setup subcommand
	if len(os.Args) > 1 && os.Args[1] == "setup" {
		cli := setup.NewCLI(*configManager.GetKnowledgeBaseConfig(), os.Stdout)
		if err := cli.Run(ctx, os.Args[2:]); err != nil {
			log.Fatalf("Setup failed: %v", err)
		}
		return
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

	engine, err := app.NewEngine(ctx, cfg, logger, nil)
	if err != nil {
		logger.WithError(err).Fatal("Failed to build recommendation engine")
	}
	defer engine.Close()

	server := mcp.NewServer(cfg.MCP, engine.Recommender, logger)

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, gracefully shutting down MCP server...")
		cancel()
	}()

	// Start MCP server
	if err := server.Start(ctx); err != nil && ctx.Err() == nil {
		logger.WithError(err).Error("MCP server failed")
		engine.Close()
		os.Exit(1)
	}

	logger.Info("Oncology therapy MCP server stopped")
}

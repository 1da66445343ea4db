package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"autopress/internal/pkg/administrator"
	"autopress/internal/pkg/config"
	"autopress/internal/pkg/logger"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := logger.InitLogger(cfg.LogLevel); err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	logger.Log.Info("Starting autopress",
		zap.String("port", cfg.ServerPort),
		zap.Bool("dry_run", cfg.DryRun))

	admin := administrator.New(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	admin.Start(ctx)

	// Listen for OS signals to gracefully shut down.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	s := <-sigChan
	logger.Log.Info("Received signal, shutting down", zap.String("signal", s.String()))

	admin.Stop()
}

// Command supervisor is THE CORE's process root: it loads configuration,
// opens the on-disk store and queue, and runs the worker pool, rate limit
// coordinator, and recovery loop until asked to stop.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/maumercado/task-queue-go/internal/config"
	"github.com/maumercado/task-queue-go/internal/logger"
	"github.com/maumercado/task-queue-go/internal/supervisor"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.LogLevel, os.Getenv("ENV") != "production")

	sup, err := supervisor.New(cfg)
	if err != nil {
		logger.Error().Err(err).Msg("failed to construct supervisor")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := sup.Start(ctx); err != nil {
		logger.Error().Err(err).Msg("failed to start supervisor")
		os.Exit(1)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutdown signal received")
	cancel()
	sup.Stop(cfg.Worker.ShutdownTimeout)
	logger.Info().Msg("supervisor stopped")
}

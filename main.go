package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"autoreply_worker/config"
	"autoreply_worker/internal/bootstrap"
	"autoreply_worker/pkg/logger"

	"github.com/joho/godotenv"
)

const (
	shutdownTimeout = 30 * time.Second // Maximum time to wait for graceful shutdown
)

func main() {
	// Initialize logger early
	logger.Init(logger.Config{
		Level:   logger.ParseLevel(os.Getenv("LOG_LEVEL")),
		Service: "autoreply",
	})

	// Load .env file if exists (for local development)
	if err := godotenv.Load(); err != nil {
		logger.Debug("No .env file found, using environment variables")
	}

	mode := flag.String("mode", "poll", "Run mode: poll, once")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config: %v", err)
	}

	switch *mode {
	case "poll":
		runPoll(cfg)
	case "once":
		runOnce(cfg)
	default:
		logger.Fatal("Unknown mode: %s", *mode)
	}
}

// runPoll runs the poller until SIGINT/SIGTERM.
func runPoll(cfg *config.Config) {
	worker, cleanup, err := bootstrap.NewWorker(cfg)
	if err != nil {
		logger.Fatal("Failed to initialize worker: %v", err)
	}
	defer cleanup()

	logger.Info("Starting poller (interval: %v, mailbox: %s)", cfg.PollInterval, cfg.MailboxAddress)
	worker.Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down worker (timeout: %v)...", shutdownTimeout)

	// Stop waits for an in-flight cycle; the outer timeout is a safety net.
	done := make(chan struct{})
	go func() {
		worker.Stop()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("Worker shut down gracefully")
	case <-time.After(shutdownTimeout):
		logger.Warn("Worker shutdown timed out, forcing exit")
		os.Exit(1)
	}
}

// runOnce executes a single processing cycle and exits; useful for cron
// setups and smoke tests.
func runOnce(cfg *config.Config) {
	worker, cleanup, err := bootstrap.NewWorker(cfg)
	if err != nil {
		logger.Fatal("Failed to initialize worker: %v", err)
	}
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.CycleTimeout)
	defer cancel()

	stats, err := worker.RunOnce(ctx)
	if err != nil {
		logger.Fatal("Cycle failed: %v", err)
	}
	logger.Info("Cycle complete: fetched=%d replied=%d processed=%d system=%d duplicates=%d errors=%d",
		stats.Fetched, stats.Replied, stats.Processed, stats.SystemMail, stats.Duplicates, stats.Errors)
}

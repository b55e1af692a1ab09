package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/maltedev/autoria-scraper/internal/app"
	"github.com/maltedev/autoria-scraper/internal/config"
	"github.com/maltedev/autoria-scraper/internal/logger"
)

func main() {
	var (
		envFile = flag.String("env", "", "Optional .env file")
		start   = flag.Int("start", 0, "First index page (inclusive); defaults to START_PAGE")
		stop    = flag.Int("stop", 0, "Last index page (exclusive); defaults to STOP_PAGE")
	)
	flag.Parse()

	var envPaths []string
	if *envFile != "" {
		envPaths = append(envPaths, *envFile)
	}

	cfg, err := config.Load(envPaths...)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *start > 0 {
		cfg.Scraper.StartPage = *start
	}
	if *stop > 0 {
		cfg.Scraper.StopPage = *stop
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger := logger.New(cfg.Logging.Level, cfg.Logging.Format, os.Stdout)
	logger.Info("Starting auto.ria scraper",
		"start_page", cfg.Scraper.StartPage,
		"stop_page", cfg.Scraper.StopPage,
		"max_sessions", cfg.Scraper.MaxConcurrentSessions)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutdown signal received")
		cancel()
	}()

	deps, err := app.Open(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to open storage", "error", err)
		os.Exit(1)
	}
	defer deps.Close()

	b, err := app.NewBrowser(cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize browser", "error", err)
		os.Exit(1)
	}
	defer b.Close()

	began := time.Now()
	stats, err := app.NewPipeline(cfg, b, deps, logger).Run(ctx, cfg.Scraper.StartPage, cfg.Scraper.StopPage)
	if err != nil {
		logger.Error("Run aborted", "error", err)
		os.Exit(1)
	}

	if deps.Relay != nil {
		sent, err := deps.Relay.Drain(ctx)
		if err != nil {
			logger.Warn("Outbox drain incomplete", "error", err)
		}
		logger.Info("Outbox drained", "events", sent)
	}

	fmt.Printf("Completed in %.1f seconds: %d discovered, %d created, %d updated, %d failed, %d skipped\n",
		time.Since(began).Seconds(),
		stats.Discovered, stats.Created, stats.Updated, stats.Failed+stats.PersistFailed, stats.Skipped)
}

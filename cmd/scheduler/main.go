package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/maltedev/autoria-scraper/internal/app"
	"github.com/maltedev/autoria-scraper/internal/config"
	"github.com/maltedev/autoria-scraper/internal/logger"
	"github.com/maltedev/autoria-scraper/internal/schedule"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger := logger.New(cfg.Logging.Level, cfg.Logging.Format, os.Stdout)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	deps, err := app.Open(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to open storage", "error", err)
		os.Exit(1)
	}
	defer deps.Close()

	if deps.Relay != nil {
		go func() {
			if err := deps.Relay.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("relay stopped with error", "error", err)
			}
		}()
	}

	// The browser is started per run so a crashed engine does not outlive the day.
	run := func(ctx context.Context) error {
		b, err := app.NewBrowser(cfg, logger)
		if err != nil {
			return err
		}
		defer b.Close()

		_, err = app.NewPipeline(cfg, b, deps, logger).Run(ctx, cfg.Scraper.StartPage, cfg.Scraper.StopPage)
		return err
	}

	s := schedule.New(cfg.Schedule.Hour, cfg.Schedule.Minute, logger)
	if err := s.Loop(ctx, run); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("scheduler stopped", "error", err)
		os.Exit(1)
	}

	logger.Info("scheduler stopped")
}

package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/maltedev/autoria-scraper/internal/api"
	"github.com/maltedev/autoria-scraper/internal/app"
	"github.com/maltedev/autoria-scraper/internal/config"
	"github.com/maltedev/autoria-scraper/internal/logger"
	"github.com/maltedev/autoria-scraper/internal/models"
)

// browserPipeline starts a fresh browser for every API-triggered run.
type browserPipeline struct {
	cfg  *config.Config
	deps *app.Deps
	log  *slog.Logger
}

func (p *browserPipeline) Run(ctx context.Context, start, stop int) (*models.RunStats, error) {
	b, err := app.NewBrowser(p.cfg, p.log)
	if err != nil {
		return nil, err
	}
	defer b.Close()

	return app.NewPipeline(p.cfg, b, p.deps, p.log).Run(ctx, start, stop)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger := logger.New(cfg.Logging.Level, cfg.Logging.Format, os.Stdout)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deps, err := app.Open(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open storage", "error", err)
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

	runs := api.NewRunManager(ctx, &browserPipeline{cfg: cfg, deps: deps, log: logger}, logger)
	handlers := api.NewHandlers(deps.Store, runs, deps.OutboxStats(), api.RunRequest{
		StartPage: cfg.Scraper.StartPage,
		StopPage:  cfg.Scraper.StopPage,
	}, logger)

	server := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      api.NewRouter(handlers),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down server...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", "error", err)
		}
	}()

	logger.Info("server starting", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}

	runs.Wait()
	logger.Info("server stopped")
}

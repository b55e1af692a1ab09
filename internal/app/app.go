package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/maltedev/autoria-scraper/internal/api"
	"github.com/maltedev/autoria-scraper/internal/browser"
	"github.com/maltedev/autoria-scraper/internal/config"
	"github.com/maltedev/autoria-scraper/internal/database"
	"github.com/maltedev/autoria-scraper/internal/discovery"
	"github.com/maltedev/autoria-scraper/internal/events"
	"github.com/maltedev/autoria-scraper/internal/parser"
	"github.com/maltedev/autoria-scraper/internal/pipeline"
	"github.com/maltedev/autoria-scraper/internal/ratelimit"
	"github.com/maltedev/autoria-scraper/internal/reveal"
	"github.com/maltedev/autoria-scraper/internal/scraper"
	"github.com/maltedev/autoria-scraper/internal/storage"
)

// Deps are the backends shared by the binaries.
type Deps struct {
	Store     storage.Store
	Publisher *events.Publisher
	// Outbox and Relay are set only for postgres with Redis enabled.
	Outbox *database.OutboxRepository
	Relay  *database.Relay
}

// Open connects the configured listing store and, when enabled, the Redis
// publisher. On postgres with Redis, listing events go through the outbox.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Deps, error) {
	d := &Deps{}

	if cfg.Redis.Enabled {
		client, err := events.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, err
		}
		d.Publisher = events.NewPublisher(client, cfg.Redis.Stream)
		logger.Info("connected to redis", "addr", cfg.Redis.Addr, "stream", d.Publisher.Stream())
	}

	switch cfg.Store.Backend {
	case "file":
		store, err := storage.NewFileStore(cfg.Store.FilePath)
		if err != nil {
			d.Close()
			return nil, err
		}
		d.Store = store
		logger.Info("using file store", "path", cfg.Store.FilePath)

	default:
		db, err := database.New(ctx, database.Config{
			DSN:         cfg.Database.DSN(),
			MaxConns:    cfg.Database.MaxConns,
			MaxConnLife: time.Hour,
			MaxConnIdle: 30 * time.Minute,
		})
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := db.EnsureSchema(ctx); err != nil {
			db.Close()
			d.Close()
			return nil, err
		}

		repo := database.NewListingRepository(db)
		if d.Publisher != nil {
			repo.WithOutbox(d.Publisher.Stream())
			d.Outbox = database.NewOutboxRepository(db)
			d.Relay = database.NewRelay(d.Outbox, d.Publisher, logger, database.RelayConfig{
				PollInterval: cfg.Relay.PollInterval,
				BatchSize:    cfg.Relay.BatchSize,
			})
		}
		d.Store = repo
		logger.Info("using postgres store", "host", cfg.Database.Host, "database", cfg.Database.DBName)
	}

	return d, nil
}

// Sink is where the pipeline publishes directly. Nop without Redis.
func (d *Deps) Sink() events.Sink {
	if d.Publisher == nil {
		return events.Nop{}
	}
	return d.Publisher
}

// PublishListingEvents is true when listing events are not already written by the outbox.
func (d *Deps) PublishListingEvents() bool {
	return d.Publisher != nil && d.Outbox == nil
}

// OutboxStats returns nil when there is no outbox, so the caller gets a nil interface.
func (d *Deps) OutboxStats() api.OutboxStats {
	if d.Outbox == nil {
		return nil
	}
	return d.Outbox
}

func (d *Deps) Close() {
	if d.Store != nil {
		d.Store.Close()
	}
	if d.Publisher != nil {
		d.Publisher.Close()
	}
}

// NewBrowser starts the shared browser engine.
func NewBrowser(cfg *config.Config, logger *slog.Logger) (*browser.Browser, error) {
	return browser.New(&browser.Options{
		Headless:       cfg.Browser.Headless,
		Timeout:        cfg.Scraper.NavigationTimeout,
		UserAgent:      cfg.Browser.UserAgent,
		ViewportWidth:  cfg.Browser.ViewportWidth,
		ViewportHeight: cfg.Browser.ViewportHeight,
		Locale:         cfg.Browser.Locale,
	}, logger)
}

// NewPipeline assembles discovery, the detail scraper and the store.
func NewPipeline(cfg *config.Config, pages scraper.PageOpener, d *Deps, logger *slog.Logger) *pipeline.Pipeline {
	disc := discovery.New(discovery.Options{
		BaseURL:     cfg.Discovery.BaseURL,
		Parallelism: cfg.Discovery.Parallelism,
		Timeout:     cfg.Discovery.Timeout,
		UserAgent:   cfg.Discovery.UserAgent,
	}, logger)

	detail := scraper.NewDetailScraper(pages, scraper.DetailOptions{
		NavigationTimeout: cfg.Scraper.NavigationTimeout,
		OverlaySelector:   parser.OverlaySelector,
		Reveal: reveal.Options{
			ControlSelector: reveal.ShowPhoneSelector,
			ConfirmSelector: reveal.PhonePopupSelector,
			ClickTimeout:    cfg.Scraper.ClickTimeout,
			ConfirmTimeout:  cfg.Scraper.RevealTimeout,
			Policy: reveal.Policy{
				MaxAttempts: cfg.Scraper.RevealAttempts,
				Backoff:     cfg.Scraper.RevealBackoff,
				Retryable:   browser.IsTimeout,
			},
		},
	}, logger)

	var limiter ratelimit.Limiter = ratelimit.Unlimited{}
	if cfg.Scraper.PacingDelay > 0 {
		limiter = ratelimit.NewPacer(cfg.Scraper.PacingDelay)
	}

	controller := scraper.NewController(detail, limiter, cfg.Scraper.MaxConcurrentSessions, logger)

	return pipeline.New(disc, controller, d.Store, pipeline.Options{
		Events:               d.Sink(),
		PublishListingEvents: d.PublishListingEvents(),
	}, logger)
}

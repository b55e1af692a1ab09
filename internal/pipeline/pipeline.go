package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/maltedev/autoria-scraper/internal/events"
	"github.com/maltedev/autoria-scraper/internal/models"
	"github.com/maltedev/autoria-scraper/internal/scraper"
)

var ErrInvalidRange = models.ErrInvalidRange

type Discoverer interface {
	Discover(ctx context.Context, start, stop int) ([]string, error)
}

type Runner interface {
	Run(ctx context.Context, urls []string) []scraper.Outcome
}

type Upserter interface {
	Upsert(ctx context.Context, listing *models.Listing) (created bool, err error)
}

type Options struct {
	// Events receives run.completed and, when PublishListingEvents is set,
	// one event per persisted listing.
	Events               events.Sink
	PublishListingEvents bool
}

// Pipeline runs discovery, extraction and persistence for one page range.
type Pipeline struct {
	discoverer Discoverer
	runner     Runner
	store      Upserter
	opts       Options
	logger     *slog.Logger
}

func New(d Discoverer, r Runner, store Upserter, opts Options, logger *slog.Logger) *Pipeline {
	if opts.Events == nil {
		opts.Events = events.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		discoverer: d,
		runner:     r,
		store:      store,
		opts:       opts,
		logger:     logger.With("component", "pipeline"),
	}
}

// Run processes pages [start, stop). Per-page, per-URL and per-record failures
// are counted and logged; only an invalid range or a cancelled context is
// returned as an error.
func (p *Pipeline) Run(ctx context.Context, start, stop int) (*models.RunStats, error) {
	if err := models.ValidateRange(start, stop); err != nil {
		return nil, err
	}

	stats := models.NewRunStats(start, stop)
	logger := p.logger.With("run_id", stats.RunID)
	logger.Info("run started", "start_page", start, "stop_page", stop)

	urls, err := p.discoverer.Discover(ctx, start, stop)
	if err != nil {
		return nil, fmt.Errorf("failed to discover listings: %w", err)
	}
	stats.Discovered = len(urls)

	if len(urls) > 0 {
		outcomes := p.runner.Run(ctx, urls)
		if err := ctx.Err(); err != nil {
			stats.FinishedAt = time.Now()
			return stats, err
		}
		p.persist(ctx, logger, outcomes, stats)
	}

	stats.FinishedAt = time.Now()

	if event, err := events.NewRunCompletedEvent(stats); err != nil {
		logger.Warn("failed to build run event", "error", err)
	} else if err := p.opts.Events.Publish(ctx, event); err != nil {
		logger.Warn("failed to publish run event", "error", err)
	}

	logger.Info("run completed",
		"discovered", stats.Discovered,
		"scraped", stats.Scraped,
		"skipped", stats.Skipped,
		"failed", stats.Failed,
		"created", stats.Created,
		"updated", stats.Updated,
		"persist_failed", stats.PersistFailed,
		"duration", stats.Duration())

	return stats, nil
}

func (p *Pipeline) persist(ctx context.Context, logger *slog.Logger, outcomes []scraper.Outcome, stats *models.RunStats) {
	for _, o := range outcomes {
		switch {
		case o.Skipped():
			stats.Skipped++
			continue
		case o.Err != nil || o.Listing.IsEmpty():
			stats.Failed++
			continue
		}
		stats.Scraped++

		created, err := p.store.Upsert(ctx, o.Listing)
		if err != nil {
			stats.PersistFailed++
			logger.Error("failed to persist listing", "url", o.URL, "error", err)
			continue
		}
		if created {
			stats.Created++
		} else {
			stats.Updated++
		}

		if p.opts.PublishListingEvents {
			p.publishListing(ctx, logger, o.Listing, created)
		}
	}
}

func (p *Pipeline) publishListing(ctx context.Context, logger *slog.Logger, listing *models.Listing, created bool) {
	event, err := events.NewListingEvent(listing, created)
	if err == nil {
		err = p.opts.Events.Publish(ctx, event)
	}
	if err != nil {
		logger.Warn("failed to publish listing event", "url", listing.URL, "error", err)
	}
}

package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/maltedev/autoria-scraper/internal/models"
	"github.com/maltedev/autoria-scraper/internal/ratelimit"
	"golang.org/x/sync/errgroup"
)

// Outcome is the result for one input URL. Exactly one of Listing and Err is set.
type Outcome struct {
	URL     string
	Listing *models.Listing
	Err     error
}

func (o Outcome) Skipped() bool {
	return errors.Is(o.Err, ErrNotApplicable)
}

func (o Outcome) Failed() bool {
	return o.Err != nil && !o.Skipped()
}

// Controller runs a Scraper over many URLs with a bounded number of sessions.
type Controller struct {
	scraper     Scraper
	limiter     ratelimit.Limiter
	maxSessions int
	logger      *slog.Logger
}

func NewController(s Scraper, limiter ratelimit.Limiter, maxSessions int, logger *slog.Logger) *Controller {
	if limiter == nil {
		limiter = ratelimit.Unlimited{}
	}
	if maxSessions < 1 {
		maxSessions = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		scraper:     s,
		limiter:     limiter,
		maxSessions: maxSessions,
		logger:      logger.With("component", "controller"),
	}
}

// Run scrapes every URL and returns one Outcome per URL in input order. It
// never retries and always waits for every started scrape.
func (c *Controller) Run(ctx context.Context, urls []string) []Outcome {
	outcomes := make([]Outcome, len(urls))

	var g errgroup.Group
	g.SetLimit(c.maxSessions)

	for i, url := range urls {
		i, url := i, url
		outcomes[i].URL = url

		if !Applicable(url) {
			outcomes[i].Err = ErrNotApplicable
			continue
		}

		g.Go(func() error {
			listing, err := c.scrapeOne(ctx, url)
			outcomes[i].Listing = listing
			outcomes[i].Err = err
			return nil
		})
	}

	_ = g.Wait()

	c.logOutcomes(outcomes)
	return outcomes
}

func (c *Controller) scrapeOne(ctx context.Context, url string) (listing *models.Listing, err error) {
	defer func() {
		if r := recover(); r != nil {
			listing = nil
			err = &ExtractionError{URL: url, Stage: StagePanic, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	listing, err = c.scraper.Scrape(ctx, url)
	if err == nil && listing == nil {
		err = &ExtractionError{URL: url, Stage: StageParse, Err: errors.New("scraper returned no listing")}
	}
	return listing, err
}

func (c *Controller) logOutcomes(outcomes []Outcome) {
	var ok, skipped, failed int
	for _, o := range outcomes {
		switch {
		case o.Err == nil:
			ok++
		case o.Skipped():
			skipped++
		default:
			failed++
			c.logger.Warn("failed to scrape listing", "url", o.URL, "error", o.Err)
		}
	}

	c.logger.Info("scrape batch finished",
		"total", len(outcomes),
		"scraped", ok,
		"skipped", skipped,
		"failed", failed)
}

package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/maltedev/autoria-scraper/internal/browser"
	"github.com/maltedev/autoria-scraper/internal/models"
	"github.com/maltedev/autoria-scraper/internal/parser"
	"github.com/maltedev/autoria-scraper/internal/phone"
	"github.com/maltedev/autoria-scraper/internal/reveal"
)

type DetailOptions struct {
	NavigationTimeout time.Duration
	OverlaySelector   string
	Reveal            reveal.Options
}

func DefaultDetailOptions() DetailOptions {
	return DetailOptions{
		NavigationTimeout: 30 * time.Second,
		OverlaySelector:   parser.OverlaySelector,
		Reveal:            reveal.DefaultOptions(),
	}
}

// DetailScraper extracts one listing per call, each in its own browser page.
type DetailScraper struct {
	pages     PageOpener
	parser    *parser.ListingParser
	sequencer *reveal.Sequencer
	opts      DetailOptions
	logger    *slog.Logger
}

func NewDetailScraper(pages PageOpener, opts DetailOptions, logger *slog.Logger) *DetailScraper {
	if logger == nil {
		logger = slog.Default()
	}
	return &DetailScraper{
		pages:     pages,
		parser:    parser.NewListingParser(),
		sequencer: reveal.NewSequencer(opts.Reveal, logger),
		opts:      opts,
		logger:    logger.With("component", "detail_scraper"),
	}
}

// Scrape returns ErrNotApplicable for new-car pages. Every other failure is an
// *ExtractionError. The page is closed on all paths.
func (s *DetailScraper) Scrape(ctx context.Context, url string) (listing *models.Listing, err error) {
	if !Applicable(url) {
		return nil, ErrNotApplicable
	}

	page, err := s.pages.NewPage(ctx)
	if err != nil {
		return nil, &ExtractionError{URL: url, Stage: StageOpen, Err: err}
	}
	defer func() {
		if cerr := page.Close(); cerr != nil {
			s.logger.Warn("failed to close page", "url", url, "error", cerr)
		}
	}()

	defer func() {
		if r := recover(); r != nil {
			listing = nil
			err = &ExtractionError{URL: url, Stage: StagePanic, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	return s.scrapePage(ctx, page, url)
}

func (s *DetailScraper) scrapePage(ctx context.Context, page browser.Page, url string) (*models.Listing, error) {
	if err := page.Goto(url, s.opts.NavigationTimeout); err != nil {
		return nil, &ExtractionError{URL: url, Stage: StageNavigate, Err: err}
	}

	if s.opts.OverlaySelector != "" {
		if err := page.RemoveElement(s.opts.OverlaySelector); err != nil {
			return nil, &ExtractionError{URL: url, Stage: StageOverlay, Err: err}
		}
	}

	outcome, err := s.sequencer.Reveal(ctx, page)
	if err != nil {
		return nil, &ExtractionError{URL: url, Stage: StageReveal, Err: err}
	}
	if !outcome.Revealed {
		s.logger.Info("no phone reveal control", "url", url)
	}

	html, err := page.Content()
	if err != nil {
		return nil, &ExtractionError{URL: url, Stage: StageContent, Err: err}
	}

	fields, err := s.parser.ParseDetailPage(html)
	if err != nil {
		return nil, &ExtractionError{URL: url, Stage: StageParse, Err: err}
	}

	if outcome.Revealed && !fields.PhoneFound {
		return nil, &ExtractionError{URL: url, Stage: StageParse, Err: ErrPhoneMissing}
	}

	var phoneNumber string
	if outcome.Revealed {
		phoneNumber = phone.Normalize(fields.Phone)
	}

	listing := &models.Listing{
		URL:         url,
		Title:       fields.Title,
		PriceUSD:    fields.PriceUSD,
		OdometerKm:  fields.OdometerKm,
		SellerName:  fields.SellerName,
		PhoneNumber: phoneNumber,
		ImageURL:    fields.ImageURL,
		ImageCount:  fields.ImageCount,
		PlateNumber: fields.PlateNumber,
		VIN:         fields.VIN,
	}

	s.logger.Debug("listing extracted",
		"url", url,
		"title", listing.Title,
		"price_usd", listing.PriceUSD,
		"revealed", outcome.Revealed)

	return listing, nil
}

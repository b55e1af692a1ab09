package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/maltedev/autoria-scraper/internal/models"
)

const (
	DefaultBaseURL = "https://auto.ria.com/uk/car/used/"
	// TicketSelector marks links from an index page to listing detail pages.
	TicketSelector = "a.m-link-ticket[href]"
)

var ErrInvalidRange = models.ErrInvalidRange

type Options struct {
	BaseURL     string
	Parallelism int
	Timeout     time.Duration
	UserAgent   string
}

func DefaultOptions() Options {
	return Options{
		BaseURL:     DefaultBaseURL,
		Parallelism: 4,
		Timeout:     30 * time.Second,
		UserAgent:   "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	}
}

// PageReport describes what one index page contributed.
type PageReport struct {
	Page  int
	URL   string
	Links int
	Err   error
}

type Discoverer struct {
	opts   Options
	logger *slog.Logger
}

func New(opts Options, logger *slog.Logger) *Discoverer {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Parallelism < 1 {
		opts.Parallelism = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Discoverer{
		opts:   opts,
		logger: logger.With("component", "discovery"),
	}
}

// Discover returns detail URLs for pages [start, stop) ordered by page, then
// by position on the page. Failed pages are logged and skipped.
func (d *Discoverer) Discover(ctx context.Context, start, stop int) ([]string, error) {
	urls, _, err := d.DiscoverReport(ctx, start, stop)
	return urls, err
}

func (d *Discoverer) DiscoverReport(ctx context.Context, start, stop int) ([]string, []PageReport, error) {
	if err := models.ValidateRange(start, stop); err != nil {
		return nil, nil, err
	}

	c := colly.NewCollector(
		colly.Async(true),
		colly.AllowURLRevisit(),
		colly.UserAgent(d.opts.UserAgent),
	)
	if d.opts.Timeout > 0 {
		c.SetRequestTimeout(d.opts.Timeout)
	}
	if err := c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: d.opts.Parallelism,
	}); err != nil {
		return nil, nil, fmt.Errorf("failed to set limit rule: %w", err)
	}

	var mu sync.Mutex
	links := make(map[int][]string, stop-start)
	reports := make(map[int]*PageReport, stop-start)

	pageOf := func(r *colly.Request) int {
		page, _ := r.Ctx.GetAny("page").(int)
		return page
	}

	c.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
			return
		}
		d.logger.Debug("fetching index page", "page", pageOf(r), "url", r.URL.String())
	})

	c.OnHTML(TicketSelector, func(e *colly.HTMLElement) {
		href := e.Request.AbsoluteURL(e.Attr("href"))
		if href == "" {
			return
		}
		page := pageOf(e.Request)

		mu.Lock()
		links[page] = append(links[page], href)
		mu.Unlock()
	})

	c.OnError(func(r *colly.Response, err error) {
		page := pageOf(r.Request)

		mu.Lock()
		reports[page].Err = fmt.Errorf("status %d: %w", r.StatusCode, err)
		mu.Unlock()

		d.logger.Warn("failed to fetch index page",
			"page", page,
			"status", r.StatusCode,
			"error", err)
	})

	for page := start; page < stop; page++ {
		pageURL, err := d.pageURL(page)
		reports[page] = &PageReport{Page: page, URL: pageURL, Err: err}
	}

	for page := start; page < stop; page++ {
		report := reports[page]
		if report.Err != nil {
			d.logger.Warn("failed to build index page URL", "page", page, "error", report.Err)
			continue
		}

		cctx := colly.NewContext()
		cctx.Put("page", page)
		if err := c.Request("GET", report.URL, nil, cctx, nil); err != nil {
			mu.Lock()
			report.Err = err
			mu.Unlock()
			d.logger.Warn("failed to queue index page", "page", page, "error", err)
		}
	}

	c.Wait()

	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	var urls []string
	out := make([]PageReport, 0, stop-start)
	for page := start; page < stop; page++ {
		report := reports[page]
		if report.Err == nil {
			report.Links = len(links[page])
			urls = append(urls, links[page]...)
		}
		out = append(out, *report)
	}

	d.logger.Info("discovery finished",
		"start_page", start,
		"stop_page", stop,
		"urls", len(urls))

	return urls, out, nil
}

func (d *Discoverer) pageURL(page int) (string, error) {
	u, err := url.Parse(d.opts.BaseURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse base URL: %w", err)
	}
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

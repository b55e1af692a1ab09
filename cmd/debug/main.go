package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/maltedev/autoria-scraper/internal/app"
	"github.com/maltedev/autoria-scraper/internal/config"
	"github.com/maltedev/autoria-scraper/internal/logger"
	"github.com/maltedev/autoria-scraper/internal/parser"
	"github.com/maltedev/autoria-scraper/internal/reveal"
	"github.com/maltedev/autoria-scraper/internal/scraper"
)

func main() {
	var (
		url      = flag.String("url", "", "Detail page URL to debug")
		html     = flag.String("html", "debug.html", "HTML output filename")
		headless = flag.Bool("headless", false, "Run browser in headless mode")
	)
	flag.Parse()

	if *url == "" {
		fmt.Println("Please provide a URL with -url")
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	cfg.Browser.Headless = *headless

	logger := logger.New(cfg.Logging.Level, "text", os.Stderr)
	logger.Info("Starting Debug Mode")

	ctx := context.Background()

	b, err := app.NewBrowser(cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize browser", "error", err)
		os.Exit(1)
	}
	defer b.Close()

	page, err := b.NewPage(ctx)
	if err != nil {
		logger.Error("Failed to create page", "error", err)
		os.Exit(1)
	}

	logger.Info("Navigating to URL", "url", *url)
	if err := page.Goto(*url, cfg.Scraper.NavigationTimeout); err != nil {
		logger.Error("Failed to navigate", "error", err)
		os.Exit(1)
	}

	selectors := map[string]string{
		"title":      parser.TitleSelector,
		"price":      parser.PriceSelector,
		"price_usd":  parser.PriceUSDSelector,
		"odometer":   parser.OdometerSelector,
		"seller":     parser.SellerSelector,
		"phone":      parser.PhoneSelector,
		"image":      parser.ImageSelector,
		"thumbnails": parser.ThumbnailSelector,
		"plate":      parser.PlateSelector,
		"vin":        parser.VINSelector,
		"overlay":    parser.OverlaySelector,
		"show_phone": reveal.ShowPhoneSelector,
	}
	for field, selector := range selectors {
		count, err := page.Count(selector)
		if err != nil {
			logger.Warn("Selector check failed", "field", field, "selector", selector, "error", err)
			continue
		}
		if count == 0 {
			logger.Warn("Selector not found", "field", field, "selector", selector)
		} else {
			logger.Info("Found elements", "field", field, "selector", selector, "count", count)
		}
	}

	if content, err := page.Content(); err != nil {
		logger.Error("Failed to get content", "error", err)
	} else if err := os.WriteFile(*html, []byte(content), 0644); err != nil {
		logger.Error("Failed to save HTML", "error", err)
	} else {
		logger.Info("HTML saved", "file", *html)
	}
	page.Close()

	// Full extraction in a fresh page, exactly as a run would do it.
	detail := scraper.NewDetailScraper(b, scraper.DefaultDetailOptions(), logger)
	listing, err := detail.Scrape(ctx, *url)
	if err != nil {
		logger.Error("Extraction failed", "error", err)
		os.Exit(1)
	}

	out, _ := json.MarshalIndent(listing, "", "  ")
	fmt.Println(string(out))
}

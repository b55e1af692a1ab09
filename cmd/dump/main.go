package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/maltedev/autoria-scraper/internal/app"
	"github.com/maltedev/autoria-scraper/internal/config"
	"github.com/maltedev/autoria-scraper/internal/export"
	"github.com/maltedev/autoria-scraper/internal/logger"
)

func main() {
	dir := flag.String("dir", "", "Output directory; defaults to DUMP_DIR")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *dir != "" {
		cfg.Dump.Dir = *dir
	}

	logger := logger.New(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	// Dumps only read, so events are never needed here.
	cfg.Redis.Enabled = false

	deps, err := app.Open(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to open storage", "error", err)
		os.Exit(1)
	}
	defer deps.Close()

	path, n, err := export.Dump(ctx, deps.Store, cfg.Dump.Dir, time.Now())
	if err != nil {
		logger.Error("Dump failed", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Dumped %d listings to %s\n", n, path)
}

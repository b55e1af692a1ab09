package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/maltedev/autoria-scraper/internal/config"
	"github.com/maltedev/autoria-scraper/internal/events"
	"github.com/maltedev/autoria-scraper/internal/logger"
	"github.com/maltedev/autoria-scraper/internal/models"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logger.New(cfg.Logging.Level, cfg.Logging.Format, os.Stdout)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client, err := events.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer client.Close()
	logger.Info("Connected to Redis", "addr", cfg.Redis.Addr)

	group := getEnv("CONSUMER_GROUP", "listing-events")
	name := getEnv("CONSUMER_NAME", "consumer-1")

	consumer := events.NewConsumer(client, cfg.Redis.Stream, group, name, logger)

	err = consumer.Run(ctx, func(ctx context.Context, e events.Event) error {
		switch e.Type {
		case events.TypeListingCreated, events.TypeListingUpdated:
			var listing models.Listing
			if err := json.Unmarshal(e.Payload, &listing); err != nil {
				return err
			}
			logger.Info("listing event",
				"type", e.Type,
				"url", listing.URL,
				"title", listing.Title,
				"price_usd", listing.PriceUSD,
				"has_phone", listing.PhoneNumber != "")
		case events.TypeRunCompleted:
			var stats models.RunStats
			if err := json.Unmarshal(e.Payload, &stats); err != nil {
				return err
			}
			logger.Info("run completed",
				"run_id", stats.RunID,
				"discovered", stats.Discovered,
				"created", stats.Created,
				"updated", stats.Updated,
				"failed", stats.Failed)
		default:
			logger.Debug("ignoring event", "type", e.Type)
		}
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Consumer error: %v", err)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

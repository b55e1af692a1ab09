package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/maltedev/autoria-scraper/internal/models"
	"github.com/redis/go-redis/v9"
)

const (
	TypeListingCreated = "listing.created"
	TypeListingUpdated = "listing.updated"
	TypeRunCompleted   = "run.completed"

	AggregateListing = "listing"
	AggregateRun     = "run"

	DefaultStream = "stream:listings"
	source        = "autoria-scraper"
)

// Event is the envelope written to the listings stream.
type Event struct {
	ID            uuid.UUID
	Type          string
	AggregateType string
	AggregateID   string
	Payload       json.RawMessage
	CreatedAt     time.Time
	RetryCount    int
}

// Sink accepts events for delivery.
type Sink interface {
	Publish(ctx context.Context, event Event) error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

func NewListingEvent(listing *models.Listing, created bool) (Event, error) {
	eventType := TypeListingUpdated
	if created {
		eventType = TypeListingCreated
	}
	return newEvent(eventType, AggregateListing, listing.URL, listing)
}

func NewRunCompletedEvent(stats *models.RunStats) (Event, error) {
	return newEvent(TypeRunCompleted, AggregateRun, stats.RunID.String(), stats)
}

func newEvent(eventType, aggregateType, aggregateID string, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}
	return Event{
		ID:            uuid.New(),
		Type:          eventType,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		Payload:       data,
		CreatedAt:     time.Now().UTC(),
	}, nil
}

// RedisClient is the subset of *redis.Client the publisher needs.
type RedisClient interface {
	XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd
	Close() error
}

// Publisher appends events to a Redis stream.
type Publisher struct {
	client RedisClient
	stream string
}

func NewPublisher(client RedisClient, stream string) *Publisher {
	if stream == "" {
		stream = DefaultStream
	}
	return &Publisher{client: client, stream: stream}
}

func (p *Publisher) Stream() string {
	return p.stream
}

func (p *Publisher) Publish(ctx context.Context, event Event) error {
	var payload map[string]any
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	streamData := map[string]any{
		"id":             event.ID.String(),
		"type":           event.Type,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID,
		"timestamp":      event.CreatedAt.Format(time.RFC3339),
		"payload":        payload,
		"metadata": map[string]any{
			"source":      source,
			"retry_count": event.RetryCount,
		},
	}

	dataJSON, err := json.Marshal(streamData)
	if err != nil {
		return fmt.Errorf("failed to marshal stream data: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]any{
			"data":           string(dataJSON),
			"type":           event.Type,
			"timestamp":      fmt.Sprintf("%d", event.CreatedAt.UnixNano()),
			"event_id":       event.ID.String(),
			"aggregate_id":   event.AggregateID,
			"aggregate_type": event.AggregateType,
		},
	}

	if _, err := p.client.XAdd(ctx, args).Result(); err != nil {
		return fmt.Errorf("failed to publish to redis: %w", err)
	}

	return nil
}

func (p *Publisher) Close() error {
	return p.client.Close()
}

// Connect opens a Redis client and checks it with PING.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	return client, nil
}

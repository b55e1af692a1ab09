package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// StreamClient is the subset of *redis.Client a consumer group reader needs.
type StreamClient interface {
	XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd
	XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd
	XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd
}

// Handler processes one event. A returned error leaves the message pending.
type Handler func(ctx context.Context, event Event) error

// Consumer reads the listings stream as a member of a consumer group.
type Consumer struct {
	client StreamClient
	stream string
	group  string
	name   string
	block  time.Duration
	batch  int64
	logger *slog.Logger
}

func NewConsumer(client StreamClient, stream, group, name string, logger *slog.Logger) *Consumer {
	if stream == "" {
		stream = DefaultStream
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		client: client,
		stream: stream,
		group:  group,
		name:   name,
		block:  5 * time.Second,
		batch:  10,
		logger: logger.With("component", "consumer", "stream", stream, "group", group),
	}
}

// Run creates the group if needed and handles messages until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context, handle Handler) error {
	err := c.client.XGroupCreateMkStream(ctx, c.stream, c.group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	c.logger.Info("consumer started")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if _, err := c.Poll(ctx, handle); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Error("failed to read from stream", "error", err)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
		}
	}
}

// Poll reads one batch and returns how many messages were acknowledged.
func (c *Consumer) Poll(ctx context.Context, handle Handler) (int, error) {
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.name,
		Streams:  []string{c.stream, ">"},
		Count:    c.batch,
		Block:    c.block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	acked := 0
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			event, err := Decode(msg)
			if err != nil {
				// Undecodable messages are acked so they do not block the group.
				c.logger.Warn("dropping malformed message", "id", msg.ID, "error", err)
			} else if err := handle(ctx, event); err != nil {
				c.logger.Error("failed to process message", "id", msg.ID, "type", event.Type, "error", err)
				continue
			}

			if err := c.client.XAck(ctx, c.stream, c.group, msg.ID).Err(); err != nil {
				c.logger.Error("failed to acknowledge message", "id", msg.ID, "error", err)
				continue
			}
			acked++
		}
	}

	return acked, nil
}

type envelope struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	Timestamp     string          `json:"timestamp"`
	Payload       json.RawMessage `json:"payload"`
	Metadata      struct {
		RetryCount int `json:"retry_count"`
	} `json:"metadata"`
}

// Decode rebuilds an Event from a message written by Publisher.
func Decode(msg redis.XMessage) (Event, error) {
	data, ok := msg.Values["data"].(string)
	if !ok {
		return Event{}, fmt.Errorf("message %s has no data field", msg.ID)
	}

	var env envelope
	if err := json.Unmarshal([]byte(data), &env); err != nil {
		return Event{}, fmt.Errorf("failed to parse message %s: %w", msg.ID, err)
	}

	id, err := uuid.Parse(env.ID)
	if err != nil {
		return Event{}, fmt.Errorf("invalid event id %q: %w", env.ID, err)
	}

	createdAt, err := time.Parse(time.RFC3339, env.Timestamp)
	if err != nil {
		return Event{}, fmt.Errorf("invalid timestamp %q: %w", env.Timestamp, err)
	}

	return Event{
		ID:            id,
		Type:          env.Type,
		AggregateType: env.AggregateType,
		AggregateID:   env.AggregateID,
		Payload:       env.Payload,
		CreatedAt:     createdAt,
		RetryCount:    env.Metadata.RetryCount,
	}, nil
}

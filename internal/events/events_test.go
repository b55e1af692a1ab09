package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/maltedev/autoria-scraper/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockRedisClient is a mock for the Redis client
type MockRedisClient struct {
	mock.Mock
}

func (m *MockRedisClient) XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd {
	mockArgs := m.Called(ctx, args)
	cmd := redis.NewStringCmd(ctx)
	if mockArgs.Get(0) != nil {
		cmd.SetErr(mockArgs.Error(0))
	} else {
		cmd.SetVal("1234567890-0")
	}
	return cmd
}

func (m *MockRedisClient) Close() error {
	args := m.Called()
	return args.Error(0)
}

func TestNewListingEvent(t *testing.T) {
	vin := "WVWZZZ3CZJE000000"
	listing := &models.Listing{URL: "https://auto.ria.com/uk/auto_vw_1.html", PriceUSD: 15000, VIN: &vin}

	created, err := NewListingEvent(listing, true)
	require.NoError(t, err)
	assert.Equal(t, TypeListingCreated, created.Type)
	assert.Equal(t, AggregateListing, created.AggregateType)
	assert.Equal(t, listing.URL, created.AggregateID)
	assert.NotEqual(t, uuid.Nil, created.ID)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(created.Payload, &payload))
	assert.Equal(t, float64(15000), payload["price_usd"])
	assert.Equal(t, vin, payload["vin"])

	updated, err := NewListingEvent(listing, false)
	require.NoError(t, err)
	assert.Equal(t, TypeListingUpdated, updated.Type)
	assert.NotEqual(t, created.ID, updated.ID)
}

func TestNewRunCompletedEvent(t *testing.T) {
	stats := models.NewRunStats(1, 3)
	stats.Discovered = 40

	event, err := NewRunCompletedEvent(stats)
	require.NoError(t, err)

	assert.Equal(t, TypeRunCompleted, event.Type)
	assert.Equal(t, AggregateRun, event.AggregateType)
	assert.Equal(t, stats.RunID.String(), event.AggregateID)
}

func TestPublisher_Publish(t *testing.T) {
	ctx := context.Background()

	t.Run("writes envelope to stream", func(t *testing.T) {
		mockRedis := new(MockRedisClient)
		publisher := NewPublisher(mockRedis, "")

		event, err := NewListingEvent(&models.Listing{URL: "https://auto.ria.com/uk/auto_1.html"}, true)
		require.NoError(t, err)

		mockRedis.On("XAdd", ctx, mock.MatchedBy(func(args *redis.XAddArgs) bool {
			values, ok := args.Values.(map[string]any)
			if !ok || args.Stream != DefaultStream {
				return false
			}
			var data map[string]any
			if err := json.Unmarshal([]byte(values["data"].(string)), &data); err != nil {
				return false
			}
			return values["type"] == TypeListingCreated &&
				values["event_id"] == event.ID.String() &&
				data["aggregate_id"] == "https://auto.ria.com/uk/auto_1.html"
		})).Return(nil)

		require.NoError(t, publisher.Publish(ctx, event))
		mockRedis.AssertExpectations(t)
	})

	t.Run("redis failure is returned", func(t *testing.T) {
		mockRedis := new(MockRedisClient)
		publisher := NewPublisher(mockRedis, "stream:custom")
		assert.Equal(t, "stream:custom", publisher.Stream())

		event, err := NewRunCompletedEvent(models.NewRunStats(1, 2))
		require.NoError(t, err)

		mockRedis.On("XAdd", ctx, mock.Anything).Return(errors.New("connection refused"))

		err = publisher.Publish(ctx, event)
		assert.ErrorContains(t, err, "connection refused")
	})

	t.Run("invalid payload is rejected before publishing", func(t *testing.T) {
		mockRedis := new(MockRedisClient)
		publisher := NewPublisher(mockRedis, "")

		err := publisher.Publish(ctx, Event{ID: uuid.New(), Payload: json.RawMessage(`not json`)})

		assert.Error(t, err)
		mockRedis.AssertNotCalled(t, "XAdd", mock.Anything, mock.Anything)
	})
}

func TestPublisher_Close(t *testing.T) {
	mockRedis := new(MockRedisClient)
	mockRedis.On("Close").Return(nil)

	require.NoError(t, NewPublisher(mockRedis, "").Close())
	mockRedis.AssertExpectations(t)
}

func TestNop(t *testing.T) {
	var sink Sink = Nop{}
	assert.NoError(t, sink.Publish(context.Background(), Event{}))
}

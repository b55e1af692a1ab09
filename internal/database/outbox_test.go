package database

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/maltedev/autoria-scraper/internal/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestDB connects to TEST_DATABASE_URL, creates the schema and empties
// both tables. Tests are skipped when the variable is unset.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := New(ctx, Config{DSN: dsn, MaxConns: 4})
	require.NoError(t, err)
	require.NoError(t, db.EnsureSchema(ctx))

	_, err = db.pool.Exec(ctx, "TRUNCATE listings, outbox_event")
	require.NoError(t, err)

	return db
}

func insertOutbox(t *testing.T, db *DB, repo *OutboxRepository, event *OutboxEvent) {
	t.Helper()
	err := db.WithTx(context.Background(), func(tx pgx.Tx) error {
		return repo.InsertWithTx(context.Background(), tx, event)
	})
	require.NoError(t, err)
}

func testOutboxEvent(aggregateID string) *OutboxEvent {
	return &OutboxEvent{
		AggregateType: events.AggregateListing,
		AggregateID:   aggregateID,
		EventType:     events.TypeListingCreated,
		Payload:       json.RawMessage(`{"url":"` + aggregateID + `"}`),
	}
}

func TestOutboxRepository_InsertWithTx(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	defer db.Close()

	repo := NewOutboxRepository(db)

	t.Run("fills defaults", func(t *testing.T) {
		event := testOutboxEvent("https://auto.ria.com/uk/auto_1.html")
		insertOutbox(t, db, repo, event)

		assert.NotEqual(t, uuid.Nil, event.ID)
		assert.Equal(t, OutboxStatusPending, event.Status)
		assert.Equal(t, events.DefaultStream, event.TargetStream)
		assert.False(t, event.CreatedAt.IsZero())
	})

	t.Run("rolled back with the transaction", func(t *testing.T) {
		event := testOutboxEvent("https://auto.ria.com/uk/auto_rollback.html")

		err := db.WithTx(ctx, func(tx pgx.Tx) error {
			if err := repo.InsertWithTx(ctx, tx, event); err != nil {
				return err
			}
			return pgx.ErrTxClosed
		})
		assert.Error(t, err)

		pending, err := repo.GetPending(ctx, 10)
		require.NoError(t, err)
		for _, e := range pending {
			assert.NotEqual(t, event.AggregateID, e.AggregateID)
		}
	})
}

func TestOutboxRepository_GetPending(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	defer db.Close()

	repo := NewOutboxRepository(db)

	pending := testOutboxEvent("a")
	processed := testOutboxEvent("b")
	processed.Status = OutboxStatusProcessed
	failed := testOutboxEvent("c")
	failed.Status = OutboxStatusFailed
	failed.RetryCount = 2
	for _, e := range []*OutboxEvent{pending, processed, failed} {
		insertOutbox(t, db, repo, e)
	}

	got, err := repo.GetPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	for _, e := range got {
		assert.Contains(t, []string{OutboxStatusPending, OutboxStatusFailed}, e.Status)
	}

	limited, err := repo.GetPending(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	_, err = db.pool.Exec(ctx, "UPDATE outbox_event SET next_retry_at = $1 WHERE aggregate_id = 'c'",
		time.Now().Add(time.Hour))
	require.NoError(t, err)

	got, err = repo.GetPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].AggregateID)
}

func TestOutboxRepository_MarkProcessed(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	defer db.Close()

	repo := NewOutboxRepository(db)
	event := testOutboxEvent("x")
	insertOutbox(t, db, repo, event)

	require.NoError(t, repo.MarkProcessed(ctx, event.ID))

	counts, err := repo.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[OutboxStatusProcessed])

	assert.Error(t, repo.MarkProcessed(ctx, uuid.New()))
}

func TestOutboxRepository_MarkFailed(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	defer db.Close()

	repo := NewOutboxRepository(db)

	t.Run("schedules a retry", func(t *testing.T) {
		event := testOutboxEvent("retry")
		insertOutbox(t, db, repo, event)

		require.NoError(t, repo.MarkFailed(ctx, event.ID, assert.AnError))

		var status string
		var retryCount int
		var nextRetry time.Time
		err := db.pool.QueryRow(ctx,
			"SELECT status, retry_count, next_retry_at FROM outbox_event WHERE id = $1",
			event.ID).Scan(&status, &retryCount, &nextRetry)
		require.NoError(t, err)

		assert.Equal(t, OutboxStatusFailed, status)
		assert.Equal(t, 1, retryCount)
		assert.True(t, nextRetry.After(time.Now()))
	})

	t.Run("dead letter after max retries", func(t *testing.T) {
		event := testOutboxEvent("dead")
		event.RetryCount = MaxRetryCount - 1
		insertOutbox(t, db, repo, event)

		require.NoError(t, repo.MarkFailed(ctx, event.ID, assert.AnError))

		var status string
		err := db.pool.QueryRow(ctx, "SELECT status FROM outbox_event WHERE id = $1", event.ID).Scan(&status)
		require.NoError(t, err)
		assert.Equal(t, OutboxStatusDeadLetter, status)
	})
}

package schedule

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextRun(t *testing.T) {
	loc := time.FixedZone("EET", 2*60*60)
	now := time.Date(2024, 3, 10, 14, 30, 15, 0, loc)

	tests := []struct {
		name         string
		hour, minute int
		want         time.Time
	}{
		{"later today", 18, 0, time.Date(2024, 3, 10, 18, 0, 0, 0, loc)},
		{"earlier today rolls over", 9, 15, time.Date(2024, 3, 11, 9, 15, 0, 0, loc)},
		{"same minute rolls over", 14, 30, time.Date(2024, 3, 11, 14, 30, 0, 0, loc)},
		{"next minute", 14, 31, time.Date(2024, 3, 10, 14, 31, 0, 0, loc)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NextRun(now, tt.hour, tt.minute))
		})
	}
}

func TestNextRunMonthBoundary(t *testing.T) {
	now := time.Date(2024, 1, 31, 23, 59, 30, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 2, 1, 6, 0, 0, 0, time.UTC), NextRun(now, 6, 0))
}

func TestResolve(t *testing.T) {
	now := time.Date(2024, 3, 10, 23, 59, 10, 0, time.UTC)

	h, m := Resolve(now, -1, -1)
	assert.Equal(t, 0, h)
	assert.Equal(t, 0, m)

	h, m = Resolve(now, 7, -1)
	assert.Equal(t, 7, h)
	assert.Equal(t, 0, m)

	h, m = Resolve(now, 4, 45)
	assert.Equal(t, 4, h)
	assert.Equal(t, 45, m)
}

func TestLoop(t *testing.T) {
	start := time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC)
	clock := start

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var waits []time.Duration
	s := New(9, 30, slog.Default())
	s.now = func() time.Time { return clock }
	s.sleep = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		clock = clock.Add(d)
		return ctx.Err()
	}

	runs := 0
	err := s.Loop(ctx, func(ctx context.Context) error {
		runs++
		if runs == 2 {
			cancel()
			return errors.New("browser crashed")
		}
		return nil
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, runs)
	require.Len(t, waits, 2)
	assert.Equal(t, 90*time.Minute, waits[0])
	assert.Equal(t, 24*time.Hour, waits[1])
}

func TestLoopCancelledWhileSleeping(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := New(-1, -1, slog.Default())
	err := s.Loop(ctx, func(ctx context.Context) error {
		t.Fatal("run must not be called")
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
}

package reveal

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/maltedev/autoria-scraper/internal/browser"
)

// Policy bounds how often a flaky interaction is repeated.
type Policy struct {
	MaxAttempts int
	Backoff     time.Duration
	// Retryable decides whether a failed attempt may be repeated.
	Retryable func(error) bool
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		Backoff:     2 * time.Second,
		Retryable:   browser.IsTimeout,
	}
}

// Do runs op until it succeeds, fails with a non-retryable error or runs out of
// attempts. The last error is returned unchanged.
func (p Policy) Do(ctx context.Context, logger *slog.Logger, op func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = browser.IsTimeout
	}

	attempt := 0
	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(p.Backoff), uint64(attempts-1)),
		ctx,
	)

	return backoff.RetryNotify(func() error {
		attempt++
		err := op()
		if err != nil && !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b, func(err error, wait time.Duration) {
		if logger != nil {
			logger.Warn("attempt failed, retrying",
				"attempt", attempt,
				"max_attempts", attempts,
				"wait", wait,
				"error", err)
		}
	})
}

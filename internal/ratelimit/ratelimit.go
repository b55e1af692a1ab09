package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Limiter admits one caller at a time, spacing admissions apart.
type Limiter interface {
	Wait(ctx context.Context) error
}

// Pacer keeps at least minDelay (plus optional jitter up to maxDelay) between
// consecutive admissions. Waiters are serialized on the mutex.
type Pacer struct {
	minDelay time.Duration
	maxDelay time.Duration
	last     time.Time
	mu       sync.Mutex
}

func NewPacer(delay time.Duration) *Pacer {
	return NewJitterPacer(delay, delay)
}

func NewJitterPacer(minDelay, maxDelay time.Duration) *Pacer {
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	return &Pacer{
		minDelay: minDelay,
		maxDelay: maxDelay,
	}
}

func (p *Pacer) Wait(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	if !p.last.IsZero() {
		elapsed := time.Since(p.last)
		delay := p.delay()

		if elapsed < delay {
			timer := time.NewTimer(delay - elapsed)
			defer timer.Stop()

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
			}
		}
	}

	p.last = time.Now()
	return nil
}

func (p *Pacer) SetDelay(min, max time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if max < min {
		max = min
	}
	p.minDelay = min
	p.maxDelay = max
}

func (p *Pacer) delay() time.Duration {
	if p.maxDelay <= p.minDelay {
		return p.minDelay
	}

	delta := p.maxDelay - p.minDelay
	return p.minDelay + time.Duration(rand.Int63n(int64(delta)))
}

// Unlimited admits immediately.
type Unlimited struct{}

func (Unlimited) Wait(ctx context.Context) error {
	return ctx.Err()
}

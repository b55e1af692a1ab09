package schedule

import (
	"context"
	"log/slog"
	"time"
)

// Resolve fills unset (negative) hour and minute from one minute after now.
func Resolve(now time.Time, hour, minute int) (int, int) {
	if hour >= 0 && minute >= 0 {
		return hour, minute
	}
	base := now.Add(time.Minute)
	if hour < 0 {
		hour = base.Hour()
	}
	if minute < 0 {
		minute = base.Minute()
	}
	return hour, minute
}

// NextRun returns the first hour:minute strictly after now in now's location.
func NextRun(now time.Time, hour, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

type RunFunc func(ctx context.Context) error

// Scheduler fires RunFunc once a day at a fixed local time.
type Scheduler struct {
	hour   int
	minute int
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
	logger *slog.Logger
}

func New(hour, minute int, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		now:    time.Now,
		sleep:  sleep,
		logger: logger.With("component", "scheduler"),
	}
	s.hour, s.minute = Resolve(s.now(), hour, minute)
	return s
}

// Loop blocks until ctx is cancelled. Run failures are logged and the loop
// continues with the next day.
func (s *Scheduler) Loop(ctx context.Context, run RunFunc) error {
	s.logger.Info("scheduler started", "hour", s.hour, "minute", s.minute)

	for {
		now := s.now()
		next := NextRun(now, s.hour, s.minute)
		wait := next.Sub(now)

		s.logger.Info("sleeping until next run",
			"next_run", next.Format(time.RFC3339),
			"hours", int(wait.Hours()),
			"minutes", int(wait.Minutes())%60)

		if err := s.sleep(ctx, wait); err != nil {
			return err
		}

		s.logger.Info("running scraper")
		started := time.Now()
		if err := run(ctx); err != nil {
			s.logger.Error("scheduled run failed", "error", err, "duration", time.Since(started))
		} else {
			s.logger.Info("scheduled run completed", "duration", time.Since(started))
		}

		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

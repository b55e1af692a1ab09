package reveal

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const (
	// ShowPhoneSelector is the control that unhides the seller phone.
	ShowPhoneSelector = ".phone_show_link"
	// PhonePopupSelector appears once the phone has been revealed.
	PhonePopupSelector = ".popup-successful-call-desk"
)

// Page is the part of a browser tab the sequencer drives.
type Page interface {
	Count(selector string) (int, error)
	Click(selector string, timeout time.Duration) error
	WaitVisible(selector string, timeout time.Duration) error
}

type Outcome struct {
	Revealed bool
}

type Options struct {
	ControlSelector string
	ConfirmSelector string
	ClickTimeout    time.Duration
	ConfirmTimeout  time.Duration
	Policy          Policy
}

func DefaultOptions() Options {
	return Options{
		ControlSelector: ShowPhoneSelector,
		ConfirmSelector: PhonePopupSelector,
		ClickTimeout:    20 * time.Second,
		ConfirmTimeout:  25 * time.Second,
		Policy:          DefaultPolicy(),
	}
}

// Sequencer clicks a "show" control and waits for the gated content to appear.
type Sequencer struct {
	opts   Options
	logger *slog.Logger
}

func NewSequencer(opts Options, logger *slog.Logger) *Sequencer {
	return &Sequencer{
		opts:   opts,
		logger: logger.With("component", "reveal"),
	}
}

// Reveal returns Revealed=false without error when the page has no control.
// Click failures that outlive the policy and a confirmation that never shows up
// are returned as errors.
func (s *Sequencer) Reveal(ctx context.Context, page Page) (Outcome, error) {
	count, err := page.Count(s.opts.ControlSelector)
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to look up reveal control: %w", err)
	}
	if count == 0 {
		return Outcome{Revealed: false}, nil
	}

	err = s.opts.Policy.Do(ctx, s.logger, func() error {
		return page.Click(s.opts.ControlSelector, s.opts.ClickTimeout)
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to click reveal control: %w", err)
	}

	if err := page.WaitVisible(s.opts.ConfirmSelector, s.opts.ConfirmTimeout); err != nil {
		return Outcome{}, fmt.Errorf("revealed content never appeared: %w", err)
	}

	return Outcome{Revealed: true}, nil
}

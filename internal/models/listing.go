package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Listing is one used-car detail page as extracted and persisted.
type Listing struct {
	URL          string    `json:"url"`
	Title        string    `json:"title"`
	PriceUSD     int       `json:"price_usd"`
	OdometerKm   int       `json:"odometer_km"`
	SellerName   string    `json:"seller_name"`
	PhoneNumber  string    `json:"phone_number"`
	ImageURL     string    `json:"image_url"`
	ImageCount   int       `json:"image_count"`
	PlateNumber  *string   `json:"plate_number"`
	VIN          *string   `json:"vin"`
	DiscoveredAt time.Time `json:"discovered_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// IsEmpty reports whether the listing carries no identity and must not be stored.
func (l *Listing) IsEmpty() bool {
	return l == nil || l.URL == ""
}

// Validate returns the problems that make the listing unstorable, empty when none.
func (l *Listing) Validate() []string {
	var problems []string

	if l.IsEmpty() {
		return append(problems, "URL is required")
	}

	if l.PriceUSD < 0 {
		problems = append(problems, "price must not be negative")
	}

	if l.OdometerKm < 0 {
		problems = append(problems, "odometer must not be negative")
	}

	if l.ImageCount < 0 {
		problems = append(problems, "image count must not be negative")
	}

	return problems
}

// RunStats summarises one pipeline run.
type RunStats struct {
	RunID         uuid.UUID `json:"run_id"`
	StartPage     int       `json:"start_page"`
	StopPage      int       `json:"stop_page"`
	Discovered    int       `json:"discovered"`
	Scraped       int       `json:"scraped"`
	Skipped       int       `json:"skipped"`
	Failed        int       `json:"failed"`
	Created       int       `json:"created"`
	Updated       int       `json:"updated"`
	PersistFailed int       `json:"persist_failed"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
}

func NewRunStats(startPage, stopPage int) *RunStats {
	return &RunStats{
		RunID:     uuid.New(),
		StartPage: startPage,
		StopPage:  stopPage,
		StartedAt: time.Now(),
	}
}

// Unpersisted is the number of discovered URLs that produced no stored row.
func (s *RunStats) Unpersisted() int {
	return s.Discovered - s.Created - s.Updated
}

func (s *RunStats) Duration() time.Duration {
	if s.FinishedAt.IsZero() {
		return time.Since(s.StartedAt)
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// ErrInvalidRange is returned for a page range that cannot be walked.
var ErrInvalidRange = errors.New("invalid page range")

// ValidateRange checks a [start, stop) page range with 1-based pages.
func ValidateRange(start, stop int) error {
	if start < 1 || stop <= start {
		return fmt.Errorf("%w: [%d, %d)", ErrInvalidRange, start, stop)
	}
	return nil
}

var (
	ErrListingNotFound = errors.New("listing not found")
	ErrEmptyListing    = errors.New("listing has no URL")
)

package scraper

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/maltedev/autoria-scraper/internal/browser"
	"github.com/maltedev/autoria-scraper/internal/models"
)

var (
	// ErrNotApplicable marks URLs the detail scraper does not handle. It is a
	// skip, not a failure.
	ErrNotApplicable = errors.New("listing not applicable")
	ErrPhoneMissing  = errors.New("revealed phone not present in page")
)

// Scraper turns one detail URL into a listing.
type Scraper interface {
	Scrape(ctx context.Context, url string) (*models.Listing, error)
}

// PageOpener hands out isolated browser pages. *browser.Browser implements it.
type PageOpener interface {
	NewPage(ctx context.Context) (browser.Page, error)
}

// Stage names the step of a detail scrape that failed.
type Stage string

const (
	StageOpen     Stage = "open"
	StageNavigate Stage = "navigate"
	StageOverlay  Stage = "overlay"
	StageReveal   Stage = "reveal"
	StageContent  Stage = "content"
	StageParse    Stage = "parse"
	StagePanic    Stage = "panic"
)

type ExtractionError struct {
	URL   string
	Stage Stage
	Err   error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction of %s failed at %s: %v", e.URL, e.Stage, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// Applicable reports whether url points at a used-car detail page.
func Applicable(url string) bool {
	return !strings.Contains(url, "/newauto/")
}

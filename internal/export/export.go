package export

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/maltedev/autoria-scraper/internal/models"
)

type Lister interface {
	List(ctx context.Context, limit, offset int) ([]*models.Listing, error)
}

// Filename is the dated dump name for day.
func Filename(dir string, day time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("dump_%s.json", day.Format("20060102")))
}

// Dump writes every stored listing to <dir>/dump_YYYYMMDD.json and returns the
// path and row count. An existing dump for the same day is replaced.
func Dump(ctx context.Context, store Lister, dir string, now time.Time) (string, int, error) {
	listings, err := store.List(ctx, 0, 0)
	if err != nil {
		return "", 0, fmt.Errorf("failed to read listings: %w", err)
	}
	if listings == nil {
		listings = []*models.Listing{}
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", 0, fmt.Errorf("failed to create dump dir: %w", err)
	}

	data, err := json.MarshalIndent(listings, "", "  ")
	if err != nil {
		return "", 0, fmt.Errorf("failed to marshal listings: %w", err)
	}

	path := Filename(dir, now)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return "", 0, fmt.Errorf("failed to write dump: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", 0, fmt.Errorf("failed to rename dump: %w", err)
	}

	return path, len(listings), nil
}

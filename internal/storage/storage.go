package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/maltedev/autoria-scraper/internal/models"
	"github.com/maltedev/autoria-scraper/internal/phone"
)

// Store persists listings keyed by URL. Upsert reports whether a new row was
// created; repeated upserts of the same URL update the single existing row.
type Store interface {
	Upsert(ctx context.Context, listing *models.Listing) (created bool, err error)
	Get(ctx context.Context, url string) (*models.Listing, error)
	List(ctx context.Context, limit, offset int) ([]*models.Listing, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

// ValidateForWrite applies the write-time checks shared by all stores.
func ValidateForWrite(listing *models.Listing) error {
	if listing.IsEmpty() {
		return models.ErrEmptyListing
	}
	if problems := listing.Validate(); len(problems) > 0 {
		return fmt.Errorf("invalid listing %s: %s", listing.URL, strings.Join(problems, "; "))
	}
	if err := phone.Validate(listing.PhoneNumber); err != nil {
		return fmt.Errorf("invalid listing %s: %w", listing.URL, err)
	}
	return nil
}

// FileStore keeps listings in memory and mirrors them to a JSON file. An empty
// filename keeps everything in memory.
type FileStore struct {
	mu       sync.RWMutex
	listings map[string]*models.Listing
	filename string
	now      func() time.Time
}

func NewFileStore(filename string) (*FileStore, error) {
	fs := &FileStore{
		listings: make(map[string]*models.Listing),
		filename: filename,
		now:      time.Now,
	}

	if filename != "" {
		if err := fs.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", filename, err)
		}
	}

	return fs, nil
}

func (fs *FileStore) Upsert(ctx context.Context, listing *models.Listing) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := ValidateForWrite(listing); err != nil {
		return false, err
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	now := fs.now().UTC()
	previous, exists := fs.listings[listing.URL]

	record := *listing
	record.UpdatedAt = now
	if exists {
		record.DiscoveredAt = previous.DiscoveredAt
	} else {
		record.DiscoveredAt = now
	}
	fs.listings[listing.URL] = &record

	if err := fs.save(); err != nil {
		if exists {
			fs.listings[listing.URL] = previous
		} else {
			delete(fs.listings, listing.URL)
		}
		return false, fmt.Errorf("failed to save listing %s: %w", listing.URL, err)
	}

	listing.DiscoveredAt = record.DiscoveredAt
	listing.UpdatedAt = record.UpdatedAt
	return !exists, nil
}

func (fs *FileStore) Get(ctx context.Context, url string) (*models.Listing, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	listing, exists := fs.listings[url]
	if !exists {
		return nil, models.ErrListingNotFound
	}
	copied := *listing
	return &copied, nil
}

// List returns listings newest discovery first.
func (fs *FileStore) List(ctx context.Context, limit, offset int) ([]*models.Listing, error) {
	fs.mu.RLock()
	all := make([]*models.Listing, 0, len(fs.listings))
	for _, listing := range fs.listings {
		copied := *listing
		all = append(all, &copied)
	}
	fs.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if !all[i].DiscoveredAt.Equal(all[j].DiscoveredAt) {
			return all[i].DiscoveredAt.After(all[j].DiscoveredAt)
		}
		return all[i].URL < all[j].URL
	})

	if offset < 0 {
		offset = 0
	}
	if offset >= len(all) {
		return []*models.Listing{}, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (fs *FileStore) Count(ctx context.Context) (int, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return len(fs.listings), nil
}

func (fs *FileStore) Close() error {
	return nil
}

func (fs *FileStore) save() error {
	if fs.filename == "" {
		return nil
	}

	data, err := json.MarshalIndent(fs.listings, "", "  ")
	if err != nil {
		return err
	}

	tmpFile := fs.filename + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0644); err != nil {
		return err
	}

	return os.Rename(tmpFile, fs.filename)
}

func (fs *FileStore) Load() error {
	data, err := os.ReadFile(fs.filename)
	if err != nil {
		return err
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()
	return json.Unmarshal(data, &fs.listings)
}

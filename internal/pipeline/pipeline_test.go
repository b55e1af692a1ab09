package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/maltedev/autoria-scraper/internal/events"
	"github.com/maltedev/autoria-scraper/internal/models"
	"github.com/maltedev/autoria-scraper/internal/scraper"
	"github.com/maltedev/autoria-scraper/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type staticDiscoverer struct {
	urls  []string
	err   error
	calls int
}

func (d *staticDiscoverer) Discover(ctx context.Context, start, stop int) ([]string, error) {
	d.calls++
	return d.urls, d.err
}

// scriptedScraper fails the URLs listed in fail and builds a listing for the rest.
type scriptedScraper struct {
	fail map[string]bool
}

func (s *scriptedScraper) Scrape(ctx context.Context, url string) (*models.Listing, error) {
	if s.fail[url] {
		return nil, &scraper.ExtractionError{URL: url, Stage: scraper.StageReveal, Err: errors.New("timed out")}
	}
	return &models.Listing{URL: url, Title: "car", PriceUSD: 5000}, nil
}

type MockSink struct {
	mock.Mock
}

func (m *MockSink) Publish(ctx context.Context, event events.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

type failingStore struct {
	storage.Store
	failURL string
}

func (f *failingStore) Upsert(ctx context.Context, l *models.Listing) (bool, error) {
	if l.URL == f.failURL {
		return false, errors.New("disk full")
	}
	return f.Store.Upsert(ctx, l)
}

func listingURLs(n int) []string {
	urls := make([]string, n)
	for i := range urls {
		urls[i] = fmt.Sprintf("https://auto.ria.com/uk/auto_%d.html", i)
	}
	return urls
}

func newPipeline(t *testing.T, d Discoverer, s scraper.Scraper, store Upserter, opts Options) *Pipeline {
	t.Helper()
	controller := scraper.NewController(s, nil, 3, slog.Default())
	return New(d, controller, store, opts, slog.Default())
}

func TestRunPartialFailure(t *testing.T) {
	ctx := context.Background()
	urls := listingURLs(5)
	store, err := storage.NewFileStore("")
	require.NoError(t, err)

	p := newPipeline(t, &staticDiscoverer{urls: urls}, &scriptedScraper{fail: map[string]bool{urls[3]: true}}, store, Options{})

	stats, err := p.Run(ctx, 1, 2)
	require.NoError(t, err)

	assert.Equal(t, 5, stats.Discovered)
	assert.Equal(t, 4, stats.Scraped)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 4, stats.Created)
	assert.Equal(t, 0, stats.Updated)
	assert.Equal(t, 1, stats.Unpersisted())
	assert.False(t, stats.FinishedAt.IsZero())

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, count)

	_, err = store.Get(ctx, urls[3])
	assert.ErrorIs(t, err, models.ErrListingNotFound)
}

func TestRunTwiceUpdates(t *testing.T) {
	ctx := context.Background()
	urls := listingURLs(3)
	store, err := storage.NewFileStore("")
	require.NoError(t, err)

	p := newPipeline(t, &staticDiscoverer{urls: urls}, &scriptedScraper{}, store, Options{})

	_, err = p.Run(ctx, 1, 2)
	require.NoError(t, err)
	stats, err := p.Run(ctx, 1, 2)
	require.NoError(t, err)

	assert.Equal(t, 0, stats.Created)
	assert.Equal(t, 3, stats.Updated)
	count, _ := store.Count(ctx)
	assert.Equal(t, 3, count)
}

func TestRunDuplicateURLsAcrossPages(t *testing.T) {
	ctx := context.Background()
	url := "https://auto.ria.com/uk/auto_dup.html"
	store, err := storage.NewFileStore("")
	require.NoError(t, err)

	p := newPipeline(t, &staticDiscoverer{urls: []string{url, url}}, &scriptedScraper{}, store, Options{})

	stats, err := p.Run(ctx, 1, 3)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Created)
	assert.Equal(t, 1, stats.Updated)
	count, _ := store.Count(ctx)
	assert.Equal(t, 1, count)
}

func TestRunZeroURLs(t *testing.T) {
	store, err := storage.NewFileStore("")
	require.NoError(t, err)

	sink := new(MockSink)
	sink.On("Publish", mock.Anything, mock.MatchedBy(func(e events.Event) bool {
		return e.Type == events.TypeRunCompleted
	})).Return(nil).Once()

	p := newPipeline(t, &staticDiscoverer{}, &scriptedScraper{}, store, Options{Events: sink})

	stats, err := p.Run(context.Background(), 1, 21)
	require.NoError(t, err)

	assert.Equal(t, 0, stats.Discovered)
	assert.Equal(t, 0, stats.Created)
	assert.Equal(t, 0, stats.Updated)
	sink.AssertExpectations(t)
}

func TestRunInvalidRange(t *testing.T) {
	d := &staticDiscoverer{urls: listingURLs(1)}
	p := newPipeline(t, d, &scriptedScraper{}, nil, Options{})

	tests := []struct {
		name        string
		start, stop int
	}{
		{"Stop before start", 10, 2},
		{"Empty", 4, 4},
		{"Zero start", 0, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stats, err := p.Run(context.Background(), tt.start, tt.stop)
			assert.ErrorIs(t, err, ErrInvalidRange)
			assert.Nil(t, stats)
		})
	}
	assert.Equal(t, 0, d.calls, "discovery must not start")
}

func TestRunPersistFailureIsIsolated(t *testing.T) {
	ctx := context.Background()
	urls := listingURLs(3)
	fileStore, err := storage.NewFileStore("")
	require.NoError(t, err)
	store := &failingStore{Store: fileStore, failURL: urls[1]}

	p := newPipeline(t, &staticDiscoverer{urls: urls}, &scriptedScraper{}, store, Options{})

	stats, err := p.Run(ctx, 1, 2)
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Scraped)
	assert.Equal(t, 2, stats.Created)
	assert.Equal(t, 1, stats.PersistFailed)
}

func TestRunSkipsNewAuto(t *testing.T) {
	store, err := storage.NewFileStore("")
	require.NoError(t, err)
	urls := []string{"https://auto.ria.com/uk/newauto/auto-kia-1.html", "https://auto.ria.com/uk/auto_kia_2.html"}

	p := newPipeline(t, &staticDiscoverer{urls: urls}, &scriptedScraper{}, store, Options{})

	stats, err := p.Run(context.Background(), 1, 2)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, 0, stats.Failed)
	assert.Equal(t, 1, stats.Created)
}

func TestRunPublishesListingEvents(t *testing.T) {
	store, err := storage.NewFileStore("")
	require.NoError(t, err)
	urls := listingURLs(2)

	sink := new(MockSink)
	sink.On("Publish", mock.Anything, mock.MatchedBy(func(e events.Event) bool {
		return e.Type == events.TypeListingCreated
	})).Return(nil).Twice()
	sink.On("Publish", mock.Anything, mock.MatchedBy(func(e events.Event) bool {
		return e.Type == events.TypeRunCompleted
	})).Return(errors.New("redis down")).Once()

	p := newPipeline(t, &staticDiscoverer{urls: urls}, &scriptedScraper{}, store,
		Options{Events: sink, PublishListingEvents: true})

	stats, err := p.Run(context.Background(), 1, 2)
	require.NoError(t, err, "event delivery failures do not fail the run")
	assert.Equal(t, 2, stats.Created)

	sink.AssertExpectations(t)
}

func TestRunDiscoveryCancelled(t *testing.T) {
	p := newPipeline(t, &staticDiscoverer{err: context.Canceled}, &scriptedScraper{}, nil, Options{})

	_, err := p.Run(context.Background(), 1, 2)
	assert.ErrorIs(t, err, context.Canceled)
}

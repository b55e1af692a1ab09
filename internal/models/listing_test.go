package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestListingValidate(t *testing.T) {
	tests := []struct {
		name    string
		listing *Listing
		want    int
	}{
		{"valid", &Listing{URL: "https://auto.ria.com/uk/auto_1.html", PriceUSD: 100}, 0},
		{"nil", nil, 1},
		{"no url", &Listing{PriceUSD: 100}, 1},
		{"negative price", &Listing{URL: "u", PriceUSD: -1}, 1},
		{"negative everything", &Listing{URL: "u", PriceUSD: -1, OdometerKm: -1, ImageCount: -1}, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, tt.listing.Validate(), tt.want)
		})
	}
}

func TestListingIsEmpty(t *testing.T) {
	var nilListing *Listing
	assert.True(t, nilListing.IsEmpty())
	assert.True(t, (&Listing{Title: "Audi A4"}).IsEmpty())
	assert.False(t, (&Listing{URL: "https://auto.ria.com/uk/auto_1.html"}).IsEmpty())
}

func TestValidateRange(t *testing.T) {
	assert.NoError(t, ValidateRange(1, 21))
	assert.NoError(t, ValidateRange(5, 6))

	for _, r := range [][2]int{{0, 5}, {3, 3}, {10, 2}, {-1, 4}} {
		err := ValidateRange(r[0], r[1])
		assert.ErrorIs(t, err, ErrInvalidRange, "range %v", r)
	}
}

func TestRunStats(t *testing.T) {
	stats := NewRunStats(1, 3)
	stats.Discovered = 10
	stats.Created = 4
	stats.Updated = 3

	assert.Equal(t, 3, stats.Unpersisted())

	stats.FinishedAt = stats.StartedAt.Add(90 * time.Second)
	assert.Equal(t, 90*time.Second, stats.Duration())
}

package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/maltedev/autoria-scraper/internal/events"
	"github.com/maltedev/autoria-scraper/internal/models"
	"github.com/maltedev/autoria-scraper/internal/storage"
)

const listingColumns = `url, title, price_usd, odometer_km, seller_name, phone_number,
	image_url, image_count, plate_number, vin, discovered_at, updated_at`

// ListingRepository is the postgres listing store. When an outbox is attached,
// every upsert also records a listing event in the same transaction.
type ListingRepository struct {
	db     *DB
	outbox *OutboxRepository
	stream string
}

func NewListingRepository(db *DB) *ListingRepository {
	return &ListingRepository{db: db}
}

// WithOutbox makes upserts emit listing events for the relay.
func (r *ListingRepository) WithOutbox(stream string) *ListingRepository {
	r.outbox = NewOutboxRepository(r.db)
	r.stream = stream
	return r
}

// Upsert inserts the listing or updates the row with the same URL in one
// statement. discovered_at is only written on insert.
func (r *ListingRepository) Upsert(ctx context.Context, listing *models.Listing) (bool, error) {
	if err := storage.ValidateForWrite(listing); err != nil {
		return false, err
	}

	var created bool
	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO listings (
				url, title, price_usd, odometer_km, seller_name, phone_number,
				image_url, image_count, plate_number, vin, discovered_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
			ON CONFLICT (url) DO UPDATE SET
				title = EXCLUDED.title,
				price_usd = EXCLUDED.price_usd,
				odometer_km = EXCLUDED.odometer_km,
				seller_name = EXCLUDED.seller_name,
				phone_number = EXCLUDED.phone_number,
				image_url = EXCLUDED.image_url,
				image_count = EXCLUDED.image_count,
				plate_number = EXCLUDED.plate_number,
				vin = EXCLUDED.vin,
				updated_at = NOW()
			RETURNING (xmax = 0), discovered_at, updated_at`,
			listing.URL, listing.Title, listing.PriceUSD, listing.OdometerKm,
			listing.SellerName, listing.PhoneNumber, listing.ImageURL, listing.ImageCount,
			listing.PlateNumber, listing.VIN,
		).Scan(&created, &listing.DiscoveredAt, &listing.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to upsert listing %s: %w", listing.URL, err)
		}

		if r.outbox == nil {
			return nil
		}

		event, err := events.NewListingEvent(listing, created)
		if err != nil {
			return err
		}
		return r.outbox.InsertWithTx(ctx, tx, NewOutboxEvent(event, r.stream))
	})
	if err != nil {
		return false, err
	}

	return created, nil
}

func (r *ListingRepository) Get(ctx context.Context, url string) (*models.Listing, error) {
	rows, err := r.db.pool.Query(ctx, "SELECT "+listingColumns+" FROM listings WHERE url = $1", url)
	if err != nil {
		return nil, fmt.Errorf("failed to get listing: %w", err)
	}

	listing, err := pgx.CollectExactlyOneRow(rows, scanListing)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrListingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan listing: %w", err)
	}
	return listing, nil
}

// List returns listings newest discovery first. A limit of 0 returns all rows.
func (r *ListingRepository) List(ctx context.Context, limit, offset int) ([]*models.Listing, error) {
	var limitArg any
	if limit > 0 {
		limitArg = limit
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.db.pool.Query(ctx,
		"SELECT "+listingColumns+" FROM listings ORDER BY discovered_at DESC, url ASC LIMIT $1 OFFSET $2",
		limitArg, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list listings: %w", err)
	}

	listings, err := pgx.CollectRows(rows, scanListing)
	if err != nil {
		return nil, fmt.Errorf("failed to scan listings: %w", err)
	}
	return listings, nil
}

func (r *ListingRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.pool.QueryRow(ctx, "SELECT COUNT(*) FROM listings").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count listings: %w", err)
	}
	return count, nil
}

// Close releases the pool.
func (r *ListingRepository) Close() error {
	r.db.Close()
	return nil
}

func scanListing(row pgx.CollectableRow) (*models.Listing, error) {
	l := &models.Listing{}
	err := row.Scan(
		&l.URL, &l.Title, &l.PriceUSD, &l.OdometerKm, &l.SellerName, &l.PhoneNumber,
		&l.ImageURL, &l.ImageCount, &l.PlateNumber, &l.VIN, &l.DiscoveredAt, &l.UpdatedAt,
	)
	return l, err
}

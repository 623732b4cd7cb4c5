package sqlitedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"

	"github.com/nftmarket/marketd/internal/core/domain"
)

const (
	selectListing = `
SELECT asset_id, seller, price, active, list_position, episode, listed_at, updated_at
FROM listing WHERE asset_id = ?`
	upsertListing = `
INSERT INTO listing (asset_id, seller, price, active, list_position, episode, listed_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (asset_id) DO UPDATE SET
    seller = excluded.seller,
    price = excluded.price,
    active = excluded.active,
    list_position = excluded.list_position,
    episode = excluded.episode,
    listed_at = excluded.listed_at,
    updated_at = excluded.updated_at`
	selectIndexPosition = `
SELECT list_position FROM listing_index WHERE asset_id = ?`
	selectIndexSize = `
SELECT COALESCE(MAX(list_position) + 1, 0) FROM listing_index`
	insertIndexEntry = `
INSERT INTO listing_index (asset_id, list_position) VALUES (?, ?)`
	selectActiveListings = `
SELECT asset_id, seller, price, active, list_position, episode, listed_at, updated_at
FROM listing WHERE active = ? ORDER BY list_position LIMIT ? OFFSET ?`
	countActiveListings = `
SELECT COUNT(*) FROM listing WHERE active = ?`
)

type listingRepository struct {
	db *sql.DB
}

func NewListingRepository(config ...interface{}) (domain.ListingRepository, error) {
	db, err := dbFromConfig(config...)
	if err != nil {
		return nil, fmt.Errorf("cannot open listing repository: %w", err)
	}
	return &listingRepository{db}, nil
}

func (r *listingRepository) GetListing(
	ctx context.Context, assetId uint64,
) (*domain.Listing, error) {
	listing, err := scanListing(conn(ctx, r.db).QueryRowContext(ctx, selectListing, int64(assetId)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get listing %d: %w", assetId, err)
	}
	return listing, nil
}

func (r *listingRepository) UpsertListing(ctx context.Context, listing domain.Listing) error {
	if _, err := conn(ctx, r.db).ExecContext(
		ctx, upsertListing,
		int64(listing.AssetId), listing.Seller, int64(listing.Price), listing.Active,
		int64(listing.Position), int64(listing.Episode), listing.ListedAt, listing.UpdatedAt,
	); err != nil {
		return fmt.Errorf("failed to upsert listing %d: %w", listing.AssetId, err)
	}
	return nil
}

func (r *listingRepository) IndexAsset(ctx context.Context, assetId uint64) (uint64, error) {
	q := conn(ctx, r.db)

	var position uint64
	err := q.QueryRowContext(ctx, selectIndexPosition, int64(assetId)).Scan(&position)
	if err == nil {
		return position, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to get index position of asset %d: %w", assetId, err)
	}

	if err := q.QueryRowContext(ctx, selectIndexSize).Scan(&position); err != nil {
		return 0, fmt.Errorf("failed to get listing index size: %w", err)
	}
	if _, err := q.ExecContext(
		ctx, insertIndexEntry, int64(assetId), int64(position),
	); err != nil {
		return 0, fmt.Errorf("failed to index asset %d: %w", assetId, err)
	}
	return position, nil
}

func (r *listingRepository) GetActiveListings(
	ctx context.Context, offset, limit uint64,
) ([]domain.Listing, error) {
	if limit == 0 || offset > math.MaxInt64 {
		return nil, nil
	}
	if limit > math.MaxInt64 {
		limit = math.MaxInt64
	}

	rows, err := conn(ctx, r.db).QueryContext(
		ctx, selectActiveListings, true, int64(limit), int64(offset),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get active listings: %w", err)
	}
	// nolint
	defer rows.Close()

	listings := make([]domain.Listing, 0)
	for rows.Next() {
		listing, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan listing: %w", err)
		}
		listings = append(listings, *listing)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate active listings: %w", err)
	}
	return listings, nil
}

func (r *listingRepository) CountActiveListings(ctx context.Context) (uint64, error) {
	var count uint64
	if err := conn(ctx, r.db).QueryRowContext(
		ctx, countActiveListings, true,
	).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count active listings: %w", err)
	}
	return count, nil
}

func (r *listingRepository) CountIndexedAssets(ctx context.Context) (uint64, error) {
	var size uint64
	if err := conn(ctx, r.db).QueryRowContext(ctx, selectIndexSize).Scan(&size); err != nil {
		return 0, fmt.Errorf("failed to get listing index size: %w", err)
	}
	return size, nil
}

func (r *listingRepository) Close() {
	_ = r.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanListing(row rowScanner) (*domain.Listing, error) {
	var listing domain.Listing
	if err := row.Scan(
		&listing.AssetId, &listing.Seller, &listing.Price, &listing.Active,
		&listing.Position, &listing.Episode, &listing.ListedAt, &listing.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &listing, nil
}

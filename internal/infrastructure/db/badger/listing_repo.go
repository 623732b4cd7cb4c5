package badgerdb

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/dgraph-io/badger/v4"
	"github.com/nftmarket/marketd/internal/core/domain"
	"github.com/timshannon/badgerhold/v4"
)

const listingIndexStateKey = "listing_index"

type listingRepository struct {
	store *badgerhold.Store
}

// listingDTO keeps a secondary index on Active so that pages and counts only visit active
// listings.
type listingDTO struct {
	AssetId   uint64
	Seller    string
	Price     uint64
	Active    bool `badgerhold:"index"`
	Position  uint64
	Episode   uint32
	ListedAt  int64
	UpdatedAt int64
}

type listingIndexEntry struct {
	AssetId  uint64
	Position uint64
}

type listingIndexState struct {
	Size uint64
}

func NewListingRepository(config ...interface{}) (domain.ListingRepository, error) {
	store, err := storeFromConfig(config...)
	if err != nil {
		return nil, err
	}
	return &listingRepository{store}, nil
}

func (r *listingRepository) GetListing(
	ctx context.Context, assetId uint64,
) (*domain.Listing, error) {
	var dto listingDTO
	err := withTx(ctx, r.store, false, func(tx *badger.Txn) error {
		return r.store.TxGet(tx, assetId, &dto)
	})
	if errors.Is(err, badgerhold.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get listing %d: %w", assetId, err)
	}
	listing := dto.toDomain()
	return &listing, nil
}

func (r *listingRepository) UpsertListing(ctx context.Context, listing domain.Listing) error {
	dto := toListingDTO(listing)
	return withTx(ctx, r.store, true, func(tx *badger.Txn) error {
		return r.store.TxUpsert(tx, listing.AssetId, dto)
	})
}

func (r *listingRepository) IndexAsset(ctx context.Context, assetId uint64) (uint64, error) {
	var position uint64
	if err := withTx(ctx, r.store, true, func(tx *badger.Txn) error {
		var entry listingIndexEntry
		err := r.store.TxGet(tx, assetId, &entry)
		if err == nil {
			position = entry.Position
			return nil
		}
		if !errors.Is(err, badgerhold.ErrNotFound) {
			return err
		}

		state, err := r.getIndexState(tx)
		if err != nil {
			return err
		}
		position = state.Size
		entry = listingIndexEntry{AssetId: assetId, Position: position}
		if err := r.store.TxInsert(tx, assetId, entry); err != nil {
			return err
		}
		state.Size++
		return r.store.TxUpsert(tx, listingIndexStateKey, state)
	}); err != nil {
		return 0, fmt.Errorf("failed to index asset %d: %w", assetId, err)
	}
	return position, nil
}

func (r *listingRepository) GetActiveListings(
	ctx context.Context, offset, limit uint64,
) ([]domain.Listing, error) {
	if limit == 0 || offset > math.MaxInt32 {
		return nil, nil
	}
	if limit > math.MaxInt32 {
		limit = math.MaxInt32
	}

	query := badgerhold.Where("Active").Eq(true).Index("Active").
		SortBy("Position").
		Skip(int(offset)).
		Limit(int(limit))

	var dtos []listingDTO
	if err := withTx(ctx, r.store, false, func(tx *badger.Txn) error {
		return r.store.TxFind(tx, &dtos, query)
	}); err != nil {
		return nil, fmt.Errorf("failed to find active listings: %w", err)
	}

	listings := make([]domain.Listing, 0, len(dtos))
	for _, dto := range dtos {
		listings = append(listings, dto.toDomain())
	}
	return listings, nil
}

func (r *listingRepository) CountActiveListings(ctx context.Context) (uint64, error) {
	var count uint64
	query := badgerhold.Where("Active").Eq(true).Index("Active")
	if err := withTx(ctx, r.store, false, func(tx *badger.Txn) error {
		var err error
		count, err = r.store.TxCount(tx, &listingDTO{}, query)
		return err
	}); err != nil {
		return 0, fmt.Errorf("failed to count active listings: %w", err)
	}
	return count, nil
}

func (r *listingRepository) CountIndexedAssets(ctx context.Context) (uint64, error) {
	var size uint64
	if err := withTx(ctx, r.store, false, func(tx *badger.Txn) error {
		state, err := r.getIndexState(tx)
		if err != nil {
			return err
		}
		size = state.Size
		return nil
	}); err != nil {
		return 0, err
	}
	return size, nil
}

func (r *listingRepository) Close() {}

func (r *listingRepository) getIndexState(tx *badger.Txn) (*listingIndexState, error) {
	var state listingIndexState
	err := r.store.TxGet(tx, listingIndexStateKey, &state)
	if err != nil && !errors.Is(err, badgerhold.ErrNotFound) {
		return nil, fmt.Errorf("failed to get listing index state: %w", err)
	}
	return &state, nil
}

func toListingDTO(listing domain.Listing) listingDTO {
	return listingDTO{
		AssetId:   listing.AssetId,
		Seller:    listing.Seller,
		Price:     listing.Price,
		Active:    listing.Active,
		Position:  listing.Position,
		Episode:   listing.Episode,
		ListedAt:  listing.ListedAt,
		UpdatedAt: listing.UpdatedAt,
	}
}

func (dto listingDTO) toDomain() domain.Listing {
	return domain.Listing{
		AssetId:   dto.AssetId,
		Seller:    dto.Seller,
		Price:     dto.Price,
		Active:    dto.Active,
		Position:  dto.Position,
		Episode:   dto.Episode,
		ListedAt:  dto.ListedAt,
		UpdatedAt: dto.UpdatedAt,
	}
}

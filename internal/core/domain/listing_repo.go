package domain

import "context"

type ListingRepository interface {
	// GetListing returns nil if the asset was never listed.
	GetListing(ctx context.Context, assetId uint64) (*Listing, error)
	UpsertListing(ctx context.Context, listing Listing) error
	// IndexAsset appends the asset to the listing index unless already there and returns its
	// position either way.
	IndexAsset(ctx context.Context, assetId uint64) (uint64, error)
	// GetActiveListings returns active listings ordered by index position.
	GetActiveListings(ctx context.Context, offset, limit uint64) ([]Listing, error)
	CountActiveListings(ctx context.Context) (uint64, error)
	// CountIndexedAssets returns how many distinct assets were ever listed.
	CountIndexedAssets(ctx context.Context) (uint64, error)
	Close()
}

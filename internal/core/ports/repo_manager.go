package ports

import (
	"context"

	"github.com/nftmarket/marketd/internal/core/domain"
)

type RepoManager interface {
	Assets() domain.AssetRepository
	Listings() domain.ListingRepository
	Treasury() domain.TreasuryRepository
	Events() domain.EventRepository
	// RunTx runs fn in a single store transaction carried by the context passed to fn, so that
	// every repository call made with it joins the transaction. The transaction commits if fn
	// returns nil and is rolled back otherwise.
	RunTx(ctx context.Context, readOnly bool, fn func(ctx context.Context) error) error
	Close()
}

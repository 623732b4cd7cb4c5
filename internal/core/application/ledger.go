package application

import (
	"context"
	"fmt"

	"github.com/nftmarket/marketd/internal/core/domain"
	"github.com/nftmarket/marketd/internal/core/ports"
	"github.com/nftmarket/marketd/pkg/errors"
)

// listingLedger owns the sale terms of listed assets and the listing index.
type listingLedger struct {
	repoManager   ports.RepoManager
	registry      *assetRegistry
	marketAddress string
	maxPageSize   uint64
}

func (l *listingLedger) checkPageSize(limit uint64) errors.Error {
	if limit > l.maxPageSize {
		return errors.PAGE_TOO_LARGE.New(
			"limit %d above max page size of %d", limit, l.maxPageSize,
		).WithMetadata(errors.PageMetadata{Limit: limit, MaxPageSize: l.maxPageSize})
	}
	return nil
}

func (l *listingLedger) getListing(
	ctx context.Context, assetId uint64,
) (*domain.Listing, errors.Error) {
	listing, err := l.repoManager.Listings().GetListing(ctx, assetId)
	if err != nil {
		return nil, errors.INTERNAL_ERROR.Wrap(fmt.Errorf("failed to get listing: %w", err))
	}
	return listing, nil
}

func (l *listingLedger) getActiveListing(
	ctx context.Context, assetId uint64,
) (*domain.Listing, errors.Error) {
	listing, err := l.getListing(ctx, assetId)
	if err != nil {
		return nil, err
	}
	if listing == nil || !listing.Active {
		return nil, errors.LISTING_NOT_ACTIVE.New("asset %d is not listed", assetId).
			WithMetadata(errors.AssetMetadata{AssetId: assetId})
	}
	return listing, nil
}

func (l *listingLedger) getSellerListing(
	ctx context.Context, caller string, assetId uint64,
) (*domain.Listing, errors.Error) {
	listing, err := l.getActiveListing(ctx, assetId)
	if err != nil {
		return nil, err
	}
	if listing.Seller != caller {
		return nil, errors.NOT_SELLER.New("%s is not the seller of asset %d", caller, assetId).
			WithMetadata(errors.ListingMetadata{AssetId: assetId, Seller: listing.Seller})
	}
	return listing, nil
}

func (l *listingLedger) upsert(ctx context.Context, listing domain.Listing) errors.Error {
	touch(ctx)
	if err := l.repoManager.Listings().UpsertListing(ctx, listing); err != nil {
		return errors.INTERNAL_ERROR.Wrap(fmt.Errorf("failed to upsert listing: %w", err))
	}
	return nil
}

func (l *listingLedger) createOrUpdateListing(
	ctx context.Context, caller string, assetId, price uint64,
) errors.Error {
	if !domain.IsValidPrice(price) {
		return errors.INVALID_PRICE.New("invalid price %d", price).
			WithMetadata(errors.PriceMetadata{AssetId: assetId, Price: price})
	}

	asset, err := l.registry.getAsset(ctx, assetId)
	if err != nil {
		return err
	}
	if !asset.IsOwner(caller) {
		return errors.NOT_OWNER.New("%s does not own asset %d", caller, assetId).
			WithMetadata(errors.OwnershipMetadata{
				AssetId: assetId, Owner: asset.Owner, Caller: caller,
			})
	}

	approved, err := l.registry.isApprovedForTransfer(ctx, assetId, caller, l.marketAddress)
	if err != nil {
		return err
	}
	if !approved {
		return errors.NOT_APPROVED.New("market is not approved to move asset %d", assetId).
			WithMetadata(errors.AssetMetadata{AssetId: assetId})
	}

	listing, err := l.getListing(ctx, assetId)
	if err != nil {
		return err
	}
	if listing == nil {
		listing = &domain.Listing{AssetId: assetId}
	}

	touch(ctx)
	position, indexErr := l.repoManager.Listings().IndexAsset(ctx, assetId)
	if indexErr != nil {
		return errors.INTERNAL_ERROR.Wrap(fmt.Errorf("failed to index asset: %w", indexErr))
	}
	listing.Position = position
	listing.Relist(caller, price)
	if err := l.upsert(ctx, *listing); err != nil {
		return err
	}

	emit(ctx, domain.Listed{AssetId: assetId, Seller: caller, Price: price})
	return nil
}

func (l *listingLedger) updatePrice(
	ctx context.Context, caller string, assetId, newPrice uint64,
) errors.Error {
	if !domain.IsValidPrice(newPrice) {
		return errors.INVALID_PRICE.New("invalid price %d", newPrice).
			WithMetadata(errors.PriceMetadata{AssetId: assetId, Price: newPrice})
	}

	listing, err := l.getSellerListing(ctx, caller, assetId)
	if err != nil {
		return err
	}

	oldPrice := listing.Price
	listing.UpdatePrice(newPrice)
	if err := l.upsert(ctx, *listing); err != nil {
		return err
	}

	emit(ctx, domain.PriceUpdated{
		AssetId: assetId, Seller: caller, OldPrice: oldPrice, NewPrice: newPrice,
	})
	return nil
}

func (l *listingLedger) delist(ctx context.Context, caller string, assetId uint64) errors.Error {
	listing, err := l.getSellerListing(ctx, caller, assetId)
	if err != nil {
		return err
	}

	listing.Deactivate()
	if err := l.upsert(ctx, *listing); err != nil {
		return err
	}

	emit(ctx, domain.Delisted{AssetId: assetId, Seller: caller})
	return nil
}

// deactivate closes the current episode of a listing being settled.
func (l *listingLedger) deactivate(ctx context.Context, listing *domain.Listing) errors.Error {
	listing.Deactivate()
	return l.upsert(ctx, *listing)
}

func (l *listingLedger) getActiveListings(
	ctx context.Context, offset, limit uint64,
) ([]domain.Listing, errors.Error) {
	if limit == 0 {
		return nil, nil
	}
	listings, err := l.repoManager.Listings().GetActiveListings(ctx, offset, limit)
	if err != nil {
		return nil, errors.INTERNAL_ERROR.Wrap(
			fmt.Errorf("failed to get active listings: %w", err),
		)
	}
	return listings, nil
}

func (s *service) MintAndList(
	ctx context.Context, caller, metadataURI string, price uint64,
) (uint64, errors.Error) {
	var assetId uint64
	if err := s.write(ctx, "ledger.MintAndList", func(ctx context.Context) errors.Error {
		if !domain.IsValidPrice(price) {
			return errors.INVALID_PRICE.New("invalid price %d", price).
				WithMetadata(errors.PriceMetadata{Price: price})
		}

		var err errors.Error
		assetId, err = s.registry.mint(ctx, s.cfg.MarketAddress, caller, metadataURI)
		if err != nil {
			return err
		}
		// The seller holds the asset already, the approval is granted on its behalf.
		if err := s.registry.approve(ctx, caller, assetId, s.cfg.MarketAddress); err != nil {
			return err
		}
		return s.ledger.createOrUpdateListing(ctx, caller, assetId, price)
	}); err != nil {
		return 0, err
	}
	return assetId, nil
}

func (s *service) ListNFT(ctx context.Context, caller string, assetId, price uint64) errors.Error {
	return s.write(ctx, "ledger.ListNFT", func(ctx context.Context) errors.Error {
		return s.ledger.createOrUpdateListing(ctx, caller, assetId, price)
	})
}

func (s *service) UpdateListingPrice(
	ctx context.Context, caller string, assetId, newPrice uint64,
) errors.Error {
	return s.write(ctx, "ledger.UpdateListingPrice", func(ctx context.Context) errors.Error {
		return s.ledger.updatePrice(ctx, caller, assetId, newPrice)
	})
}

func (s *service) DelistNFT(ctx context.Context, caller string, assetId uint64) errors.Error {
	return s.write(ctx, "ledger.DelistNFT", func(ctx context.Context) errors.Error {
		return s.ledger.delist(ctx, caller, assetId)
	})
}

func (s *service) GetListing(ctx context.Context, assetId uint64) (*ListingInfo, errors.Error) {
	info := &ListingInfo{AssetId: assetId}
	if err := s.read(ctx, func(ctx context.Context) errors.Error {
		listing, err := s.ledger.getListing(ctx, assetId)
		if err != nil {
			return err
		}
		if listing != nil {
			info = toListingInfo(*listing)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return info, nil
}

func (s *service) GetActiveListings(
	ctx context.Context, offset, limit uint64,
) ([]ListingInfo, errors.Error) {
	if err := s.ledger.checkPageSize(limit); err != nil {
		return nil, err
	}

	var listings []domain.Listing
	if err := s.read(ctx, func(ctx context.Context) errors.Error {
		var err errors.Error
		listings, err = s.ledger.getActiveListings(ctx, offset, limit)
		return err
	}); err != nil {
		return nil, err
	}

	infos := make([]ListingInfo, 0, len(listings))
	for _, listing := range listings {
		infos = append(infos, *toListingInfo(listing))
	}
	return infos, nil
}

func (s *service) GetActiveCount(ctx context.Context) (uint64, errors.Error) {
	var count uint64
	if err := s.read(ctx, func(ctx context.Context) errors.Error {
		var err error
		if count, err = s.repoManager.Listings().CountActiveListings(ctx); err != nil {
			return errors.INTERNAL_ERROR.Wrap(
				fmt.Errorf("failed to count active listings: %w", err),
			)
		}
		return nil
	}); err != nil {
		return 0, err
	}
	return count, nil
}

func (s *service) GetTotalEverListedCount(ctx context.Context) (uint64, errors.Error) {
	var count uint64
	if err := s.read(ctx, func(ctx context.Context) errors.Error {
		var err error
		if count, err = s.repoManager.Listings().CountIndexedAssets(ctx); err != nil {
			return errors.INTERNAL_ERROR.Wrap(
				fmt.Errorf("failed to count listed assets: %w", err),
			)
		}
		return nil
	}); err != nil {
		return 0, err
	}
	return count, nil
}

func toListingInfo(listing domain.Listing) *ListingInfo {
	return &ListingInfo{
		AssetId: listing.AssetId,
		Seller:  listing.Seller,
		Price:   listing.Price,
		Active:  listing.Active,
	}
}

package application

import (
	"context"
	"time"

	"github.com/nftmarket/marketd/internal/core/domain"
	"github.com/nftmarket/marketd/pkg/errors"
)

type Service interface {
	Start() errors.Error
	Stop()

	// Registry
	Mint(ctx context.Context, caller, metadataURI string) (uint64, errors.Error)
	MintTo(ctx context.Context, caller, recipient, metadataURI string) (uint64, errors.Error)
	Transfer(ctx context.Context, caller, from, to string, assetId uint64) errors.Error
	Approve(ctx context.Context, caller string, assetId uint64, spender string) errors.Error
	SetApprovalForAll(ctx context.Context, caller, operator string, approved bool) errors.Error
	OwnerOf(ctx context.Context, assetId uint64) (string, errors.Error)
	TokenURI(ctx context.Context, assetId uint64) (string, errors.Error)
	IsApprovedForTransfer(
		ctx context.Context, assetId uint64, owner, spender string,
	) (bool, errors.Error)

	// Listings
	MintAndList(
		ctx context.Context, caller, metadataURI string, price uint64,
	) (uint64, errors.Error)
	ListNFT(ctx context.Context, caller string, assetId, price uint64) errors.Error
	UpdateListingPrice(ctx context.Context, caller string, assetId, newPrice uint64) errors.Error
	DelistNFT(ctx context.Context, caller string, assetId uint64) errors.Error
	GetListing(ctx context.Context, assetId uint64) (*ListingInfo, errors.Error)
	GetActiveListings(ctx context.Context, offset, limit uint64) ([]ListingInfo, errors.Error)
	GetActiveCount(ctx context.Context) (uint64, errors.Error)
	GetTotalEverListedCount(ctx context.Context) (uint64, errors.Error)

	// Settlement
	BuyNFT(ctx context.Context, caller string, assetId, payment uint64) (*Sale, errors.Error)

	// Treasury
	SetFeeRate(ctx context.Context, caller string, feeRateBps uint32) errors.Error
	WithdrawFees(ctx context.Context, caller, recipient string) (uint64, errors.Error)
	GetFeeInfo(ctx context.Context) (*FeeInfo, errors.Error)

	// Events
	GetEvents(ctx context.Context, afterSeq, limit uint64) ([]domain.RecordedEvent, errors.Error)
	GetEventsChannel(ctx context.Context) (<-chan domain.RecordedEvent, errors.Error)
	GetMarketStats(ctx context.Context) (*MarketStats, errors.Error)
}

type Config struct {
	// OperatorAddress is the only caller allowed to change the fee rate and withdraw fees.
	OperatorAddress string
	// RegistryOwnerAddress can mint to any recipient.
	RegistryOwnerAddress string
	// MarketAddress is the settlement identity. It's the minting authority and the spender
	// sellers approve before listing.
	MarketAddress     string
	DefaultFeeRateBps uint32
	MaxPageSize       uint64
	// StatsInterval is how often market stats get logged, disabled if zero.
	StatsInterval time.Duration
}

// ListingInfo has zero values for assets that were never listed.
type ListingInfo struct {
	AssetId uint64
	Seller  string
	Price   uint64
	Active  bool
}

type Sale struct {
	AssetId  uint64
	Seller   string
	Buyer    string
	Price    uint64
	Fee      uint64
	Proceeds uint64
}

type FeeInfo struct {
	FeeRateBps     uint32
	AccruedBalance uint64
	TotalCollected uint64
	TotalWithdrawn uint64
}

type MarketStats struct {
	ActiveListings  uint64
	TotalEverListed uint64
	LastAssetId     uint64
	AccruedFees     uint64
	FeeRateBps      uint32
}

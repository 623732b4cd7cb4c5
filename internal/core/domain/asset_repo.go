package domain

import "context"

type AssetRepository interface {
	// GetAsset returns nil if the asset was never minted.
	GetAsset(ctx context.Context, id uint64) (*Asset, error)
	AddAsset(ctx context.Context, asset Asset) error
	UpdateAsset(ctx context.Context, asset Asset) error
	LastAssetId(ctx context.Context) (uint64, error)
	SetOperatorApproval(ctx context.Context, owner, operator string, approved bool) error
	IsOperatorApproved(ctx context.Context, owner, operator string) (bool, error)
	Close()
}

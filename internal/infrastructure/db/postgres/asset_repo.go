package pgdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/nftmarket/marketd/internal/core/domain"
)

const (
	selectAsset = `
SELECT id, owner, metadata_uri, approved, minted_at FROM asset WHERE id = $1`
	insertAsset = `
INSERT INTO asset (id, owner, metadata_uri, approved, minted_at) VALUES ($1, $2, $3, $4, $5)`
	updateAsset = `
UPDATE asset SET owner = $1, approved = $2 WHERE id = $3`
	selectLastAssetId = `
SELECT COALESCE(MAX(id), 0) FROM asset`
	insertOperatorApproval = `
INSERT INTO operator_approval (owner, operator) VALUES ($1, $2)
ON CONFLICT (owner, operator) DO NOTHING`
	deleteOperatorApproval = `
DELETE FROM operator_approval WHERE owner = $1 AND operator = $2`
	selectOperatorApproval = `
SELECT EXISTS (SELECT 1 FROM operator_approval WHERE owner = $1 AND operator = $2)`
)

type assetRepository struct {
	db *sql.DB
}

func NewAssetRepository(config ...interface{}) (domain.AssetRepository, error) {
	db, err := dbFromConfig(config...)
	if err != nil {
		return nil, fmt.Errorf("cannot open asset repository: %w", err)
	}
	return &assetRepository{db}, nil
}

func (r *assetRepository) GetAsset(ctx context.Context, id uint64) (*domain.Asset, error) {
	var asset domain.Asset
	err := conn(ctx, r.db).QueryRowContext(ctx, selectAsset, int64(id)).Scan(
		&asset.Id, &asset.Owner, &asset.MetadataURI, &asset.Approved, &asset.MintedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get asset %d: %w", id, err)
	}
	return &asset, nil
}

func (r *assetRepository) AddAsset(ctx context.Context, asset domain.Asset) error {
	if _, err := conn(ctx, r.db).ExecContext(
		ctx, insertAsset,
		int64(asset.Id), asset.Owner, asset.MetadataURI, asset.Approved, asset.MintedAt,
	); err != nil {
		return fmt.Errorf("failed to insert asset %d: %w", asset.Id, err)
	}
	return nil
}

func (r *assetRepository) UpdateAsset(ctx context.Context, asset domain.Asset) error {
	res, err := conn(ctx, r.db).ExecContext(
		ctx, updateAsset, asset.Owner, asset.Approved, int64(asset.Id),
	)
	if err != nil {
		return fmt.Errorf("failed to update asset %d: %w", asset.Id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("asset %d not found", asset.Id)
	}
	return nil
}

func (r *assetRepository) LastAssetId(ctx context.Context) (uint64, error) {
	var lastId uint64
	if err := conn(ctx, r.db).QueryRowContext(ctx, selectLastAssetId).Scan(&lastId); err != nil {
		return 0, fmt.Errorf("failed to get last asset id: %w", err)
	}
	return lastId, nil
}

func (r *assetRepository) SetOperatorApproval(
	ctx context.Context, owner, operator string, approved bool,
) error {
	query := deleteOperatorApproval
	if approved {
		query = insertOperatorApproval
	}
	if _, err := conn(ctx, r.db).ExecContext(ctx, query, owner, operator); err != nil {
		return fmt.Errorf("failed to set operator approval: %w", err)
	}
	return nil
}

func (r *assetRepository) IsOperatorApproved(
	ctx context.Context, owner, operator string,
) (bool, error) {
	var approved bool
	if err := conn(ctx, r.db).QueryRowContext(
		ctx, selectOperatorApproval, owner, operator,
	).Scan(&approved); err != nil {
		return false, fmt.Errorf("failed to get operator approval: %w", err)
	}
	return approved, nil
}

func (r *assetRepository) Close() {
	_ = r.db.Close()
}

package badgerdb

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/nftmarket/marketd/internal/core/domain"
	"github.com/timshannon/badgerhold/v4"
)

const registryStateKey = "registry"

type assetRepository struct {
	store *badgerhold.Store
}

type registryState struct {
	LastAssetId uint64
}

type operatorApprovalDTO struct {
	Owner    string
	Operator string
}

// NewAssetRepository expects the store shared with the other repositories.
func NewAssetRepository(config ...interface{}) (domain.AssetRepository, error) {
	store, err := storeFromConfig(config...)
	if err != nil {
		return nil, err
	}
	return &assetRepository{store}, nil
}

func (r *assetRepository) GetAsset(ctx context.Context, id uint64) (*domain.Asset, error) {
	var asset domain.Asset
	err := withTx(ctx, r.store, false, func(tx *badger.Txn) error {
		return r.store.TxGet(tx, id, &asset)
	})
	if errors.Is(err, badgerhold.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get asset %d: %w", id, err)
	}
	return &asset, nil
}

func (r *assetRepository) AddAsset(ctx context.Context, asset domain.Asset) error {
	return withTx(ctx, r.store, true, func(tx *badger.Txn) error {
		if err := r.store.TxInsert(tx, asset.Id, asset); err != nil {
			return fmt.Errorf("failed to insert asset %d: %w", asset.Id, err)
		}

		state, err := r.getState(tx)
		if err != nil {
			return err
		}
		if asset.Id <= state.LastAssetId {
			return nil
		}
		state.LastAssetId = asset.Id
		return r.store.TxUpsert(tx, registryStateKey, state)
	})
}

func (r *assetRepository) UpdateAsset(ctx context.Context, asset domain.Asset) error {
	return withTx(ctx, r.store, true, func(tx *badger.Txn) error {
		return r.store.TxUpdate(tx, asset.Id, asset)
	})
}

func (r *assetRepository) LastAssetId(ctx context.Context) (uint64, error) {
	var lastId uint64
	if err := withTx(ctx, r.store, false, func(tx *badger.Txn) error {
		state, err := r.getState(tx)
		if err != nil {
			return err
		}
		lastId = state.LastAssetId
		return nil
	}); err != nil {
		return 0, err
	}
	return lastId, nil
}

func (r *assetRepository) SetOperatorApproval(
	ctx context.Context, owner, operator string, approved bool,
) error {
	key := operatorApprovalKey(owner, operator)
	return withTx(ctx, r.store, true, func(tx *badger.Txn) error {
		if approved {
			return r.store.TxUpsert(tx, key, operatorApprovalDTO{owner, operator})
		}
		err := r.store.TxDelete(tx, key, operatorApprovalDTO{})
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil
		}
		return err
	})
}

func (r *assetRepository) IsOperatorApproved(
	ctx context.Context, owner, operator string,
) (bool, error) {
	var dto operatorApprovalDTO
	err := withTx(ctx, r.store, false, func(tx *badger.Txn) error {
		return r.store.TxGet(tx, operatorApprovalKey(owner, operator), &dto)
	})
	if errors.Is(err, badgerhold.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get operator approval: %w", err)
	}
	return true, nil
}

func (r *assetRepository) Close() {}

func (r *assetRepository) getState(tx *badger.Txn) (*registryState, error) {
	var state registryState
	err := r.store.TxGet(tx, registryStateKey, &state)
	if err != nil && !errors.Is(err, badgerhold.ErrNotFound) {
		return nil, fmt.Errorf("failed to get registry state: %w", err)
	}
	return &state, nil
}

func operatorApprovalKey(owner, operator string) string {
	return fmt.Sprintf("%s:%s", owner, operator)
}

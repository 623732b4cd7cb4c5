package badgerdb

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/nftmarket/marketd/internal/core/domain"
	"github.com/timshannon/badgerhold/v4"
)

const treasuryKey = "treasury"

type treasuryRepository struct {
	store *badgerhold.Store
}

func NewTreasuryRepository(config ...interface{}) (domain.TreasuryRepository, error) {
	store, err := storeFromConfig(config...)
	if err != nil {
		return nil, err
	}
	return &treasuryRepository{store}, nil
}

func (r *treasuryRepository) Get(ctx context.Context) (*domain.Treasury, error) {
	var treasury domain.Treasury
	err := withTx(ctx, r.store, false, func(tx *badger.Txn) error {
		return r.store.TxGet(tx, treasuryKey, &treasury)
	})
	if errors.Is(err, badgerhold.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get treasury: %w", err)
	}
	return &treasury, nil
}

func (r *treasuryRepository) Upsert(ctx context.Context, treasury domain.Treasury) error {
	return withTx(ctx, r.store, true, func(tx *badger.Txn) error {
		return r.store.TxUpsert(tx, treasuryKey, &treasury)
	})
}

func (r *treasuryRepository) Close() {}

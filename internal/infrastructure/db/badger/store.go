package badgerdb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/timshannon/badgerhold/v4"
)

const maxRetries = 5

type txKey struct{}

// NewStore opens the store shared by all repositories. It's kept in memory if dir is empty.
func NewStore(dir string, logger badger.Logger) (*badgerhold.Store, error) {
	store, err := createDB(dir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open market store: %s", err)
	}
	return store, nil
}

// RunTx opens a badger transaction and passes it to fn through the context. If ctx carries a
// transaction already, fn joins it.
func RunTx(
	ctx context.Context, store *badgerhold.Store, readOnly bool,
	fn func(ctx context.Context) error,
) error {
	if _, ok := ctx.Value(txKey{}).(*badger.Txn); ok {
		return fn(ctx)
	}

	tx := store.Badger().NewTransaction(!readOnly)
	defer tx.Discard()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	if readOnly {
		return nil
	}
	return tx.Commit()
}

// withTx runs fn in the transaction carried by ctx, if any, or in a new one. Conflicting
// standalone updates are retried.
func withTx(
	ctx context.Context, store *badgerhold.Store, update bool, fn func(tx *badger.Txn) error,
) error {
	if tx, ok := ctx.Value(txKey{}).(*badger.Txn); ok {
		return fn(tx)
	}
	if !update {
		return store.Badger().View(fn)
	}

	err := store.Badger().Update(fn)
	for attempts := 1; errors.Is(err, badger.ErrConflict) && attempts <= maxRetries; attempts++ {
		time.Sleep(100 * time.Millisecond)
		err = store.Badger().Update(fn)
	}
	return err
}

func createDB(dbDir string, logger badger.Logger) (*badgerhold.Store, error) {
	isInMemory := len(dbDir) <= 0

	opts := badger.DefaultOptions(dbDir)
	opts.Logger = logger

	if isInMemory {
		opts.InMemory = true
	}

	db, err := badgerhold.Open(badgerhold.Options{
		Encoder:          badgerhold.DefaultEncode,
		Decoder:          badgerhold.DefaultDecode,
		SequenceBandwith: 100,
		Options:          opts,
	})
	if err != nil {
		return nil, err
	}

	return db, nil
}

func storeFromConfig(config ...interface{}) (*badgerhold.Store, error) {
	if len(config) != 1 {
		return nil, fmt.Errorf("invalid config")
	}
	store, ok := config[0].(*badgerhold.Store)
	if !ok || store == nil {
		return nil, fmt.Errorf("invalid store")
	}
	return store, nil
}

package db

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/dgraph-io/badger/v4"
	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/nftmarket/marketd/internal/core/domain"
	"github.com/nftmarket/marketd/internal/core/ports"
	badgerdb "github.com/nftmarket/marketd/internal/infrastructure/db/badger"
	pgdb "github.com/nftmarket/marketd/internal/infrastructure/db/postgres"
	sqlitedb "github.com/nftmarket/marketd/internal/infrastructure/db/sqlite"
	log "github.com/sirupsen/logrus"
	"github.com/timshannon/badgerhold/v4"
)

//go:embed sqlite/migration/*
var migrations embed.FS

//go:embed postgres/migration/*
var pgMigration embed.FS

var (
	assetStoreTypes = map[string]func(...interface{}) (domain.AssetRepository, error){
		"badger":   badgerdb.NewAssetRepository,
		"sqlite":   sqlitedb.NewAssetRepository,
		"postgres": pgdb.NewAssetRepository,
	}
	listingStoreTypes = map[string]func(...interface{}) (domain.ListingRepository, error){
		"badger":   badgerdb.NewListingRepository,
		"sqlite":   sqlitedb.NewListingRepository,
		"postgres": pgdb.NewListingRepository,
	}
	treasuryStoreTypes = map[string]func(...interface{}) (domain.TreasuryRepository, error){
		"badger":   badgerdb.NewTreasuryRepository,
		"sqlite":   sqlitedb.NewTreasuryRepository,
		"postgres": pgdb.NewTreasuryRepository,
	}
	eventStoreTypes = map[string]func(...interface{}) (domain.EventRepository, error){
		"badger":   badgerdb.NewEventRepository,
		"sqlite":   sqlitedb.NewEventRepository,
		"postgres": pgdb.NewEventRepository,
	}
)

const (
	sqliteDbFile = "sqlite.db"
)

// ServiceConfig selects the store backing every repository.
// DataStoreConfig is:
// - badger: [baseDir string, logger badger.Logger], in memory if baseDir is empty
// - sqlite: [baseDir string]
// - postgres: [dsn string, autoCreate bool]
type ServiceConfig struct {
	DataStoreType   string
	DataStoreConfig []interface{}
}

type service struct {
	assetStore    domain.AssetRepository
	listingStore  domain.ListingRepository
	treasuryStore domain.TreasuryRepository
	eventStore    domain.EventRepository

	runTx   func(ctx context.Context, readOnly bool, fn func(ctx context.Context) error) error
	closeFn func()
}

func NewService(config ServiceConfig) (ports.RepoManager, error) {
	assetStoreFactory, ok := assetStoreTypes[config.DataStoreType]
	if !ok {
		return nil, fmt.Errorf("invalid data store type: %s", config.DataStoreType)
	}
	listingStoreFactory := listingStoreTypes[config.DataStoreType]
	treasuryStoreFactory := treasuryStoreTypes[config.DataStoreType]
	eventStoreFactory := eventStoreTypes[config.DataStoreType]

	var storeConfig []interface{}
	svc := &service{}

	switch config.DataStoreType {
	case "badger":
		if len(config.DataStoreConfig) != 2 {
			return nil, fmt.Errorf("invalid data store config for badger")
		}
		baseDir, ok := config.DataStoreConfig[0].(string)
		if !ok {
			return nil, fmt.Errorf("invalid base directory")
		}
		var logger badger.Logger
		if config.DataStoreConfig[1] != nil {
			logger, ok = config.DataStoreConfig[1].(badger.Logger)
			if !ok {
				return nil, fmt.Errorf("invalid logger")
			}
		}

		var dir string
		if len(baseDir) > 0 {
			dir = filepath.Join(baseDir, "market")
		}
		store, err := badgerdb.NewStore(dir, logger)
		if err != nil {
			return nil, err
		}

		storeConfig = []interface{}{store}
		svc.runTx = func(
			ctx context.Context, readOnly bool, fn func(ctx context.Context) error,
		) error {
			return badgerdb.RunTx(ctx, store, readOnly, fn)
		}
		svc.closeFn = closeBadgerStore(store)

	case "postgres":
		if len(config.DataStoreConfig) != 2 {
			return nil, fmt.Errorf("invalid data store config for postgres")
		}

		dsn, ok := config.DataStoreConfig[0].(string)
		if !ok {
			return nil, fmt.Errorf("invalid DSN for postgres")
		}

		autoCreate, ok := config.DataStoreConfig[1].(bool)
		if !ok {
			return nil, fmt.Errorf("invalid autocreate flag for postgres")
		}

		db, err := pgdb.OpenDb(dsn, autoCreate)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres db: %s", err)
		}

		pgDriver, err := migratepg.WithInstance(db, &migratepg.Config{})
		if err != nil {
			return nil, fmt.Errorf("failed to init postgres migration driver: %s", err)
		}

		source, err := iofs.New(pgMigration, "postgres/migration")
		if err != nil {
			return nil, fmt.Errorf("failed to embed postgres migrations: %s", err)
		}

		m, err := migrate.NewWithInstance("iofs", source, "postgres", pgDriver)
		if err != nil {
			return nil, fmt.Errorf("failed to create postgres migration instance: %s", err)
		}

		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return nil, fmt.Errorf("failed to run postgres migrations: %s", err)
		}

		storeConfig = []interface{}{db}
		svc.runTx = func(
			ctx context.Context, readOnly bool, fn func(ctx context.Context) error,
		) error {
			return pgdb.RunTx(ctx, db, readOnly, fn)
		}
		svc.closeFn = closeSqlDb(db)

	case "sqlite":
		if len(config.DataStoreConfig) != 1 {
			return nil, fmt.Errorf("invalid data store config")
		}

		baseDir, ok := config.DataStoreConfig[0].(string)
		if !ok {
			return nil, fmt.Errorf("invalid base directory")
		}

		dbFile := filepath.Join(baseDir, sqliteDbFile)
		db, err := sqlitedb.OpenDb(dbFile)
		if err != nil {
			return nil, fmt.Errorf("failed to open db: %s", err)
		}

		driver, err := sqlitemigrate.WithInstance(db, &sqlitemigrate.Config{})
		if err != nil {
			return nil, fmt.Errorf("failed to init driver: %s", err)
		}

		source, err := iofs.New(migrations, "sqlite/migration")
		if err != nil {
			return nil, fmt.Errorf("failed to embed migrations: %s", err)
		}

		m, err := migrate.NewWithInstance("iofs", source, "marketdb", driver)
		if err != nil {
			return nil, fmt.Errorf("failed to create migration instance: %s", err)
		}

		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return nil, fmt.Errorf("failed to run migrations: %s", err)
		}

		storeConfig = []interface{}{db}
		svc.runTx = func(
			ctx context.Context, readOnly bool, fn func(ctx context.Context) error,
		) error {
			return sqlitedb.RunTx(ctx, db, readOnly, fn)
		}
		svc.closeFn = closeSqlDb(db)
	}

	var err error
	if svc.assetStore, err = assetStoreFactory(storeConfig...); err != nil {
		return nil, fmt.Errorf("failed to open asset store: %w", err)
	}
	if svc.listingStore, err = listingStoreFactory(storeConfig...); err != nil {
		return nil, fmt.Errorf("failed to open listing store: %w", err)
	}
	if svc.treasuryStore, err = treasuryStoreFactory(storeConfig...); err != nil {
		return nil, fmt.Errorf("failed to open treasury store: %w", err)
	}
	if svc.eventStore, err = eventStoreFactory(storeConfig...); err != nil {
		return nil, fmt.Errorf("failed to open event store: %w", err)
	}

	return svc, nil
}

func (s *service) Assets() domain.AssetRepository {
	return s.assetStore
}

func (s *service) Listings() domain.ListingRepository {
	return s.listingStore
}

func (s *service) Treasury() domain.TreasuryRepository {
	return s.treasuryStore
}

func (s *service) Events() domain.EventRepository {
	return s.eventStore
}

func (s *service) RunTx(
	ctx context.Context, readOnly bool, fn func(ctx context.Context) error,
) error {
	return s.runTx(ctx, readOnly, fn)
}

// Close releases the store shared by all repositories, repositories don't own it.
func (s *service) Close() {
	s.closeFn()
}

func closeBadgerStore(store *badgerhold.Store) func() {
	return func() {
		if err := store.Close(); err != nil {
			log.WithError(err).Warn("failed to close badger store")
		}
	}
}

func closeSqlDb(db *sql.DB) func() {
	return func() {
		if err := db.Close(); err != nil {
			log.WithError(err).Warn("failed to close db")
		}
	}
}

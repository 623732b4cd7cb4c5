package db_test

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/nftmarket/marketd/internal/core/domain"
	"github.com/nftmarket/marketd/internal/core/ports"
	"github.com/nftmarket/marketd/internal/infrastructure/db"
	"github.com/stretchr/testify/require"
)

const (
	alice = "0xa11ce"
	bob   = "0xb0b"
	carol = "0xca401"
)

func TestService(t *testing.T) {
	tests := []struct {
		name   string
		config db.ServiceConfig
	}{
		{
			name: "repo_manager_with_badger_stores",
			config: db.ServiceConfig{
				DataStoreType:   "badger",
				DataStoreConfig: []interface{}{"", nil},
			},
		},
		{
			name: "repo_manager_with_sqlite_stores",
			config: db.ServiceConfig{
				DataStoreType:   "sqlite",
				DataStoreConfig: []interface{}{t.TempDir()},
			},
		},
	}
	if pgDsn := os.Getenv("MARKETD_TEST_PG_DSN"); pgDsn != "" {
		tests = append(tests, struct {
			name   string
			config db.ServiceConfig
		}{
			name: "repo_manager_with_postgres_stores",
			config: db.ServiceConfig{
				DataStoreType:   "postgres",
				DataStoreConfig: []interface{}{pgDsn, true},
			},
		})
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := db.NewService(tt.config)
			require.NoError(t, err)
			require.NotNil(t, svc)

			// Listing tests rely on the assets added by the asset tests.
			testAssetRepository(t, svc)
			testListingRepository(t, svc)
			testTreasuryRepository(t, svc)
			testEventRepository(t, svc)
			testRunTx(t, svc)

			svc.Close()
		})
	}
}

func TestInvalidServiceConfig(t *testing.T) {
	fixtures := []struct {
		name   string
		config db.ServiceConfig
	}{
		{
			name:   "unknown store type",
			config: db.ServiceConfig{DataStoreType: "mongo"},
		},
		{
			name: "badger without logger slot",
			config: db.ServiceConfig{
				DataStoreType:   "badger",
				DataStoreConfig: []interface{}{""},
			},
		},
		{
			name: "sqlite with non string dir",
			config: db.ServiceConfig{
				DataStoreType:   "sqlite",
				DataStoreConfig: []interface{}{42},
			},
		},
		{
			name: "postgres without autocreate flag",
			config: db.ServiceConfig{
				DataStoreType:   "postgres",
				DataStoreConfig: []interface{}{"postgres://localhost"},
			},
		},
	}

	for _, f := range fixtures {
		t.Run(f.name, func(t *testing.T) {
			svc, err := db.NewService(f.config)
			require.Error(t, err)
			require.Nil(t, svc)
		})
	}
}

func testAssetRepository(t *testing.T, svc ports.RepoManager) {
	t.Run("test_asset_repository", func(t *testing.T) {
		ctx := context.Background()
		repo := svc.Assets()

		lastId, err := repo.LastAssetId(ctx)
		require.NoError(t, err)
		require.Zero(t, lastId)

		asset, err := repo.GetAsset(ctx, 1)
		require.NoError(t, err)
		require.Nil(t, asset)

		for i := uint64(1); i <= 5; i++ {
			err := repo.AddAsset(ctx, domain.NewAsset(i, alice, fmt.Sprintf("ipfs://asset/%d", i)))
			require.NoError(t, err)
		}

		lastId, err = repo.LastAssetId(ctx)
		require.NoError(t, err)
		require.Equal(t, uint64(5), lastId)

		asset, err = repo.GetAsset(ctx, 3)
		require.NoError(t, err)
		require.NotNil(t, asset)
		require.Equal(t, alice, asset.Owner)
		require.Equal(t, "ipfs://asset/3", asset.MetadataURI)
		require.Empty(t, asset.Approved)

		asset.Approved = bob
		require.NoError(t, repo.UpdateAsset(ctx, *asset))

		asset, err = repo.GetAsset(ctx, 3)
		require.NoError(t, err)
		require.Equal(t, bob, asset.Approved)

		asset.TransferTo(carol)
		require.NoError(t, repo.UpdateAsset(ctx, *asset))

		asset, err = repo.GetAsset(ctx, 3)
		require.NoError(t, err)
		require.Equal(t, carol, asset.Owner)
		require.Empty(t, asset.Approved)

		ok, err := repo.IsOperatorApproved(ctx, alice, bob)
		require.NoError(t, err)
		require.False(t, ok)

		require.NoError(t, repo.SetOperatorApproval(ctx, alice, bob, true))
		ok, err = repo.IsOperatorApproved(ctx, alice, bob)
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = repo.IsOperatorApproved(ctx, bob, alice)
		require.NoError(t, err)
		require.False(t, ok)

		require.NoError(t, repo.SetOperatorApproval(ctx, alice, bob, false))
		ok, err = repo.IsOperatorApproved(ctx, alice, bob)
		require.NoError(t, err)
		require.False(t, ok)
	})
}

func testListingRepository(t *testing.T, svc ports.RepoManager) {
	t.Run("test_listing_repository", func(t *testing.T) {
		ctx := context.Background()
		repo := svc.Listings()

		listing, err := repo.GetListing(ctx, 1)
		require.NoError(t, err)
		require.Nil(t, listing)

		count, err := repo.CountIndexedAssets(ctx)
		require.NoError(t, err)
		require.Zero(t, count)

		for i := uint64(1); i <= 5; i++ {
			position, err := repo.IndexAsset(ctx, i)
			require.NoError(t, err)
			require.Equal(t, i-1, position)

			listing := domain.Listing{AssetId: i, Position: position}
			listing.Relist(alice, i*100)
			require.NoError(t, repo.UpsertListing(ctx, listing))
		}

		// Indexing twice returns the same slot.
		position, err := repo.IndexAsset(ctx, 2)
		require.NoError(t, err)
		require.Equal(t, uint64(1), position)

		count, err = repo.CountIndexedAssets(ctx)
		require.NoError(t, err)
		require.Equal(t, uint64(5), count)

		count, err = repo.CountActiveListings(ctx)
		require.NoError(t, err)
		require.Equal(t, uint64(5), count)

		listing, err = repo.GetListing(ctx, 4)
		require.NoError(t, err)
		require.NotNil(t, listing)
		require.True(t, listing.Active)
		require.Equal(t, alice, listing.Seller)
		require.Equal(t, uint64(400), listing.Price)
		require.Equal(t, uint32(1), listing.Episode)

		listing.Deactivate()
		require.NoError(t, repo.UpsertListing(ctx, *listing))

		count, err = repo.CountActiveListings(ctx)
		require.NoError(t, err)
		require.Equal(t, uint64(4), count)

		count, err = repo.CountIndexedAssets(ctx)
		require.NoError(t, err)
		require.Equal(t, uint64(5), count)

		listings, err := repo.GetActiveListings(ctx, 0, 10)
		require.NoError(t, err)
		require.Equal(t, []uint64{1, 2, 3, 5}, listingIds(listings))

		listings, err = repo.GetActiveListings(ctx, 1, 2)
		require.NoError(t, err)
		require.Equal(t, []uint64{2, 3}, listingIds(listings))

		listings, err = repo.GetActiveListings(ctx, 4, 2)
		require.NoError(t, err)
		require.Empty(t, listings)

		listings, err = repo.GetActiveListings(ctx, 0, 0)
		require.NoError(t, err)
		require.Empty(t, listings)

		// Relisting keeps the original slot and opens a new episode.
		listing.Relist(bob, 450)
		require.NoError(t, repo.UpsertListing(ctx, *listing))

		listing, err = repo.GetListing(ctx, 4)
		require.NoError(t, err)
		require.True(t, listing.Active)
		require.Equal(t, bob, listing.Seller)
		require.Equal(t, uint32(2), listing.Episode)
		require.Equal(t, uint64(3), listing.Position)

		listings, err = repo.GetActiveListings(ctx, 0, 10)
		require.NoError(t, err)
		require.Equal(t, []uint64{1, 2, 3, 4, 5}, listingIds(listings))
	})
}

func testTreasuryRepository(t *testing.T, svc ports.RepoManager) {
	t.Run("test_treasury_repository", func(t *testing.T) {
		ctx := context.Background()
		repo := svc.Treasury()

		treasury, err := repo.Get(ctx)
		require.NoError(t, err)
		require.Nil(t, treasury)

		treasury, err = domain.NewTreasury(250)
		require.NoError(t, err)
		require.NoError(t, treasury.Accrue(25))
		require.NoError(t, repo.Upsert(ctx, *treasury))

		got, err := repo.Get(ctx)
		require.NoError(t, err)
		require.NotNil(t, got)
		require.Equal(t, uint32(250), got.FeeRateBps)
		require.Equal(t, uint64(25), got.AccruedBalance)
		require.Equal(t, uint64(25), got.TotalCollected)

		require.NoError(t, got.SetFeeRate(1000))
		require.Equal(t, uint64(25), got.Drain())
		require.NoError(t, repo.Upsert(ctx, *got))

		got, err = repo.Get(ctx)
		require.NoError(t, err)
		require.Equal(t, uint32(1000), got.FeeRateBps)
		require.Zero(t, got.AccruedBalance)
		require.Equal(t, uint64(25), got.TotalWithdrawn)
	})
}

func testEventRepository(t *testing.T, svc ports.RepoManager) {
	t.Run("test_event_repository", func(t *testing.T) {
		ctx := context.Background()
		repo := svc.Events()

		events, err := repo.List(ctx, 0, 10)
		require.NoError(t, err)
		require.Empty(t, events)

		recorded, err := repo.Add(ctx,
			domain.Minted{AssetId: 1, Owner: alice, MetadataURI: "ipfs://asset/1"},
			domain.Listed{AssetId: 1, Seller: alice, Price: 1000},
			domain.Sold{AssetId: 1, Seller: alice, Buyer: bob, Price: 1000, Fee: 25},
		)
		require.NoError(t, err)
		require.Len(t, recorded, 3)
		require.Equal(t, uint64(1), recorded[0].Seq)
		require.Equal(t, uint64(3), recorded[2].Seq)

		recorded, err = repo.Add(ctx, domain.FeesWithdrawn{Recipient: carol, Amount: 25})
		require.NoError(t, err)
		require.Len(t, recorded, 1)
		require.Equal(t, uint64(4), recorded[0].Seq)

		events, err = repo.List(ctx, 0, 10)
		require.NoError(t, err)
		require.Len(t, events, 4)
		require.Equal(t, domain.Listed{AssetId: 1, Seller: alice, Price: 1000}, events[1].Event)
		require.Equal(t, domain.FeesWithdrawn{Recipient: carol, Amount: 25}, events[3].Event)

		events, err = repo.List(ctx, 2, 1)
		require.NoError(t, err)
		require.Len(t, events, 1)
		require.Equal(t, uint64(3), events[0].Seq)
		require.Equal(t, domain.EventTypeSold, events[0].Event.GetType())

		events, err = repo.List(ctx, 4, 10)
		require.NoError(t, err)
		require.Empty(t, events)
	})
}

func testRunTx(t *testing.T, svc ports.RepoManager) {
	t.Run("test_run_tx", func(t *testing.T) {
		ctx := context.Background()

		lastId, err := svc.Assets().LastAssetId(ctx)
		require.NoError(t, err)

		failure := fmt.Errorf("boom")
		err = svc.RunTx(ctx, false, func(ctx context.Context) error {
			asset := domain.NewAsset(lastId+1, bob, "ipfs://rolled-back")
			if err := svc.Assets().AddAsset(ctx, asset); err != nil {
				return err
			}
			if _, err := svc.Events().Add(ctx, domain.Minted{AssetId: asset.Id, Owner: bob}); err != nil {
				return err
			}
			return failure
		})
		require.ErrorIs(t, err, failure)

		asset, err := svc.Assets().GetAsset(ctx, lastId+1)
		require.NoError(t, err)
		require.Nil(t, asset)

		events, err := svc.Events().List(ctx, 4, 10)
		require.NoError(t, err)
		require.Empty(t, events)

		err = svc.RunTx(ctx, false, func(ctx context.Context) error {
			asset := domain.NewAsset(lastId+1, bob, "ipfs://committed")
			if err := svc.Assets().AddAsset(ctx, asset); err != nil {
				return err
			}
			// Nested calls join the running transaction.
			return svc.RunTx(ctx, false, func(ctx context.Context) error {
				got, err := svc.Assets().GetAsset(ctx, asset.Id)
				if err != nil {
					return err
				}
				if got == nil {
					return fmt.Errorf("asset not visible in nested tx")
				}
				_, err = svc.Events().Add(ctx, domain.Minted{AssetId: asset.Id, Owner: bob})
				return err
			})
		})
		require.NoError(t, err)

		asset, err = svc.Assets().GetAsset(ctx, lastId+1)
		require.NoError(t, err)
		require.NotNil(t, asset)
		require.Equal(t, "ipfs://committed", asset.MetadataURI)

		lastId, err = svc.Assets().LastAssetId(ctx)
		require.NoError(t, err)
		require.Equal(t, asset.Id, lastId)

		events, err = svc.Events().List(ctx, 4, 10)
		require.NoError(t, err)
		require.Len(t, events, 1)
		// Postgres sequences don't roll back, seq is only guaranteed to grow.
		require.Greater(t, events[0].Seq, uint64(4))

		var seen uint64
		err = svc.RunTx(ctx, true, func(ctx context.Context) error {
			var err error
			seen, err = svc.Listings().CountActiveListings(ctx)
			return err
		})
		require.NoError(t, err)
		require.Equal(t, uint64(5), seen)
	})
}

func listingIds(listings []domain.Listing) []uint64 {
	ids := make([]uint64, 0, len(listings))
	for _, l := range listings {
		ids = append(ids, l.AssetId)
	}
	return ids
}

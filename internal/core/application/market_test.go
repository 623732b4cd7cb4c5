package application

import (
	"context"
	"testing"

	"github.com/nftmarket/marketd/internal/core/domain"
	"github.com/nftmarket/marketd/internal/core/ports"
	"github.com/nftmarket/marketd/internal/infrastructure/db"
	inmemorypayments "github.com/nftmarket/marketd/internal/infrastructure/payments/inmemory"
	"github.com/nftmarket/marketd/pkg/errors"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	operator      = "0x0pera70r"
	market        = "0xmarket"
	registryOwner = "0xreg1stry"
	alice         = "0xa11ce"
	bob           = "0xb0b"
	carol         = "0xca401"
	dave          = "0xdave"
	feeSink       = "0xfee5"

	defaultFeeRateBps = 250
	maxPageSize       = 100
)

type mockPaymentService struct {
	mock.Mock
}

func (m *mockPaymentService) Pay(ctx context.Context, recipient string, amount uint64) error {
	args := m.Called(ctx, recipient, amount)
	return args.Error(0)
}

func (m *mockPaymentService) Refund(ctx context.Context, recipient string, amount uint64) error {
	args := m.Called(ctx, recipient, amount)
	return args.Error(0)
}

func (m *mockPaymentService) Balance(ctx context.Context, addr string) (uint64, error) {
	args := m.Called(ctx, addr)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *mockPaymentService) Close() {}

func newRepoManager(t *testing.T) ports.RepoManager {
	t.Helper()
	repoManager, err := db.NewService(db.ServiceConfig{
		DataStoreType:   "badger",
		DataStoreConfig: []interface{}{"", nil},
	})
	require.NoError(t, err)
	return repoManager
}

func testConfig() Config {
	return Config{
		OperatorAddress:      operator,
		RegistryOwnerAddress: registryOwner,
		MarketAddress:        market,
		DefaultFeeRateBps:    defaultFeeRateBps,
		MaxPageSize:          maxPageSize,
	}
}

func newTestService(
	t *testing.T, payments ports.PaymentService, publisher ports.EventPublisher,
) Service {
	t.Helper()
	svc, err := NewService(newRepoManager(t), payments, publisher, nil, nil, testConfig())
	require.NoError(t, err)
	t.Cleanup(svc.Stop)
	return svc
}

func newMarket(t *testing.T) (Service, *inmemorypayments.Ledger) {
	t.Helper()
	payments := inmemorypayments.NewPaymentService()
	return newTestService(t, payments, nil), payments
}

func requireCode(t *testing.T, code interface{ Is(error) bool }, err errors.Error) {
	t.Helper()
	require.Error(t, err)
	require.True(t, code.Is(err), "unexpected error: %v", err)
}

func mintAndList(t *testing.T, svc Service, seller string, price uint64) uint64 {
	t.Helper()
	assetId, err := svc.MintAndList(context.Background(), seller, "ipfs://listed", price)
	require.NoError(t, err)
	return assetId
}

func eventTypes(events []domain.RecordedEvent) []domain.EventType {
	types := make([]domain.EventType, 0, len(events))
	for _, e := range events {
		types = append(types, e.Event.GetType())
	}
	return types
}

func TestNewService(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		repoManager := newRepoManager(t)
		payments := inmemorypayments.NewPaymentService()

		svc, err := NewService(repoManager, payments, nil, nil, nil, testConfig())
		require.NoError(t, err)

		info, err := svc.GetFeeInfo(context.Background())
		require.NoError(t, err)
		require.Equal(t, uint32(defaultFeeRateBps), info.FeeRateBps)

		// The persisted rate wins over the configured default on restart.
		require.NoError(t, svc.SetFeeRate(context.Background(), operator, 500))
		cfg := testConfig()
		cfg.DefaultFeeRateBps = 100
		restarted, err := NewService(repoManager, payments, nil, nil, nil, cfg)
		require.NoError(t, err)

		info, err = restarted.GetFeeInfo(context.Background())
		require.NoError(t, err)
		require.Equal(t, uint32(500), info.FeeRateBps)

		restarted.Stop()
	})

	t.Run("invalid", func(t *testing.T) {
		fixtures := []struct {
			name   string
			mutate func(cfg *Config)
		}{
			{"missing market address", func(cfg *Config) { cfg.MarketAddress = "" }},
			{"zero operator address", func(cfg *Config) { cfg.OperatorAddress = "0x0000" }},
			{"fee rate above cap", func(cfg *Config) { cfg.DefaultFeeRateBps = 1001 }},
			{"zero page size", func(cfg *Config) { cfg.MaxPageSize = 0 }},
		}
		for _, f := range fixtures {
			t.Run(f.name, func(t *testing.T) {
				cfg := testConfig()
				f.mutate(&cfg)
				repoManager := newRepoManager(t)
				t.Cleanup(repoManager.Close)

				svc, err := NewService(
					repoManager, inmemorypayments.NewPaymentService(), nil, nil, nil, cfg,
				)
				require.Error(t, err)
				require.Nil(t, svc)
			})
		}
	})
}

func TestMarketStats(t *testing.T) {
	ctx := context.Background()
	svc, _ := newMarket(t)

	first := mintAndList(t, svc, alice, 1000)
	mintAndList(t, svc, alice, 2000)
	_, err := svc.Mint(ctx, bob, "ipfs://unlisted")
	require.NoError(t, err)
	_, err = svc.BuyNFT(ctx, bob, first, 1000)
	require.NoError(t, err)

	stats, err := svc.GetMarketStats(ctx)
	require.NoError(t, err)
	require.Equal(t, &MarketStats{
		ActiveListings:  1,
		TotalEverListed: 2,
		LastAssetId:     3,
		AccruedFees:     25,
		FeeRateBps:      defaultFeeRateBps,
	}, stats)
}

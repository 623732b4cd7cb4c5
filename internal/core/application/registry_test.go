package application

import (
	"context"
	"testing"

	"github.com/nftmarket/marketd/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestMint(t *testing.T) {
	ctx := context.Background()
	svc, _ := newMarket(t)

	first, err := svc.Mint(ctx, alice, "ipfs://first")
	require.NoError(t, err)
	require.Equal(t, uint64(1), first)

	second, err := svc.Mint(ctx, bob, "ipfs://second")
	require.NoError(t, err)
	require.Equal(t, uint64(2), second)

	owner, err := svc.OwnerOf(ctx, second)
	require.NoError(t, err)
	require.Equal(t, bob, owner)

	uri, err := svc.TokenURI(ctx, first)
	require.NoError(t, err)
	require.Equal(t, "ipfs://first", uri)

	_, err = svc.OwnerOf(ctx, 99)
	requireCode(t, errors.ASSET_NOT_FOUND, err)
	_, err = svc.TokenURI(ctx, 0)
	requireCode(t, errors.ASSET_NOT_FOUND, err)

	_, err = svc.Mint(ctx, "0x0", "ipfs://nobody")
	requireCode(t, errors.INVALID_ADDRESS, err)

	t.Run("mint to", func(t *testing.T) {
		_, err := svc.MintTo(ctx, alice, bob, "ipfs://gift")
		requireCode(t, errors.UNAUTHORIZED, err)

		_, err = svc.MintTo(ctx, registryOwner, "", "ipfs://gift")
		requireCode(t, errors.INVALID_ADDRESS, err)

		assetId, err := svc.MintTo(ctx, registryOwner, carol, "ipfs://gift")
		require.NoError(t, err)
		require.Equal(t, uint64(3), assetId)

		assetId, err = svc.MintTo(ctx, market, dave, "ipfs://airdrop")
		require.NoError(t, err)
		require.Equal(t, uint64(4), assetId)

		owner, err := svc.OwnerOf(ctx, assetId)
		require.NoError(t, err)
		require.Equal(t, dave, owner)
	})
}

func TestTransfer(t *testing.T) {
	ctx := context.Background()
	svc, _ := newMarket(t)

	assetId, err := svc.Mint(ctx, alice, "ipfs://asset")
	require.NoError(t, err)

	err = svc.Approve(ctx, bob, assetId, carol)
	requireCode(t, errors.NOT_OWNER, err)

	require.NoError(t, svc.Approve(ctx, alice, assetId, bob))
	approved, err := svc.IsApprovedForTransfer(ctx, assetId, alice, bob)
	require.NoError(t, err)
	require.True(t, approved)

	// The approved spender moves the asset, the approval doesn't survive the transfer.
	require.NoError(t, svc.Transfer(ctx, bob, alice, carol, assetId))
	owner, err := svc.OwnerOf(ctx, assetId)
	require.NoError(t, err)
	require.Equal(t, carol, owner)

	approved, err = svc.IsApprovedForTransfer(ctx, assetId, carol, bob)
	require.NoError(t, err)
	require.False(t, approved)

	fixtures := []struct {
		name     string
		caller   string
		from     string
		to       string
		assetId  uint64
		expected interface{ Is(error) bool }
	}{
		{"unknown asset", carol, carol, bob, 42, errors.ASSET_NOT_FOUND},
		{"from is not the owner", carol, alice, bob, assetId, errors.NOT_OWNER},
		{"caller not authorized", bob, carol, alice, assetId, errors.NOT_AUTHORIZED},
		{"zero recipient", carol, carol, "0x000", assetId, errors.INVALID_ADDRESS},
	}
	for _, f := range fixtures {
		t.Run(f.name, func(t *testing.T) {
			err := svc.Transfer(ctx, f.caller, f.from, f.to, f.assetId)
			requireCode(t, f.expected, err)

			owner, err := svc.OwnerOf(ctx, assetId)
			require.NoError(t, err)
			require.Equal(t, carol, owner)
		})
	}

	t.Run("operator", func(t *testing.T) {
		err := svc.SetApprovalForAll(ctx, carol, carol, true)
		requireCode(t, errors.INVALID_ADDRESS, err)
		err = svc.SetApprovalForAll(ctx, carol, "", true)
		requireCode(t, errors.INVALID_ADDRESS, err)

		require.NoError(t, svc.SetApprovalForAll(ctx, carol, bob, true))
		approved, err := svc.IsApprovedForTransfer(ctx, assetId, carol, bob)
		require.NoError(t, err)
		require.True(t, approved)

		require.NoError(t, svc.Transfer(ctx, bob, carol, alice, assetId))
		owner, err := svc.OwnerOf(ctx, assetId)
		require.NoError(t, err)
		require.Equal(t, alice, owner)

		// The grant is tied to carol, it doesn't follow the asset.
		approved, err = svc.IsApprovedForTransfer(ctx, assetId, alice, bob)
		require.NoError(t, err)
		require.False(t, approved)

		require.NoError(t, svc.SetApprovalForAll(ctx, carol, bob, false))
		approved, err = svc.IsApprovedForTransfer(ctx, assetId, carol, bob)
		require.NoError(t, err)
		require.False(t, approved)
	})

	t.Run("clear approval", func(t *testing.T) {
		require.NoError(t, svc.Approve(ctx, alice, assetId, dave))
		require.NoError(t, svc.Approve(ctx, alice, assetId, "0x0"))

		approved, err := svc.IsApprovedForTransfer(ctx, assetId, alice, dave)
		require.NoError(t, err)
		require.False(t, approved)

		err = svc.Transfer(ctx, dave, alice, dave, assetId)
		requireCode(t, errors.NOT_AUTHORIZED, err)
	})

	_, err = svc.IsApprovedForTransfer(ctx, 42, alice, bob)
	requireCode(t, errors.ASSET_NOT_FOUND, err)
}

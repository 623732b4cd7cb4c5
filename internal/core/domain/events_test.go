package domain_test

import (
	"testing"

	"github.com/nftmarket/marketd/internal/core/domain"
	"github.com/stretchr/testify/require"
)

func TestSerializeEvent(t *testing.T) {
	events := []domain.Event{
		domain.Minted{AssetId: 1, Owner: "0xa11ce", MetadataURI: "ipfs://meta/1"},
		domain.Transferred{AssetId: 1, From: "0xa11ce", To: "0xb0b"},
		domain.Approval{AssetId: 1, Owner: "0xb0b", Approved: "0xma2ket"},
		domain.ApprovalForAll{Owner: "0xb0b", Operator: "0xma2ket", Approved: true},
		domain.Listed{AssetId: 1, Seller: "0xb0b", Price: 1000},
		domain.PriceUpdated{AssetId: 1, Seller: "0xb0b", OldPrice: 1000, NewPrice: 900},
		domain.Delisted{AssetId: 1, Seller: "0xb0b"},
		domain.Sold{AssetId: 1, Seller: "0xb0b", Buyer: "0xc4r01", Price: 900, Fee: 22},
		domain.FeeRateChanged{OldRateBps: 250, NewRateBps: 300},
		domain.FeesWithdrawn{Recipient: "0x0pe2at02", Amount: 22},
	}

	for _, event := range events {
		t.Run(string(event.GetType()), func(t *testing.T) {
			buf, err := domain.SerializeEvent(event)
			require.NoError(t, err)
			require.Contains(t, string(buf), string(event.GetType()))

			decoded, err := domain.DeserializeEvent(buf)
			require.NoError(t, err)
			require.Equal(t, event, decoded)
		})
	}

	t.Run("unknown type", func(t *testing.T) {
		_, err := domain.DeserializeEvent([]byte(`{"type":"burned","data":{}}`))
		require.Error(t, err)
	})
}

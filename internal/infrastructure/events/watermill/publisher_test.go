package watermillpublisher_test

import (
	"context"
	"testing"
	"time"

	"github.com/nftmarket/marketd/internal/core/domain"
	watermillpublisher "github.com/nftmarket/marketd/internal/infrastructure/events/watermill"
	"github.com/stretchr/testify/require"
)

func TestPublisher(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	publisher := watermillpublisher.NewEventPublisher()
	defer publisher.Close()

	first, err := publisher.Subscribe(ctx)
	require.NoError(t, err)
	second, err := publisher.Subscribe(ctx)
	require.NoError(t, err)

	events := []domain.RecordedEvent{
		{Seq: 1, CreatedAt: 1750000000, Event: domain.Listed{AssetId: 1, Seller: "0xa11ce", Price: 1000}},
		{Seq: 2, CreatedAt: 1750000001, Event: domain.Sold{
			AssetId: 1, Seller: "0xa11ce", Buyer: "0xb0b", Price: 1000, Fee: 25,
		}},
	}
	require.NoError(t, publisher.Publish(ctx, events))

	for _, ch := range []<-chan domain.RecordedEvent{first, second} {
		for _, expected := range events {
			select {
			case got := <-ch:
				require.Equal(t, expected, got)
			case <-time.After(2 * time.Second):
				t.Fatalf("timed out waiting for event %d", expected.Seq)
			}
		}
	}
}

func TestSubscriptionClosedWithContext(t *testing.T) {
	publisher := watermillpublisher.NewEventPublisher()
	defer publisher.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := publisher.Subscribe(ctx)
	require.NoError(t, err)

	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPublishAfterClose(t *testing.T) {
	publisher := watermillpublisher.NewEventPublisher()
	publisher.Close()

	err := publisher.Publish(context.Background(), []domain.RecordedEvent{
		{Seq: 1, Event: domain.Delisted{AssetId: 1, Seller: "0xa11ce"}},
	})
	require.Error(t, err)
}

package ports

import (
	"context"

	"github.com/nftmarket/marketd/internal/core/domain"
)

// EventPublisher fans out committed events to live subscribers.
type EventPublisher interface {
	Publish(ctx context.Context, events []domain.RecordedEvent) error
	// Subscribe returns a channel of events that's closed when ctx is done or the publisher is
	// closed.
	Subscribe(ctx context.Context) (<-chan domain.RecordedEvent, error)
	Close()
}

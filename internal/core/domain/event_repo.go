package domain

import "context"

type EventRepository interface {
	// Add appends the events to the log in order and returns them with their sequence numbers.
	Add(ctx context.Context, events ...Event) ([]RecordedEvent, error)
	// List returns up to limit events with sequence number greater than afterSeq.
	List(ctx context.Context, afterSeq, limit uint64) ([]RecordedEvent, error)
	Close()
}

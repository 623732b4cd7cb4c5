package badgerdb

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/nftmarket/marketd/internal/core/domain"
	"github.com/timshannon/badgerhold/v4"
)

const eventLogStateKey = "event_log"

type eventRepository struct {
	store *badgerhold.Store
}

type eventDTO struct {
	Seq       uint64 `badgerhold:"index"`
	Payload   []byte
	CreatedAt int64
}

type eventLogState struct {
	LastSeq uint64
}

func NewEventRepository(config ...interface{}) (domain.EventRepository, error) {
	store, err := storeFromConfig(config...)
	if err != nil {
		return nil, err
	}
	return &eventRepository{store}, nil
}

func (r *eventRepository) Add(
	ctx context.Context, events ...domain.Event,
) ([]domain.RecordedEvent, error) {
	recorded := make([]domain.RecordedEvent, 0, len(events))
	now := time.Now().Unix()

	if err := withTx(ctx, r.store, true, func(tx *badger.Txn) error {
		var state eventLogState
		err := r.store.TxGet(tx, eventLogStateKey, &state)
		if err != nil && !errors.Is(err, badgerhold.ErrNotFound) {
			return err
		}

		recorded = recorded[:0]
		for _, event := range events {
			payload, err := domain.SerializeEvent(event)
			if err != nil {
				return err
			}
			state.LastSeq++
			dto := eventDTO{Seq: state.LastSeq, Payload: payload, CreatedAt: now}
			if err := r.store.TxInsert(tx, dto.Seq, dto); err != nil {
				return err
			}
			recorded = append(recorded, domain.RecordedEvent{
				Seq: dto.Seq, CreatedAt: now, Event: event,
			})
		}
		return r.store.TxUpsert(tx, eventLogStateKey, &state)
	}); err != nil {
		return nil, fmt.Errorf("failed to add events: %w", err)
	}
	return recorded, nil
}

func (r *eventRepository) List(
	ctx context.Context, afterSeq, limit uint64,
) ([]domain.RecordedEvent, error) {
	if limit == 0 {
		return nil, nil
	}
	if limit > math.MaxInt32 {
		limit = math.MaxInt32
	}

	query := badgerhold.Where("Seq").Gt(afterSeq).Index("Seq").SortBy("Seq").Limit(int(limit))

	var dtos []eventDTO
	if err := withTx(ctx, r.store, false, func(tx *badger.Txn) error {
		return r.store.TxFind(tx, &dtos, query)
	}); err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}

	events := make([]domain.RecordedEvent, 0, len(dtos))
	for _, dto := range dtos {
		event, err := domain.DeserializeEvent(dto.Payload)
		if err != nil {
			return nil, fmt.Errorf("failed to decode event %d: %w", dto.Seq, err)
		}
		events = append(events, domain.RecordedEvent{
			Seq: dto.Seq, CreatedAt: dto.CreatedAt, Event: event,
		})
	}
	return events, nil
}

func (r *eventRepository) Close() {}

package pgdb

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/nftmarket/marketd/internal/core/domain"
)

const (
	insertEvent = `
INSERT INTO market_event (type, payload, created_at) VALUES ($1, $2, $3) RETURNING seq`
	selectEvents = `
SELECT seq, payload, created_at FROM market_event WHERE seq > $1 ORDER BY seq LIMIT $2`
)

type eventRepository struct {
	db *sql.DB
}

func NewEventRepository(config ...interface{}) (domain.EventRepository, error) {
	db, err := dbFromConfig(config...)
	if err != nil {
		return nil, fmt.Errorf("cannot open event repository: %w", err)
	}
	return &eventRepository{db}, nil
}

func (r *eventRepository) Add(
	ctx context.Context, events ...domain.Event,
) ([]domain.RecordedEvent, error) {
	q := conn(ctx, r.db)
	now := time.Now().Unix()

	recorded := make([]domain.RecordedEvent, 0, len(events))
	for _, event := range events {
		payload, err := domain.SerializeEvent(event)
		if err != nil {
			return nil, fmt.Errorf("failed to serialize event: %w", err)
		}

		var seq uint64
		if err := q.QueryRowContext(
			ctx, insertEvent, string(event.GetType()), string(payload), now,
		).Scan(&seq); err != nil {
			return nil, fmt.Errorf("failed to insert event: %w", err)
		}
		recorded = append(recorded, domain.RecordedEvent{Seq: seq, CreatedAt: now, Event: event})
	}
	return recorded, nil
}

func (r *eventRepository) List(
	ctx context.Context, afterSeq, limit uint64,
) ([]domain.RecordedEvent, error) {
	if limit == 0 || afterSeq > math.MaxInt64 {
		return nil, nil
	}
	if limit > math.MaxInt64 {
		limit = math.MaxInt64
	}

	rows, err := conn(ctx, r.db).QueryContext(ctx, selectEvents, int64(afterSeq), int64(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	// nolint
	defer rows.Close()

	events := make([]domain.RecordedEvent, 0)
	for rows.Next() {
		var (
			seq       uint64
			payload   string
			createdAt int64
		)
		if err := rows.Scan(&seq, &payload, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		event, err := domain.DeserializeEvent([]byte(payload))
		if err != nil {
			return nil, fmt.Errorf("failed to decode event %d: %w", seq, err)
		}
		events = append(events, domain.RecordedEvent{Seq: seq, CreatedAt: createdAt, Event: event})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}
	return events, nil
}

func (r *eventRepository) Close() {
	_ = r.db.Close()
}

package sqlitedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/nftmarket/marketd/internal/core/domain"
)

const (
	selectTreasury = `
SELECT fee_rate_bps, accrued_balance, total_collected, total_withdrawn, updated_at
FROM treasury WHERE id = 1`
	upsertTreasury = `
INSERT INTO treasury (
    id, fee_rate_bps, accrued_balance, total_collected, total_withdrawn, updated_at
) VALUES (1, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    fee_rate_bps = excluded.fee_rate_bps,
    accrued_balance = excluded.accrued_balance,
    total_collected = excluded.total_collected,
    total_withdrawn = excluded.total_withdrawn,
    updated_at = excluded.updated_at`
)

type treasuryRepository struct {
	db *sql.DB
}

func NewTreasuryRepository(config ...interface{}) (domain.TreasuryRepository, error) {
	db, err := dbFromConfig(config...)
	if err != nil {
		return nil, fmt.Errorf("cannot open treasury repository: %w", err)
	}
	return &treasuryRepository{db}, nil
}

func (r *treasuryRepository) Get(ctx context.Context) (*domain.Treasury, error) {
	var treasury domain.Treasury
	err := conn(ctx, r.db).QueryRowContext(ctx, selectTreasury).Scan(
		&treasury.FeeRateBps, &treasury.AccruedBalance, &treasury.TotalCollected,
		&treasury.TotalWithdrawn, &treasury.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get treasury: %w", err)
	}
	return &treasury, nil
}

func (r *treasuryRepository) Upsert(ctx context.Context, treasury domain.Treasury) error {
	if _, err := conn(ctx, r.db).ExecContext(
		ctx, upsertTreasury,
		int64(treasury.FeeRateBps), int64(treasury.AccruedBalance),
		int64(treasury.TotalCollected), int64(treasury.TotalWithdrawn), treasury.UpdatedAt,
	); err != nil {
		return fmt.Errorf("failed to upsert treasury: %w", err)
	}
	return nil
}

func (r *treasuryRepository) Close() {
	_ = r.db.Close()
}

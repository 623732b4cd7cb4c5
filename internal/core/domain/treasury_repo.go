package domain

import "context"

type TreasuryRepository interface {
	// Get returns nil if the treasury was never initialized.
	Get(ctx context.Context) (*Treasury, error)
	Upsert(ctx context.Context, treasury Treasury) error
	Close()
}

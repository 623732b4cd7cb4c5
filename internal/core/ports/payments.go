package ports

import (
	"context"
	"errors"
)

// ErrRecipientRejected is returned by PaymentService.Pay when the recipient can't accept funds.
var ErrRecipientRejected = errors.New("recipient rejected funds")

// PaymentService moves amounts of the payment unit out of the marketplace escrow.
type PaymentService interface {
	Pay(ctx context.Context, recipient string, amount uint64) error
	// Refund takes back a payment made by an operation that was then rolled back.
	Refund(ctx context.Context, recipient string, amount uint64) error
	Balance(ctx context.Context, addr string) (uint64, error)
	Close()
}

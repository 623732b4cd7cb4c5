package ports

import "context"

const (
	PayoutFailed  Topic = "Payout Failed"
	FeesWithdrawn Topic = "Fees Withdrawn"
)

type Topic string

type Alerts interface {
	Publish(ctx context.Context, topic Topic, message interface{}) error
}

type PayoutFailedAlert struct {
	AssetId   uint64
	Recipient string
	Amount    uint64
	Reason    string
}

type FeesWithdrawnAlert struct {
	Recipient      string
	Amount         uint64
	TotalCollected uint64
	TotalWithdrawn uint64
}

package domain

import (
	"encoding/json"
	"fmt"
)

type EventType string

const (
	EventTypeMinted         EventType = "minted"
	EventTypeTransferred    EventType = "transferred"
	EventTypeApproval       EventType = "approval"
	EventTypeApprovalForAll EventType = "approval_for_all"
	EventTypeListed         EventType = "listed"
	EventTypeSold           EventType = "sold"
	EventTypeDelisted       EventType = "delisted"
	EventTypePriceUpdated   EventType = "price_updated"
	EventTypeFeeRateChanged EventType = "fee_rate_changed"
	EventTypeFeesWithdrawn  EventType = "fees_withdrawn"
)

type Event interface {
	GetType() EventType
}

type Minted struct {
	AssetId     uint64 `json:"asset_id"`
	Owner       string `json:"owner"`
	MetadataURI string `json:"metadata_uri"`
}

type Transferred struct {
	AssetId uint64 `json:"asset_id"`
	From    string `json:"from"`
	To      string `json:"to"`
}

type Approval struct {
	AssetId  uint64 `json:"asset_id"`
	Owner    string `json:"owner"`
	Approved string `json:"approved"`
}

type ApprovalForAll struct {
	Owner    string `json:"owner"`
	Operator string `json:"operator"`
	Approved bool   `json:"approved"`
}

type Listed struct {
	AssetId uint64 `json:"asset_id"`
	Seller  string `json:"seller"`
	Price   uint64 `json:"price"`
}

type Sold struct {
	AssetId uint64 `json:"asset_id"`
	Seller  string `json:"seller"`
	Buyer   string `json:"buyer"`
	Price   uint64 `json:"price"`
	Fee     uint64 `json:"fee"`
}

type Delisted struct {
	AssetId uint64 `json:"asset_id"`
	Seller  string `json:"seller"`
}

type PriceUpdated struct {
	AssetId  uint64 `json:"asset_id"`
	Seller   string `json:"seller"`
	OldPrice uint64 `json:"old_price"`
	NewPrice uint64 `json:"new_price"`
}

type FeeRateChanged struct {
	OldRateBps uint32 `json:"old_rate_bps"`
	NewRateBps uint32 `json:"new_rate_bps"`
}

type FeesWithdrawn struct {
	Recipient string `json:"recipient"`
	Amount    uint64 `json:"amount"`
}

func (Minted) GetType() EventType         { return EventTypeMinted }
func (Transferred) GetType() EventType    { return EventTypeTransferred }
func (Approval) GetType() EventType       { return EventTypeApproval }
func (ApprovalForAll) GetType() EventType { return EventTypeApprovalForAll }
func (Listed) GetType() EventType         { return EventTypeListed }
func (Sold) GetType() EventType           { return EventTypeSold }
func (Delisted) GetType() EventType       { return EventTypeDelisted }
func (PriceUpdated) GetType() EventType   { return EventTypePriceUpdated }
func (FeeRateChanged) GetType() EventType { return EventTypeFeeRateChanged }
func (FeesWithdrawn) GetType() EventType  { return EventTypeFeesWithdrawn }

// RecordedEvent is an event once appended to the log.
type RecordedEvent struct {
	Seq       uint64
	CreatedAt int64
	Event     Event
}

type eventEnvelope struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data"`
}

func SerializeEvent(event Event) ([]byte, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	return json.Marshal(eventEnvelope{Type: event.GetType(), Data: data})
}

func DeserializeEvent(buf []byte) (Event, error) {
	var envelope eventEnvelope
	if err := json.Unmarshal(buf, &envelope); err != nil {
		return nil, err
	}

	var event Event
	var err error
	switch envelope.Type {
	case EventTypeMinted:
		event, err = decodeEvent[Minted](envelope.Data)
	case EventTypeTransferred:
		event, err = decodeEvent[Transferred](envelope.Data)
	case EventTypeApproval:
		event, err = decodeEvent[Approval](envelope.Data)
	case EventTypeApprovalForAll:
		event, err = decodeEvent[ApprovalForAll](envelope.Data)
	case EventTypeListed:
		event, err = decodeEvent[Listed](envelope.Data)
	case EventTypeSold:
		event, err = decodeEvent[Sold](envelope.Data)
	case EventTypeDelisted:
		event, err = decodeEvent[Delisted](envelope.Data)
	case EventTypePriceUpdated:
		event, err = decodeEvent[PriceUpdated](envelope.Data)
	case EventTypeFeeRateChanged:
		event, err = decodeEvent[FeeRateChanged](envelope.Data)
	case EventTypeFeesWithdrawn:
		event, err = decodeEvent[FeesWithdrawn](envelope.Data)
	default:
		return nil, fmt.Errorf("unknown event type %q", envelope.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s event: %w", envelope.Type, err)
	}
	return event, nil
}

func decodeEvent[T Event](data []byte) (Event, error) {
	var event T
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, err
	}
	return event, nil
}

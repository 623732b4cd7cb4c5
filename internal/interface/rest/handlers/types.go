package handlers

import (
	"encoding/json"

	"github.com/nftmarket/marketd/internal/core/application"
	"github.com/nftmarket/marketd/internal/core/domain"
)

type mintRequest struct {
	Recipient   string `json:"recipient"`
	MetadataURI string `json:"metadataUri"`
}

type mintAndListRequest struct {
	MetadataURI string `json:"metadataUri"`
	Price       uint64 `json:"price"`
}

type transferRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type approveRequest struct {
	Spender string `json:"spender"`
}

type setApprovalForAllRequest struct {
	Operator string `json:"operator"`
	Approved bool   `json:"approved"`
}

type priceRequest struct {
	Price uint64 `json:"price"`
}

type buyRequest struct {
	Payment uint64 `json:"payment"`
}

type setFeeRateRequest struct {
	FeeRateBps uint32 `json:"feeRateBps"`
}

type withdrawRequest struct {
	Recipient string `json:"recipient"`
}

type assetIdResponse struct {
	AssetId uint64 `json:"assetId"`
}

type ownerResponse struct {
	Owner string `json:"owner"`
}

type tokenURIResponse struct {
	TokenURI string `json:"tokenUri"`
}

type approvedResponse struct {
	Approved bool `json:"approved"`
}

type listing struct {
	AssetId uint64 `json:"assetId"`
	Seller  string `json:"seller"`
	Price   uint64 `json:"price"`
	Active  bool   `json:"active"`
}

type listingsResponse struct {
	Listings []listing `json:"listings"`
}

type countsResponse struct {
	Active          uint64 `json:"active"`
	TotalEverListed uint64 `json:"totalEverListed"`
}

type saleResponse struct {
	AssetId  uint64 `json:"assetId"`
	Seller   string `json:"seller"`
	Buyer    string `json:"buyer"`
	Price    uint64 `json:"price"`
	Fee      uint64 `json:"fee"`
	Proceeds uint64 `json:"proceeds"`
}

type feeInfoResponse struct {
	FeeRateBps     uint32 `json:"feeRateBps"`
	AccruedBalance uint64 `json:"accruedBalance"`
	TotalCollected uint64 `json:"totalCollected"`
	TotalWithdrawn uint64 `json:"totalWithdrawn"`
}

type withdrawResponse struct {
	Amount uint64 `json:"amount"`
}

type event struct {
	Seq       uint64          `json:"seq"`
	CreatedAt int64           `json:"createdAt"`
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
}

type eventsResponse struct {
	Events []event `json:"events"`
}

type statsResponse struct {
	ActiveListings  uint64 `json:"activeListings"`
	TotalEverListed uint64 `json:"totalEverListed"`
	LastAssetId     uint64 `json:"lastAssetId"`
	AccruedFees     uint64 `json:"accruedFees"`
	FeeRateBps      uint32 `json:"feeRateBps"`
}

type listings []application.ListingInfo

func (l listings) toResponse() listingsResponse {
	list := make([]listing, 0, len(l))
	for _, info := range l {
		list = append(list, toListing(info))
	}
	return listingsResponse{list}
}

func toListing(info application.ListingInfo) listing {
	return listing{
		AssetId: info.AssetId,
		Seller:  info.Seller,
		Price:   info.Price,
		Active:  info.Active,
	}
}

func toEvent(recorded domain.RecordedEvent) (event, error) {
	data, err := json.Marshal(recorded.Event)
	if err != nil {
		return event{}, err
	}
	return event{
		Seq:       recorded.Seq,
		CreatedAt: recorded.CreatedAt,
		Type:      string(recorded.Event.GetType()),
		Data:      data,
	}, nil
}

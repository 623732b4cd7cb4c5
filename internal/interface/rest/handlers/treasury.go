package handlers

import (
	"net/http"

	"github.com/nftmarket/marketd/internal/interface/rest/interceptors"
)

func (h *Handler) setFeeRate(w http.ResponseWriter, r *http.Request) error {
	caller, err := interceptors.CallerFromContext(r.Context())
	if err != nil {
		return err
	}
	var req setFeeRateRequest
	if err := decodeBody(r, &req); err != nil {
		return err
	}

	if err := h.svc.SetFeeRate(r.Context(), caller, req.FeeRateBps); err != nil {
		return err
	}
	return empty(w)
}

func (h *Handler) withdrawFees(w http.ResponseWriter, r *http.Request) error {
	caller, err := interceptors.CallerFromContext(r.Context())
	if err != nil {
		return err
	}
	var req withdrawRequest
	if err := decodeBody(r, &req); err != nil {
		return err
	}

	amount, err := h.svc.WithdrawFees(r.Context(), caller, req.Recipient)
	if err != nil {
		return err
	}
	return ok(w, withdrawResponse{amount})
}

func (h *Handler) getFeeInfo(w http.ResponseWriter, r *http.Request) error {
	info, err := h.svc.GetFeeInfo(r.Context())
	if err != nil {
		return err
	}
	return ok(w, feeInfoResponse{
		FeeRateBps:     info.FeeRateBps,
		AccruedBalance: info.AccruedBalance,
		TotalCollected: info.TotalCollected,
		TotalWithdrawn: info.TotalWithdrawn,
	})
}

func (h *Handler) getMarketStats(w http.ResponseWriter, r *http.Request) error {
	stats, err := h.svc.GetMarketStats(r.Context())
	if err != nil {
		return err
	}
	return ok(w, statsResponse{
		ActiveListings:  stats.ActiveListings,
		TotalEverListed: stats.TotalEverListed,
		LastAssetId:     stats.LastAssetId,
		AccruedFees:     stats.AccruedFees,
		FeeRateBps:      stats.FeeRateBps,
	})
}

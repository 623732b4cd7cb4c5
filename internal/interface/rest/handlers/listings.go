package handlers

import (
	"net/http"

	"github.com/nftmarket/marketd/internal/interface/rest/interceptors"
)

const defaultPageSize = 20

func (h *Handler) mintAndList(w http.ResponseWriter, r *http.Request) error {
	caller, err := interceptors.CallerFromContext(r.Context())
	if err != nil {
		return err
	}
	var req mintAndListRequest
	if err := decodeBody(r, &req); err != nil {
		return err
	}

	assetId, err := h.svc.MintAndList(r.Context(), caller, req.MetadataURI, req.Price)
	if err != nil {
		return err
	}
	return ok(w, assetIdResponse{assetId})
}

func (h *Handler) listNFT(w http.ResponseWriter, r *http.Request) error {
	caller, err := interceptors.CallerFromContext(r.Context())
	if err != nil {
		return err
	}
	assetId, err := parseAssetId(r)
	if err != nil {
		return err
	}
	var req priceRequest
	if err := decodeBody(r, &req); err != nil {
		return err
	}

	if err := h.svc.ListNFT(r.Context(), caller, assetId, req.Price); err != nil {
		return err
	}
	return empty(w)
}

func (h *Handler) updateListingPrice(w http.ResponseWriter, r *http.Request) error {
	caller, err := interceptors.CallerFromContext(r.Context())
	if err != nil {
		return err
	}
	assetId, err := parseAssetId(r)
	if err != nil {
		return err
	}
	var req priceRequest
	if err := decodeBody(r, &req); err != nil {
		return err
	}

	if err := h.svc.UpdateListingPrice(r.Context(), caller, assetId, req.Price); err != nil {
		return err
	}
	return empty(w)
}

func (h *Handler) delistNFT(w http.ResponseWriter, r *http.Request) error {
	caller, err := interceptors.CallerFromContext(r.Context())
	if err != nil {
		return err
	}
	assetId, err := parseAssetId(r)
	if err != nil {
		return err
	}

	if err := h.svc.DelistNFT(r.Context(), caller, assetId); err != nil {
		return err
	}
	return empty(w)
}

func (h *Handler) buyNFT(w http.ResponseWriter, r *http.Request) error {
	caller, err := interceptors.CallerFromContext(r.Context())
	if err != nil {
		return err
	}
	assetId, err := parseAssetId(r)
	if err != nil {
		return err
	}
	var req buyRequest
	if err := decodeBody(r, &req); err != nil {
		return err
	}

	sale, err := h.svc.BuyNFT(r.Context(), caller, assetId, req.Payment)
	if err != nil {
		return err
	}
	return ok(w, saleResponse{
		AssetId:  sale.AssetId,
		Seller:   sale.Seller,
		Buyer:    sale.Buyer,
		Price:    sale.Price,
		Fee:      sale.Fee,
		Proceeds: sale.Proceeds,
	})
}

func (h *Handler) getListing(w http.ResponseWriter, r *http.Request) error {
	assetId, err := parseAssetId(r)
	if err != nil {
		return err
	}
	info, err := h.svc.GetListing(r.Context(), assetId)
	if err != nil {
		return err
	}
	return ok(w, toListing(*info))
}

func (h *Handler) getActiveListings(w http.ResponseWriter, r *http.Request) error {
	offset, err := parseUintQuery(r, "offset", 0)
	if err != nil {
		return err
	}
	limit, err := parseUintQuery(r, "limit", defaultPageSize)
	if err != nil {
		return err
	}

	page, err := h.svc.GetActiveListings(r.Context(), offset, limit)
	if err != nil {
		return err
	}
	return ok(w, listings(page).toResponse())
}

func (h *Handler) getCounts(w http.ResponseWriter, r *http.Request) error {
	active, err := h.svc.GetActiveCount(r.Context())
	if err != nil {
		return err
	}
	total, err := h.svc.GetTotalEverListedCount(r.Context())
	if err != nil {
		return err
	}
	return ok(w, countsResponse{active, total})
}

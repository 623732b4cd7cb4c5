package handlers

import (
	"net/http"

	"github.com/nftmarket/marketd/internal/interface/rest/interceptors"
)

// mint mints to the caller, or to the given recipient if any.
func (h *Handler) mint(w http.ResponseWriter, r *http.Request) error {
	caller, err := interceptors.CallerFromContext(r.Context())
	if err != nil {
		return err
	}
	var req mintRequest
	if err := decodeBody(r, &req); err != nil {
		return err
	}

	var assetId uint64
	if req.Recipient == "" {
		assetId, err = h.svc.Mint(r.Context(), caller, req.MetadataURI)
	} else {
		assetId, err = h.svc.MintTo(r.Context(), caller, req.Recipient, req.MetadataURI)
	}
	if err != nil {
		return err
	}
	return ok(w, assetIdResponse{assetId})
}

func (h *Handler) transfer(w http.ResponseWriter, r *http.Request) error {
	caller, err := interceptors.CallerFromContext(r.Context())
	if err != nil {
		return err
	}
	assetId, err := parseAssetId(r)
	if err != nil {
		return err
	}
	var req transferRequest
	if err := decodeBody(r, &req); err != nil {
		return err
	}

	if err := h.svc.Transfer(r.Context(), caller, req.From, req.To, assetId); err != nil {
		return err
	}
	return empty(w)
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) error {
	caller, err := interceptors.CallerFromContext(r.Context())
	if err != nil {
		return err
	}
	assetId, err := parseAssetId(r)
	if err != nil {
		return err
	}
	var req approveRequest
	if err := decodeBody(r, &req); err != nil {
		return err
	}

	if err := h.svc.Approve(r.Context(), caller, assetId, req.Spender); err != nil {
		return err
	}
	return empty(w)
}

func (h *Handler) setApprovalForAll(w http.ResponseWriter, r *http.Request) error {
	caller, err := interceptors.CallerFromContext(r.Context())
	if err != nil {
		return err
	}
	var req setApprovalForAllRequest
	if err := decodeBody(r, &req); err != nil {
		return err
	}

	if err := h.svc.SetApprovalForAll(
		r.Context(), caller, req.Operator, req.Approved,
	); err != nil {
		return err
	}
	return empty(w)
}

func (h *Handler) ownerOf(w http.ResponseWriter, r *http.Request) error {
	assetId, err := parseAssetId(r)
	if err != nil {
		return err
	}
	owner, err := h.svc.OwnerOf(r.Context(), assetId)
	if err != nil {
		return err
	}
	return ok(w, ownerResponse{owner})
}

func (h *Handler) tokenURI(w http.ResponseWriter, r *http.Request) error {
	assetId, err := parseAssetId(r)
	if err != nil {
		return err
	}
	uri, err := h.svc.TokenURI(r.Context(), assetId)
	if err != nil {
		return err
	}
	return ok(w, tokenURIResponse{uri})
}

func (h *Handler) isApprovedForTransfer(w http.ResponseWriter, r *http.Request) error {
	assetId, err := parseAssetId(r)
	if err != nil {
		return err
	}
	query := r.URL.Query()
	approved, err := h.svc.IsApprovedForTransfer(
		r.Context(), assetId, query.Get("owner"), query.Get("spender"),
	)
	if err != nil {
		return err
	}
	return ok(w, approvedResponse{approved})
}

package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/nftmarket/marketd/internal/core/application"
	"github.com/nftmarket/marketd/internal/interface/rest/interceptors"
	"github.com/nftmarket/marketd/pkg/errors"
)

const assetIdParam = "assetId"

type Handler struct {
	svc application.Service
}

func NewHandler(svc application.Service) *Handler {
	return &Handler{svc}
}

// Register mounts the market routes on r.
func (h *Handler) Register(r chi.Router) {
	withError := interceptors.WithError

	r.Route("/v1", func(r chi.Router) {
		r.Route("/assets", func(r chi.Router) {
			r.Post("/", withError(h.mint))
			r.Post("/operators", withError(h.setApprovalForAll))
			r.Route("/{assetId}", func(r chi.Router) {
				r.Get("/owner", withError(h.ownerOf))
				r.Get("/uri", withError(h.tokenURI))
				r.Get("/approved", withError(h.isApprovedForTransfer))
				r.Post("/transfer", withError(h.transfer))
				r.Post("/approve", withError(h.approve))
			})
		})

		r.Route("/listings", func(r chi.Router) {
			r.Get("/", withError(h.getActiveListings))
			r.Post("/", withError(h.mintAndList))
			r.Get("/count", withError(h.getCounts))
			r.Route("/{assetId}", func(r chi.Router) {
				r.Get("/", withError(h.getListing))
				r.Post("/", withError(h.listNFT))
				r.Delete("/", withError(h.delistNFT))
				r.Post("/price", withError(h.updateListingPrice))
				r.Post("/buy", withError(h.buyNFT))
			})
		})

		r.Route("/treasury", func(r chi.Router) {
			r.Get("/", withError(h.getFeeInfo))
			r.Post("/fee-rate", withError(h.setFeeRate))
			r.Post("/withdraw", withError(h.withdrawFees))
		})

		r.Get("/events", withError(h.getEvents))
		r.Get("/events/stream", withError(h.streamEvents))
		r.Get("/stats", withError(h.getMarketStats))
	})
}

func decodeBody(r *http.Request, dst any) errors.Error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errors.INVALID_REQUEST.New("invalid request body: %s", err).
			WithMetadata(errors.RequestMetadata{Field: "body"})
	}
	return nil
}

func parseAssetId(r *http.Request) (uint64, errors.Error) {
	assetId, err := strconv.ParseUint(chi.URLParam(r, assetIdParam), 10, 64)
	if err != nil {
		return 0, errors.INVALID_REQUEST.New("invalid asset id: %s", err).
			WithMetadata(errors.RequestMetadata{Field: assetIdParam})
	}
	return assetId, nil
}

func parseUintQuery(r *http.Request, key string, defaultValue uint64) (uint64, errors.Error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, errors.INVALID_REQUEST.New("invalid %s: %s", key, err).
			WithMetadata(errors.RequestMetadata{Field: key})
	}
	return n, nil
}

func ok(w http.ResponseWriter, body any) error {
	interceptors.WriteJSON(w, http.StatusOK, body)
	return nil
}

func empty(w http.ResponseWriter) error {
	return ok(w, struct{}{})
}

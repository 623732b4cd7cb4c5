package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/nftmarket/marketd/pkg/errors"
	log "github.com/sirupsen/logrus"
)

func (h *Handler) getEvents(w http.ResponseWriter, r *http.Request) error {
	afterSeq, err := parseUintQuery(r, "after", 0)
	if err != nil {
		return err
	}
	limit, err := parseUintQuery(r, "limit", defaultPageSize)
	if err != nil {
		return err
	}

	recorded, err := h.svc.GetEvents(r.Context(), afterSeq, limit)
	if err != nil {
		return err
	}

	events := make([]event, 0, len(recorded))
	for _, e := range recorded {
		ev, err := toEvent(e)
		if err != nil {
			return errors.INTERNAL_ERROR.Wrap(fmt.Errorf("failed to encode event: %w", err))
		}
		events = append(events, ev)
	}
	return ok(w, eventsResponse{events})
}

// streamEvents pushes committed events as server-sent events until the client goes away.
// Events missed by a slow client can be fetched by seq from getEvents.
func (h *Handler) streamEvents(w http.ResponseWriter, r *http.Request) error {
	flusher, isFlusher := w.(http.Flusher)
	if !isFlusher {
		return errors.INTERNAL_ERROR.New("streaming not supported")
	}

	ch, err := h.svc.GetEventsChannel(r.Context())
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return nil
		case recorded, open := <-ch:
			if !open {
				return nil
			}
			ev, err := toEvent(recorded)
			if err != nil {
				log.WithError(err).Warnf("failed to encode event %d", recorded.Seq)
				continue
			}
			data, err := json.Marshal(ev)
			if err != nil {
				log.WithError(err).Warnf("failed to encode event %d", recorded.Seq)
				continue
			}
			if _, err := fmt.Fprintf(
				w, "id: %d\nevent: %s\ndata: %s\n\n", ev.Seq, ev.Type, data,
			); err != nil {
				return nil
			}
			flusher.Flush()
		}
	}
}

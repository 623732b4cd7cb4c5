package interceptors

import (
	"net/http"
	"sync/atomic"
)

const marketServiceNotReadyMsg = "market service not ready"

// ReadinessService gates the market routes on the app service lifecycle.
type ReadinessService struct {
	appStarted atomic.Bool
}

func NewReadinessService() *ReadinessService {
	return &ReadinessService{}
}

func (r *ReadinessService) MarkAppServiceStarted() {
	r.appStarted.Store(true)
}

func (r *ReadinessService) MarkAppServiceStopped() {
	r.appStarted.Store(false)
}

func (r *ReadinessService) Ready() bool {
	return r != nil && r.appStarted.Load()
}

func (r *ReadinessService) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if !r.Ready() {
			WriteJSON(w, http.StatusServiceUnavailable, ErrorResponse{
				Name:    "UNAVAILABLE",
				Message: marketServiceNotReadyMsg,
			})
			return
		}
		next.ServeHTTP(w, req)
	})
}

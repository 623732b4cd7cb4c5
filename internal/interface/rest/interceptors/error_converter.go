package interceptors

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/nftmarket/marketd/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Code     uint16            `json:"code"`
	Name     string            `json:"name"`
	Message  string            `json:"message"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// WriteError renders err with the http status matching its grpc code. Errors without a code
// are reported as internal errors.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	var structuredErr errors.Error
	if !stderrors.As(err, &structuredErr) {
		structuredErr = errors.INTERNAL_ERROR.Wrap(err)
	}

	if structuredErr.Code() == errors.INTERNAL_ERROR.Code {
		structuredErr.Log().
			WithContext(r.Context()).
			WithField("request_id", RequestIdFromContext(r.Context())).
			Error(structuredErr.Error())
	}

	WriteJSON(w, runtime.HTTPStatusFromCode(structuredErr.GrpcCode()), ErrorResponse{
		Code:     structuredErr.Code(),
		Name:     structuredErr.CodeName(),
		Message:  structuredErr.Error(),
		Metadata: structuredErr.Metadata(),
	})
}

func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.WithError(err).Warn("failed to write response body")
	}
}

// WithError adapts a handler returning an error to http.HandlerFunc.
func WithError(next func(w http.ResponseWriter, r *http.Request) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := next(w, r); err != nil {
			WriteError(w, r, err)
		}
	}
}

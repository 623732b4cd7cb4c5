package interceptors

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

const RequestIdHeader = "X-Request-Id"

type requestIdKey struct{}

// RequestId tags every request with a uuid, reusing the one set by the client if valid.
func RequestId(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(r.Header.Get(RequestIdHeader))
		if err != nil {
			id = uuid.New()
		}
		w.Header().Set(RequestIdHeader, id.String())

		ctx := context.WithValue(r.Context(), requestIdKey{}, id.String())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func RequestIdFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIdKey{}).(string)
	return id
}

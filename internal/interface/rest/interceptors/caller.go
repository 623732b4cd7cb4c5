package interceptors

import (
	"context"
	"net/http"
	"strings"

	"github.com/nftmarket/marketd/pkg/errors"
)

// CallerHeader carries the address of the caller, set by the upstream authenticator.
const CallerHeader = "X-Caller-Address"

type callerKey struct{}

func Caller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller := strings.TrimSpace(r.Header.Get(CallerHeader))
		if caller == "" {
			next.ServeHTTP(w, r)
			return
		}
		ctx := context.WithValue(r.Context(), callerKey{}, caller)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// CallerFromContext returns the authenticated caller, or UNAUTHORIZED if the request has none.
func CallerFromContext(ctx context.Context) (string, errors.Error) {
	caller, ok := ctx.Value(callerKey{}).(string)
	if !ok || caller == "" {
		return "", errors.UNAUTHORIZED.New("missing %s header", CallerHeader)
	}
	return caller, nil
}

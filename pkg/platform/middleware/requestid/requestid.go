// Package requestid assigns each request an ID used to correlate log lines
// and audit entries across the request's lifetime.
package requestid

import (
	"net/http"

	"github.com/google/uuid"

	"conforma/pkg/requestcontext"
)

// Header is the inbound and outbound request ID header.
const Header = "X-Request-ID"

// Middleware reuses the caller-supplied X-Request-ID when present so IDs
// stay stable across service hops, otherwise generates one. The ID is
// echoed on the response either way.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(Header)
		if requestID == "" || len(requestID) > 64 {
			requestID = uuid.NewString()
		}
		w.Header().Set(Header, requestID)
		ctx := requestcontext.WithRequestID(r.Context(), requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

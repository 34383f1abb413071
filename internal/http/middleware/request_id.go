package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/jmylchreest/convertarr/internal/observability"
)

// RequestIDHeader carries the request ID in both directions and is exposed
// to cross-origin callers.
const RequestIDHeader = "X-Request-ID"

// RequestID tags each request with an ID that appears in every log line of
// the conversion it triggers. A client-supplied ID is kept; otherwise a
// random UUID is assigned.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}

		w.Header().Set(RequestIDHeader, requestID)

		ctx := observability.ContextWithRequestID(r.Context(), requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID returns the ID set by RequestID, or "" outside a request.
func GetRequestID(ctx context.Context) string {
	return observability.RequestIDFromContext(ctx)
}

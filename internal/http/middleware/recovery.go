package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"runtime/debug"
)

// InternalErrorMessage is the error text of the {"error": ...} body sent when
// a handler panics. Its shape matches every other upload and download error.
const InternalErrorMessage = "Internal server error"

// Recovery turns a panicking handler into a 500 {"error": "Internal server
// error"} response. The panic value and stack go to the log only.
// http.ErrAbortHandler is re-raised so aborted downloads stay aborted.
func Recovery(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					if err == http.ErrAbortHandler {
						panic(err)
					}
					logger.ErrorContext(r.Context(), "panic recovered",
						slog.Any("error", err),
						slog.String("stack", string(debug.Stack())),
						slog.String("method", r.Method),
						slog.String("path", r.URL.Path),
						slog.String("request_id", GetRequestID(r.Context())),
					)

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{"error": InternalErrorMessage})
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

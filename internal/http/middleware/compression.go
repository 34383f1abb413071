package middleware

import (
	"io"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// compressibleTypes are the response types worth compressing. Media
// artifacts are already compressed and are left alone.
var compressibleTypes = []string{
	"text/html",
	"text/css",
	"text/plain",
	"text/javascript",
	"application/javascript",
	"application/json",
	"application/problem+json",
	"application/openapi+json",
	"application/openapi+yaml",
	"image/svg+xml",
}

// Compress returns a compression middleware that prefers brotli and falls
// back to gzip or deflate.
func Compress(level int) func(http.Handler) http.Handler {
	c := chimiddleware.NewCompressor(level, compressibleTypes...)
	c.SetEncoder("br", func(w io.Writer, level int) io.Writer {
		return brotli.NewWriterLevel(w, level)
	})
	return SkipCompression(c.Handler)
}

// SkipCompression bypasses compression for event streams, which need
// unbuffered flushing, and for uploads, whose handlers adjust connection
// deadlines through http.ResponseController.
func SkipCompression(compressionHandler func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		compressed := compressionHandler(next)

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.Contains(r.Header.Get("Accept"), "text/event-stream") ||
				strings.HasSuffix(r.URL.Path, "/progress/events") ||
				strings.HasPrefix(r.URL.Path, "/convert/") {
				next.ServeHTTP(w, r)
				return
			}
			compressed.ServeHTTP(w, r)
		})
	}
}

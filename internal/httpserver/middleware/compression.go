package middleware

import (
	"net/http"
	"strings"
)

// SkipCompressionForSSE wraps a compression middleware handler to skip
// compression for SSE (Server-Sent Events) endpoints. SSE requires
// unbuffered streaming; compression middleware interferes with flushing.
// galleryedge has no SSE endpoint today, but the carve-out is a no-op, not a
// dead branch, against any future one.
func SkipCompressionForSSE(compressionHandler func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		compressedHandler := compressionHandler(next)

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			acceptHeader := r.Header.Get("Accept")
			if strings.Contains(acceptHeader, "text/event-stream") {
				next.ServeHTTP(w, r)
				return
			}

			compressedHandler.ServeHTTP(w, r)
		})
	}
}

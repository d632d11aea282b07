package middleware

import "net/http"

// MaxBodySize limits the request body to the given number of bytes.
// Covers both the JSON API routes and caption file uploads, which are
// small text documents.
func MaxBodySize(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

// Package middleware provides request body size limiting for enterprise safety (BE-DATA-001).
package middleware

import (
	"net/http"
	"strings"
)

const (
	// DefaultStandardMaxBodyBytes is the default max request body for non-upload API requests (512KB).
	DefaultStandardMaxBodyBytes = 512 * 1024
	// DefaultAnalyzeMaxBodyBytes is the default max request body for POST .../analyze, which carries
	// multipart log uploads rather than a small JSON document (64MB).
	DefaultAnalyzeMaxBodyBytes = 64 * 1024 * 1024
)

// MaxBodySize returns middleware that limits request body size: analyzeMax for POST .../analyze, standardMax otherwise.
// Use for methods that may have a body (POST, PUT, PATCH). GET/HEAD/DELETE are not limited.
func MaxBodySize(standardMax, analyzeMax int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body == nil || r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodDelete {
				next.ServeHTTP(w, r)
				return
			}
			max := standardMax
			if (r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch) &&
				strings.HasSuffix(strings.TrimSuffix(r.URL.Path, "/"), "/analyze") {
				max = analyzeMax
			}
			r.Body = http.MaxBytesReader(w, r.Body, max)
			next.ServeHTTP(w, r)
		})
	}
}

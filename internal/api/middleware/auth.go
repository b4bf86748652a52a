package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/kubilitics/kubilitics-backend/internal/config"
)

// unauthenticatedPaths never require a bearer token regardless of mode.
var unauthenticatedPaths = map[string]bool{
	"/health":        true,
	"/health/agents": true,
	"/metrics":       true,
}

// Auth enforces the optional bearer-token check described in §6 ("Optional
// bearer authorization when configured"). Full session/identity management
// is explicitly out of scope — this is a single shared secret, not a user
// system.
func Auth(cfg *config.Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if unauthenticatedPaths[r.URL.Path] || cfg.BearerAuthSecret == "" {
				next.ServeHTTP(w, r)
				return
			}

			token := extractBearer(r)
			if subtle.ConstantTimeCompare([]byte(token), []byte(cfg.BearerAuthSecret)) == 1 {
				next.ServeHTTP(w, r)
				return
			}

			if cfg.AuthRequired {
				w.Header().Set("WWW-Authenticate", "Bearer")
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"authentication required"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func extractBearer(r *http.Request) string {
	s := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(s) > len(prefix) && strings.EqualFold(s[:len(prefix)], prefix) {
		return strings.TrimSpace(s[len(prefix):])
	}
	return ""
}

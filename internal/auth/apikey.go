// Package auth provides API key authentication middleware for the HTTP surface.
package auth

import (
	"crypto/subtle"
	"net/http"
)

// APIKeyHeader is the request header carrying the API key.
const APIKeyHeader = "X-Api-Key"

// APIKey holds the configured key and the paths exempt from checks.
type APIKey struct {
	key       string
	skipPaths map[string]bool
}

// NewAPIKey creates the middleware. An empty key disables authentication,
// for development setups.
func NewAPIKey(key string) *APIKey {
	return &APIKey{
		key: key,
		skipPaths: map[string]bool{
			// Health check endpoints
			"/healthz": true,
			"/readyz":  true,
		},
	}
}

// WithSkipPaths exempts additional paths from authentication.
func (a *APIKey) WithSkipPaths(paths ...string) *APIKey {
	for _, p := range paths {
		a.skipPaths[p] = true
	}
	return a
}

// Middleware validates the API key header on every request.
func (a *APIKey) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.key == "" || a.skipPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		provided := r.Header.Get(APIKeyHeader)
		if provided == "" {
			http.Error(w, "missing API key", http.StatusUnauthorized)
			return
		}
		if subtle.ConstantTimeCompare([]byte(provided), []byte(a.key)) != 1 {
			http.Error(w, "invalid API key", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Package auth provides authentication middleware and API key helpers.
package auth

import (
	"context"
	"net/http"

	"github.com/monito83/OgWalletBot/internal/storage"
)

// Context key type for avoiding collisions
type contextKey string

const apiKeyContextKey contextKey = "apiKey"

// KeyValidator checks a presented API key.
type KeyValidator interface {
	ValidateAPIKey(ctx context.Context, key string) (*storage.APIKey, error)
}

// GetAPIKeyFromContext retrieves the API key info from context.
func GetAPIKeyFromContext(ctx context.Context) *storage.APIKey {
	if key, ok := ctx.Value(apiKeyContextKey).(*storage.APIKey); ok {
		return key
	}
	return nil
}

// CallerFromContext returns the name of the authenticated key, for audit
// entries. It is empty for unauthenticated requests.
func CallerFromContext(ctx context.Context) string {
	if key := GetAPIKeyFromContext(ctx); key != nil {
		return key.Name
	}
	return ""
}

// Middleware returns an HTTP middleware that validates API keys.
func Middleware(store KeyValidator, writeError func(w http.ResponseWriter, status int, code, message string)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey := KeyFromRequest(r)
			if apiKey == "" {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "API key required")
				return
			}
			if !LooksLikeKey(apiKey) {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Malformed API key")
				return
			}

			key, err := store.ValidateAPIKey(r.Context(), apiKey)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid API key")
				return
			}

			ctx := context.WithValue(r.Context(), apiKeyContextKey, key)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

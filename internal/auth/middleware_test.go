package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/monito83/OgWalletBot/internal/storage"
)

var (
	validKey  = KeyPrefix + strings.Repeat("ab", 24)
	bearerKey = KeyPrefix + strings.Repeat("cd", 24)
)

type mockKeyValidator struct {
	keys map[string]*storage.APIKey
}

func (m *mockKeyValidator) ValidateAPIKey(ctx context.Context, key string) (*storage.APIKey, error) {
	if apiKey, ok := m.keys[key]; ok {
		return apiKey, nil
	}
	return nil, storage.ErrNotFound
}

func newValidator() *mockKeyValidator {
	return &mockKeyValidator{
		keys: map[string]*storage.APIKey{
			validKey:  {ID: "key-123", Name: "discord-bot"},
			bearerKey: {ID: "key-456", Name: "ops"},
		},
	}
}

func serve(t *testing.T, req *http.Request) (*httptest.ResponseRecorder, context.Context) {
	t.Helper()
	var captured context.Context
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = r.Context()
		w.WriteHeader(http.StatusOK)
	})
	mw := Middleware(newValidator(), func(w http.ResponseWriter, status int, code, message string) {
		w.WriteHeader(status)
	})
	rec := httptest.NewRecorder()
	mw(handler).ServeHTTP(rec, req)
	return rec, captured
}

func TestMiddleware_ValidKey(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-API-Key", validKey)

	rec, ctx := serve(t, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	apiKey := GetAPIKeyFromContext(ctx)
	require.NotNil(t, apiKey)
	assert.Equal(t, "key-123", apiKey.ID)
	assert.Equal(t, "discord-bot", CallerFromContext(ctx))
}

func TestMiddleware_BearerToken(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+bearerKey)

	rec, ctx := serve(t, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "key-456", GetAPIKeyFromContext(ctx).ID)
}

func TestMiddleware_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		header string
		value  string
	}{
		{"missing", "", ""},
		{"malformed", "X-API-Key", "cf_key_valid"},
		{"unknown", "X-API-Key", KeyPrefix + strings.Repeat("ef", 24)},
		{"basic auth", "Authorization", "Basic dXNlcjpwYXNz"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			rec, ctx := serve(t, req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Nil(t, ctx)
		})
	}
}

func TestLooksLikeKey(t *testing.T) {
	assert.True(t, LooksLikeKey(validKey))
	assert.False(t, LooksLikeKey("ogv_key_short"))
	assert.False(t, LooksLikeKey(KeyPrefix+strings.Repeat("zz", 24)))
	assert.False(t, LooksLikeKey(strings.Repeat("ab", 28)))
}

func TestHashAPIKey(t *testing.T) {
	hash := HashAPIKey(validKey)
	assert.Len(t, hash, 64) // SHA256 hex = 64 chars
	assert.Equal(t, hash, HashAPIKey(validKey))
	assert.NotEqual(t, hash, HashAPIKey(bearerKey))
}

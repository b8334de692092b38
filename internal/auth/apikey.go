package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
)

const (
	// KeyPrefix is the prefix for all API keys
	KeyPrefix = "ogv_key_"
	// keyHexLength is the length of the random hex part of the key
	keyHexLength = 48
)

// LooksLikeKey reports whether key has the shape of an issued API key.
func LooksLikeKey(key string) bool {
	rest, ok := strings.CutPrefix(key, KeyPrefix)
	if !ok || len(rest) != keyHexLength {
		return false
	}
	_, err := hex.DecodeString(rest)
	return err == nil
}

// HashAPIKey hashes an API key for storage.
func HashAPIKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}

// KeyFromRequest returns the API key from X-API-Key or a Bearer
// Authorization header.
func KeyFromRequest(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

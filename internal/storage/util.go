package storage

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// timeLayout is how timestamps are stored in TEXT columns and JSON files
const timeLayout = time.RFC3339Nano

// generateID generates a new UUID
func generateID() string {
	return uuid.New().String()
}

// generateAPIKey generates a new API key
func generateAPIKey() string {
	b := make([]byte, 24)
	_, _ = rand.Read(b)
	return fmt.Sprintf("ogv_key_%s", hex.EncodeToString(b))
}

// hashAPIKey hashes an API key for storage
func hashAPIKey(key string) string {
	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:])
}

// isUniqueViolation reports whether err came from a primary key or unique
// constraint in either SQL backend.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "sqlstate 23505")
}

func encodeDetails(details map[string]string) string {
	if len(details) == 0 {
		return "{}"
	}
	b, err := json.Marshal(details)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func decodeDetails(raw string) map[string]string {
	details := map[string]string{}
	if raw == "" {
		return details
	}
	_ = json.Unmarshal([]byte(raw), &details)
	return details
}

func parseTime(s string) time.Time {
	for _, layout := range []string{timeLayout, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

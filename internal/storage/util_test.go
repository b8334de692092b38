package storage

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"sqlite", errors.New("constraint failed: UNIQUE constraint failed: claims.address (1555)"), true},
		{"postgres", errors.New(`ERROR: duplicate key value violates unique constraint "claims_pkey" (SQLSTATE 23505)`), true},
		{"other", errors.New("database is locked"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isUniqueViolation(tt.err); got != tt.want {
				t.Errorf("isUniqueViolation(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestGenerateAPIKey(t *testing.T) {
	a, b := generateAPIKey(), generateAPIKey()
	if !strings.HasPrefix(a, "ogv_key_") {
		t.Errorf("generateAPIKey() = %q, want ogv_key_ prefix", a)
	}
	if a == b {
		t.Error("generateAPIKey() returned the same key twice")
	}
	if hashAPIKey(a) == a || len(hashAPIKey(a)) != 64 {
		t.Errorf("hashAPIKey(%q) = %q, want 64 hex chars", a, hashAPIKey(a))
	}
}

func TestParseTime(t *testing.T) {
	ts := time.Date(2025, 3, 1, 12, 30, 0, 0, time.UTC)
	if got := parseTime(ts.Format(timeLayout)); !got.Equal(ts) {
		t.Errorf("parseTime(RFC3339) = %v, want %v", got, ts)
	}
	if got := parseTime("2025-03-01 12:30:00"); !got.Equal(ts) {
		t.Errorf("parseTime(sqlite datetime) = %v, want %v", got, ts)
	}
	if got := parseTime("garbage"); !got.IsZero() {
		t.Errorf("parseTime(garbage) = %v, want zero", got)
	}
}

func TestDetailsRoundTrip(t *testing.T) {
	in := map[string]string{"address": "0xabc", "tx": "0x01"}
	out := decodeDetails(encodeDetails(in))
	if len(out) != 2 || out["address"] != "0xabc" || out["tx"] != "0x01" {
		t.Errorf("decodeDetails(encodeDetails(%v)) = %v", in, out)
	}
	if encodeDetails(nil) != "{}" {
		t.Errorf("encodeDetails(nil) = %q, want {}", encodeDetails(nil))
	}
}

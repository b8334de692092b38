package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Middleware returns HTTP middleware for request metrics.
func Middleware(next http.Handler) http.Handler {
	if !enabled {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Wrap response writer to capture status code
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		defer func() {
			duration := time.Since(start).Seconds()

			// Normalize path to avoid high cardinality from IDs
			path := normalizePath(r.URL.Path)

			httpRequestsTotal.WithLabelValues(
				r.Method,
				path,
				strconv.Itoa(rw.status),
			).Inc()

			httpDuration.WithLabelValues(
				r.Method,
				path,
			).Observe(duration)
		}()

		next.ServeHTTP(rw, r)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	status int
}

// WriteHeader captures status code.
func (rw *responseWriter) WriteHeader(status int) {
	rw.status = status
	rw.ResponseWriter.WriteHeader(status)
}

// normalizePath converts dynamic path segments to placeholders to avoid
// high cardinality metrics. For example:
//
//	/api/v1/admin/wallets/0xabc... -> /api/v1/admin/wallets/{id}
//	/api/v1/verifications/X1AB9Z   -> /api/v1/verifications/{id}
func normalizePath(path string) string {
	if !strings.HasPrefix(path, "/api/v1/") {
		return path
	}
	parts := strings.Split(strings.TrimPrefix(path, "/api/v1/"), "/")
	normalized := []string{"/api/v1"}
	for _, part := range parts {
		if part == "" {
			continue
		}
		if isLikelyID(part) {
			normalized = append(normalized, "{id}")
		} else {
			normalized = append(normalized, part)
		}
	}
	return strings.Join(normalized, "/")
}

// isLikelyID returns true if segment looks like an address, a transaction
// hash, a request code or a key ID
func isLikelyID(segment string) bool {
	if (strings.HasPrefix(segment, "0x") || strings.HasPrefix(segment, "0X")) && isHex(segment[2:]) {
		return true
	}
	if strings.Count(segment, "-") >= 4 {
		return true
	}
	return isRequestCode(segment)
}

// isHex returns true if string is hexadecimal (supports both upper and lowercase)
func isHex(s string) bool {
	for _, c := range s {
		isDigit := c >= '0' && c <= '9'
		isLowerHex := c >= 'a' && c <= 'f'
		isUpperHex := c >= 'A' && c <= 'F'
		if !isDigit && !isLowerHex && !isUpperHex {
			return false
		}
	}
	return len(s) > 0
}

// isRequestCode matches upper-case alphanumeric tokens; route words are lower-case
func isRequestCode(s string) bool {
	for _, c := range s {
		if !(c >= '0' && c <= '9') && !(c >= 'A' && c <= 'Z') {
			return false
		}
	}
	return len(s) >= 4
}

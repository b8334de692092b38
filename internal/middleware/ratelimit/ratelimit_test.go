package ratelimit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func newLimited(t *testing.T, burst int) (*RateLimiter, http.Handler) {
	t.Helper()
	rl := New(Config{Enabled: true, RequestsPerMin: 1, BurstSize: burst, CleanupMinutes: 1})
	t.Cleanup(rl.Stop)
	return rl, rl.Middleware()(okHandler())
}

func do(h http.Handler, path, remote, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = remote
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestRateLimiter_BlocksAfterBurst(t *testing.T) {
	_, h := newLimited(t, 2)

	assert.Equal(t, http.StatusOK, do(h, "/api/v1/verifications/status", "192.168.1.100:1", "").Code)
	assert.Equal(t, http.StatusOK, do(h, "/api/v1/verifications/status", "192.168.1.100:2", "").Code)

	rr := do(h, "/api/v1/verifications/status", "192.168.1.100:3", "")
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "60", rr.Header().Get("Retry-After"))

	var resp map[string]map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", resp["error"]["code"])
}

func TestRateLimiter_SeparateClients(t *testing.T) {
	_, h := newLimited(t, 1)
	key := "ogv_key_" + strings.Repeat("ab", 24)

	assert.Equal(t, http.StatusOK, do(h, "/", "192.168.1.100:1", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, do(h, "/", "192.168.1.100:1", "").Code)

	assert.Equal(t, http.StatusOK, do(h, "/", "192.168.1.101:1", "").Code, "other IP")
	assert.Equal(t, http.StatusOK, do(h, "/", "192.168.1.100:1", key).Code, "API key has its own bucket")
	assert.Equal(t, http.StatusTooManyRequests, do(h, "/", "192.168.1.102:1", key).Code, "key bucket follows the key")

	assert.Equal(t, http.StatusTooManyRequests, do(h, "/", "192.168.1.100:1", "garbage").Code, "malformed key falls back to IP")
}

func TestRateLimiter_ExemptPaths(t *testing.T) {
	_, h := newLimited(t, 1)
	for _, path := range []string{"/health", "/healthz", "/readyz", "/metrics"} {
		for i := 0; i < 5; i++ {
			assert.Equal(t, http.StatusOK, do(h, path, "192.168.1.100:1", "").Code, path)
		}
	}
}

func TestRateLimiter_CleanupStale(t *testing.T) {
	rl, h := newLimited(t, 1)
	now := time.Now()
	rl.now = func() time.Time { return now }

	do(h, "/", "192.168.1.100:1", "")
	do(h, "/", "192.168.1.101:1", "")
	require.Len(t, rl.limiters, 2)

	now = now.Add(30 * time.Second)
	do(h, "/", "192.168.1.101:1", "")
	now = now.Add(45 * time.Second)
	rl.cleanupStale()

	assert.Len(t, rl.limiters, 1)
	assert.Contains(t, rl.limiters, "ip:192.168.1.101")
}

func TestRateLimiter_Concurrent(t *testing.T) {
	rl := New(Config{Enabled: true, RequestsPerMin: 6000, BurstSize: 100, CleanupMinutes: 1})
	defer rl.Stop()
	h := rl.Middleware()(okHandler())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				assert.Equal(t, http.StatusOK, do(h, "/", "10.1.1.1:1", "").Code)
			}
		}()
	}
	wg.Wait()
	rl.Stop()
}

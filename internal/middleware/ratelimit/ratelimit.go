// Package ratelimit provides per-client rate limiting middleware using a
// token bucket per API key or, for anonymous callers, per IP.
package ratelimit

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/monito83/OgWalletBot/internal/auth"
	"github.com/monito83/OgWalletBot/internal/middleware/realip"
)

// Config holds the configuration for rate limiting
type Config struct {
	Enabled        bool
	RequestsPerMin int
	BurstSize      int
	CleanupMinutes int
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter manages per-client rate limiters
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*clientLimiter
	rate     rate.Limit
	burst    int
	idle     time.Duration
	now      func() time.Time
	stopCh   chan struct{}
	stopOnce sync.Once
}

// New creates a RateLimiter and starts its cleanup goroutine. Call Stop to
// release it.
func New(cfg Config) *RateLimiter {
	idle := time.Duration(cfg.CleanupMinutes) * time.Minute
	if idle <= 0 {
		idle = 10 * time.Minute
	}
	burst := cfg.BurstSize
	if burst <= 0 {
		burst = 1
	}

	rl := &RateLimiter{
		limiters: make(map[string]*clientLimiter),
		rate:     rate.Limit(float64(cfg.RequestsPerMin) / 60.0),
		burst:    burst,
		idle:     idle,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

// Stop stops the cleanup goroutine. It is safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.idle)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanupStale()
		case <-rl.stopCh:
			return
		}
	}
}

func (rl *RateLimiter) cleanupStale() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-rl.idle)
	for key, l := range rl.limiters {
		if l.lastSeen.Before(cutoff) {
			delete(rl.limiters, key)
		}
	}
}

func (rl *RateLimiter) allow(key string) bool {
	rl.mu.Lock()
	l, ok := rl.limiters[key]
	if !ok {
		l = &clientLimiter{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.limiters[key] = l
	}
	l.lastSeen = rl.now()
	rl.mu.Unlock()

	return l.limiter.Allow()
}

// clientKey identifies the caller. Well-formed API keys get their own bucket
// so several operators behind one NAT do not share a limit.
func clientKey(r *http.Request) string {
	if key := auth.KeyFromRequest(r); auth.LooksLikeKey(key) {
		return "key:" + auth.HashAPIKey(key)[:16]
	}
	return "ip:" + realip.FromRequest(r)
}

var exemptPaths = map[string]bool{
	"/health":  true,
	"/healthz": true,
	"/readyz":  true,
	"/metrics": true,
}

// Middleware returns an HTTP middleware that rate limits requests per client.
func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if exemptPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			if !rl.allow(clientKey(r)) {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "60")
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(map[string]any{
					"error": map[string]any{
						"code":    "RATE_LIMIT_EXCEEDED",
						"message": "Too many requests. Please try again later.",
					},
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

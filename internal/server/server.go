// Package server provides the HTTP server setup and wiring.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/monito83/OgWalletBot/internal/audit"
	"github.com/monito83/OgWalletBot/internal/auth"
	claimsTransport "github.com/monito83/OgWalletBot/internal/claims/transport"
	"github.com/monito83/OgWalletBot/internal/config"
	eligibilityTransport "github.com/monito83/OgWalletBot/internal/eligibility/transport"
	"github.com/monito83/OgWalletBot/internal/middleware/logging"
	"github.com/monito83/OgWalletBot/internal/middleware/ratelimit"
	"github.com/monito83/OgWalletBot/internal/middleware/realip"
	"github.com/monito83/OgWalletBot/internal/observability/metrics"
	"github.com/monito83/OgWalletBot/internal/storage"
	verificationTransport "github.com/monito83/OgWalletBot/internal/verification/transport"
)

// Services are the domain services exposed over HTTP, typed via the
// transport interfaces.
type Services struct {
	Verification verificationTransport.Service
	Registry     eligibilityTransport.Registry
	Claims       claimsTransport.Ledger
}

// Server is the HTTP server
type Server struct {
	cfg     *config.Config
	store   storage.Store
	svc     Services
	logger  *slog.Logger
	router  *chi.Mux
	limiter *ratelimit.RateLimiter
}

// New creates a new server
func New(cfg *config.Config, store storage.Store, svc Services, logger *slog.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		store:  store,
		svc:    svc,
		logger: logger,
		router: chi.NewRouter(),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases background resources held by middleware.
func (s *Server) Close() {
	if s.limiter != nil {
		s.limiter.Stop()
	}
}

func (s *Server) setupMiddleware() {
	// Client IP first; logging and rate limiting read it.
	var proxies []string
	if s.cfg.Server.TrustProxy {
		proxies = s.cfg.Server.TrustedProxies
	}
	resolver, invalid := realip.NewResolver(proxies)
	for _, p := range invalid {
		s.logger.Warn("ignoring invalid trusted proxy", "value", p)
	}
	s.router.Use(resolver.Middleware)

	s.router.Use(MaxBodySize(int64(s.cfg.Server.MaxBodySizeMB) << 20))

	if s.cfg.RateLimit.Enabled {
		s.limiter = ratelimit.New(ratelimit.Config{
			Enabled:        true,
			RequestsPerMin: s.cfg.RateLimit.RequestsPerMin,
			BurstSize:      s.cfg.RateLimit.BurstSize,
			CleanupMinutes: s.cfg.RateLimit.CleanupMinutes,
		})
		s.router.Use(s.limiter.Middleware())
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(logging.Middleware(s.logger))
	s.router.Use(metrics.Middleware)
	s.router.Use(middleware.Recoverer)
	if s.cfg.Server.RequestTimeout > 0 {
		s.router.Use(middleware.Timeout(time.Duration(s.cfg.Server.RequestTimeout) * time.Second))
	}

	s.router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-API-Key")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	})
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/readyz", s.handleReady)
	if metrics.Enabled() {
		s.router.Handle("/metrics", metrics.Handler())
	}

	verificationHandler := verificationTransport.NewHandler(s.svc.Verification)
	walletsHandler := eligibilityTransport.NewHandler(s.svc.Registry)
	claimsHandler := claimsTransport.NewHandler(s.svc.Claims)
	auditHandler := audit.NewHandler(s.store)

	requireAuth := func(r chi.Router) {
		if s.cfg.Auth.Type == "api-key" {
			r.Use(auth.Middleware(s.store, writeError))
		}
	}

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Route("/verifications", func(r chi.Router) {
			verificationHandler.RegisterReadRoutes(r)

			r.Group(func(r chi.Router) {
				requireAuth(r)
				verificationHandler.RegisterWriteRoutes(r)
			})
		})

		r.Route("/admin", func(r chi.Router) {
			requireAuth(r)
			verificationHandler.RegisterAdminRoutes(r)
			claimsHandler.RegisterRoutes(r)
			auditHandler.RegisterRoutes(r)
			r.Route("/wallets", walletsHandler.RegisterRoutes)
		})
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady reports the engine mode. A degraded engine still serves
// status, registry and claim lookups, so it is ready.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	mode := s.svc.Verification.Mode(r.Context())
	status := "ok"
	if !mode.Scanning {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": status,
		"mode":   mode,
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}

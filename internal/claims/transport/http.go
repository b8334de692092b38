// Package transport provides HTTP handlers for the claim ledger.
package transport

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/monito83/OgWalletBot/internal/claims/domain"
)

// Ledger defines the read operations needed by the HTTP transport.
type Ledger interface {
	List() []domain.Entry
	ClaimsOf(claimantID string) []domain.Entry
	Count() int
}

// Handler handles HTTP requests for claims.
type Handler struct {
	ledger Ledger
}

// NewHandler creates a new claims HTTP handler.
func NewHandler(ledger Ledger) *Handler {
	return &Handler{ledger: ledger}
}

// RegisterRoutes registers the claim routes on a chi router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/claims", h.handleList)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	var entries []domain.Entry
	if claimant := r.URL.Query().Get("claimant"); claimant != "" {
		entries = h.ledger.ClaimsOf(claimant)
	} else {
		entries = h.ledger.List()
	}
	if entries == nil {
		entries = []domain.Entry{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  entries,
		"count": len(entries),
		"total": h.ledger.Count(),
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

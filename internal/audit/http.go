package audit

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/monito83/OgWalletBot/internal/storage"
)

// Handler serves the audit log.
type Handler struct {
	store storage.AuditStore
}

// NewHandler creates a new audit HTTP handler.
func NewHandler(store storage.AuditStore) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes registers the audit routes on a chi router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/audit", h.handleList)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 1000 {
			limit = parsed
		}
	}

	events, err := h.store.ListAuditEvents(r.Context(), limit)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{
				"code":    "INTERNAL_ERROR",
				"message": "Failed to list audit events",
			},
		})
		return
	}

	data := make([]map[string]any, len(events))
	for i, e := range events {
		data[i] = map[string]any{
			"id":        e.ID,
			"kind":      e.Kind,
			"details":   e.Details,
			"createdAt": e.CreatedAt,
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]any{
		"data":  data,
		"count": len(data),
	})
}

// Package transport provides HTTP handlers for the eligible address list.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/monito83/OgWalletBot/internal/eligibility/domain"
)

// maxListBytes caps a bulk upload.
const maxListBytes = 10 << 20

// Registry defines the registry operations needed by the HTTP transport.
type Registry interface {
	List() []string
	Count() int
	IsEligible(address string) bool
	Add(ctx context.Context, address string) (bool, error)
	Remove(ctx context.Context, address string) (bool, error)
	ReplaceAll(ctx context.Context, addresses []string) (*domain.ReplaceResult, error)
}

// Handler handles HTTP requests for the eligible list.
type Handler struct {
	registry Registry
}

// NewHandler creates a new eligibility HTTP handler.
func NewHandler(registry Registry) *Handler {
	return &Handler{registry: registry}
}

// RegisterRoutes registers the wallet routes on a chi router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Post("/", h.handleAdd)
	r.Put("/", h.handleReplace)
	r.Get("/{address}", h.handleCheck)
	r.Delete("/{address}", h.handleRemove)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		for _, a := range h.registry.List() {
			io.WriteString(w, a+"\n")
		}
		return
	}

	addresses := h.registry.List()
	writeJSON(w, http.StatusOK, map[string]any{
		"data":  addresses,
		"count": len(addresses),
	})
}

func (h *Handler) handleCheck(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	writeJSON(w, http.StatusOK, map[string]any{
		"address":  address,
		"eligible": h.registry.IsEligible(address),
	})
}

func (h *Handler) handleAdd(w http.ResponseWriter, r *http.Request) {
	var req AddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON")
		return
	}

	added, err := h.registry.Add(r.Context(), req.Address)
	if err != nil {
		writeRegistryError(w, err)
		return
	}

	status := http.StatusOK
	if added {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]any{
		"address": req.Address,
		"added":   added,
		"count":   h.registry.Count(),
	})
}

func (h *Handler) handleReplace(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxListBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "TOO_LARGE", "List exceeds upload limit")
		return
	}

	result, err := h.registry.ReplaceAll(r.Context(), domain.SplitList(string(body)))
	if err != nil {
		writeRegistryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleRemove(w http.ResponseWriter, r *http.Request) {
	removed, err := h.registry.Remove(r.Context(), chi.URLParam(r, "address"))
	if err != nil {
		writeRegistryError(w, err)
		return
	}
	if !removed {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Address is not on the list")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeRegistryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidAddress), errors.Is(err, domain.ErrEmptyList):
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to update eligible list")
	}
}

// AddRequest is the HTTP request body for adding an address.
type AddRequest struct {
	Address string `json:"address"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}

// Package transport provides HTTP handlers for the verification domain.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/monito83/OgWalletBot/internal/verification/domain"
)

// Service defines the verification service interface for HTTP transport.
type Service interface {
	Initiate(ctx context.Context, in domain.InitiateRequest) (*domain.Initiation, error)
	Status(ctx context.Context, address string) (*domain.StatusReport, error)
	Cancel(ctx context.Context, code, claimantID string) error
	LookupClaimant(ctx context.Context, address string) (*domain.Owner, error)
	ManualVerify(ctx context.Context, txID string) (*domain.TransferReport, error)
	ForceProcess(ctx context.Context, txID string) (*domain.TransferReport, error)
	ListPending(ctx context.Context) []domain.PendingView
	ReconcileNow(ctx context.Context) (*domain.CycleReport, error)
	Mode(ctx context.Context) domain.EngineMode
}

// Handler handles HTTP requests for verification.
type Handler struct {
	svc Service
}

// NewHandler creates a new verification HTTP handler.
func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterReadRoutes registers the public status route.
func (h *Handler) RegisterReadRoutes(r chi.Router) {
	r.Get("/status", h.handleStatus)
}

// RegisterWriteRoutes registers the claimant routes (auth required).
func (h *Handler) RegisterWriteRoutes(r chi.Router) {
	r.Post("/", h.handleInitiate)
	r.Delete("/{code}", h.handleCancel)
}

// RegisterAdminRoutes registers operator routes (auth required).
func (h *Handler) RegisterAdminRoutes(r chi.Router) {
	r.Get("/verifications", h.handleListPending)
	r.Delete("/verifications/{code}", h.handleAdminCancel)
	r.Get("/claims/{address}", h.handleLookupClaimant)
	r.Post("/transfers/{hash}/verify", h.handleManualVerify)
	r.Post("/transfers/{hash}/force", h.handleForceProcess)
	r.Post("/reconcile", h.handleReconcile)
	r.Get("/mode", h.handleMode)
}

func (h *Handler) handleInitiate(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Failed to read request body")
		return
	}

	var req InitiateRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON")
		return
	}

	result, err := h.svc.Initiate(r.Context(), req.ToDomain())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	status := http.StatusCreated
	if result.Method == domain.MethodDirect {
		status = http.StatusOK
	}
	writeJSON(w, status, result)
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	address := r.URL.Query().Get("address")
	if address == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "address query parameter is required")
		return
	}

	result, err := h.svc.Status(r.Context(), address)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	claimantID := r.URL.Query().Get("claimantId")
	if claimantID == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "claimantId query parameter is required")
		return
	}
	h.cancel(w, r, claimantID)
}

func (h *Handler) handleAdminCancel(w http.ResponseWriter, r *http.Request) {
	h.cancel(w, r, "")
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request, claimantID string) {
	code := chi.URLParam(r, "code")
	if err := h.svc.Cancel(r.Context(), code, claimantID); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListPending(w http.ResponseWriter, r *http.Request) {
	pending := h.svc.ListPending(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"data":  pending,
		"count": len(pending),
	})
}

func (h *Handler) handleLookupClaimant(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	owner, err := h.svc.LookupClaimant(r.Context(), address)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"address": address,
		"owner":   owner,
	})
}

func (h *Handler) handleManualVerify(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.ManualVerify(r.Context(), chi.URLParam(r, "hash"))
	h.writeTransferResult(w, result, err)
}

func (h *Handler) handleForceProcess(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.ForceProcess(r.Context(), chi.URLParam(r, "hash"))
	h.writeTransferResult(w, result, err)
}

func (h *Handler) writeTransferResult(w http.ResponseWriter, result *domain.TransferReport, err error) {
	if err != nil && result == nil {
		writeDomainError(w, err)
		return
	}
	if err != nil {
		// decided but not persisted; the caller may retry
		writeJSON(w, http.StatusInternalServerError, result)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleReconcile(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.ReconcileNow(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if result.Skipped {
		writeJSON(w, http.StatusAccepted, result)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleMode(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Mode(r.Context()))
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidAddress),
		errors.Is(err, domain.ErrInvalidCode),
		errors.Is(err, domain.ErrInvalidTransfer),
		errors.Is(err, domain.ErrInvalidClaimant),
		errors.Is(err, domain.ErrInvalidOrigin):
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
	case errors.Is(err, domain.ErrWrongDestination):
		writeError(w, http.StatusUnprocessableEntity, "WRONG_DESTINATION", err.Error())
	case errors.Is(err, domain.ErrAlreadyClaimed):
		writeError(w, http.StatusConflict, "ALREADY_CLAIMED", err.Error())
	case errors.Is(err, domain.ErrRequestInProgress):
		writeError(w, http.StatusConflict, "REQUEST_IN_PROGRESS", err.Error())
	case errors.Is(err, domain.ErrNotEligible):
		writeError(w, http.StatusForbidden, "NOT_ELIGIBLE", err.Error())
	case errors.Is(err, domain.ErrForbidden):
		writeError(w, http.StatusForbidden, "FORBIDDEN", err.Error())
	case errors.Is(err, domain.ErrRequestNotFound),
		errors.Is(err, domain.ErrTransferNotFound),
		errors.Is(err, domain.ErrNotClaimed):
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, domain.ErrScanningUnavailable),
		errors.Is(err, domain.ErrUpstreamUnavailable):
		writeError(w, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", err.Error())
	case errors.Is(err, domain.ErrCodeSpaceExhausted):
		writeError(w, http.StatusServiceUnavailable, "TRY_AGAIN", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
	}
}

// Helper functions

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

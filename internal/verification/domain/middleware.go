package domain

import (
	"context"
	"log/slog"
	"time"
)

// loggingService is the interface required for logging middleware.
type loggingService interface {
	Initiate(ctx context.Context, in InitiateRequest) (*Initiation, error)
	Status(ctx context.Context, address string) (*StatusReport, error)
	Cancel(ctx context.Context, code, claimantID string) error
	LookupClaimant(ctx context.Context, address string) (*Owner, error)
	ManualVerify(ctx context.Context, txID string) (*TransferReport, error)
	ForceProcess(ctx context.Context, txID string) (*TransferReport, error)
	ListPending(ctx context.Context) []PendingView
	ReconcileNow(ctx context.Context) (*CycleReport, error)
	Mode(ctx context.Context) EngineMode
}

// LoggingMiddleware returns a service middleware that logs all operations.
func LoggingMiddleware(logger *slog.Logger) func(loggingService) *loggingMiddleware {
	return func(next loggingService) *loggingMiddleware {
		return &loggingMiddleware{
			next:   next,
			logger: logger,
		}
	}
}

type loggingMiddleware struct {
	next   loggingService
	logger *slog.Logger
}

func (m *loggingMiddleware) Initiate(ctx context.Context, in InitiateRequest) (*Initiation, error) {
	start := time.Now()
	res, err := m.next.Initiate(ctx, in)
	method := ""
	if res != nil {
		method = res.Method
	}
	m.logger.Info("Initiate",
		"claimant", in.ClaimantID,
		"address", in.Address,
		"method", method,
		"duration", time.Since(start),
		"error", err,
	)
	return res, err
}

func (m *loggingMiddleware) Status(ctx context.Context, address string) (*StatusReport, error) {
	start := time.Now()
	res, err := m.next.Status(ctx, address)
	m.logger.Debug("Status",
		"address", address,
		"duration", time.Since(start),
		"error", err,
	)
	return res, err
}

func (m *loggingMiddleware) Cancel(ctx context.Context, code, claimantID string) error {
	start := time.Now()
	err := m.next.Cancel(ctx, code, claimantID)
	m.logger.Info("Cancel",
		"code", code,
		"claimant", claimantID,
		"duration", time.Since(start),
		"error", err,
	)
	return err
}

func (m *loggingMiddleware) LookupClaimant(ctx context.Context, address string) (*Owner, error) {
	start := time.Now()
	res, err := m.next.LookupClaimant(ctx, address)
	m.logger.Debug("LookupClaimant",
		"address", address,
		"duration", time.Since(start),
		"error", err,
	)
	return res, err
}

func (m *loggingMiddleware) ManualVerify(ctx context.Context, txID string) (*TransferReport, error) {
	start := time.Now()
	res, err := m.next.ManualVerify(ctx, txID)
	m.logger.Info("ManualVerify",
		"tx", txID,
		"outcome", outcomeOf(res),
		"duration", time.Since(start),
		"error", err,
	)
	return res, err
}

func (m *loggingMiddleware) ForceProcess(ctx context.Context, txID string) (*TransferReport, error) {
	start := time.Now()
	res, err := m.next.ForceProcess(ctx, txID)
	m.logger.Info("ForceProcess",
		"tx", txID,
		"outcome", outcomeOf(res),
		"duration", time.Since(start),
		"error", err,
	)
	return res, err
}

func (m *loggingMiddleware) ListPending(ctx context.Context) []PendingView {
	start := time.Now()
	res := m.next.ListPending(ctx)
	m.logger.Debug("ListPending",
		"count", len(res),
		"duration", time.Since(start),
	)
	return res
}

func (m *loggingMiddleware) ReconcileNow(ctx context.Context) (*CycleReport, error) {
	start := time.Now()
	res, err := m.next.ReconcileNow(ctx)
	transfers := 0
	if res != nil {
		transfers = len(res.Transfers)
	}
	m.logger.Info("ReconcileNow",
		"transfers", transfers,
		"duration", time.Since(start),
		"error", err,
	)
	return res, err
}

func (m *loggingMiddleware) Mode(ctx context.Context) EngineMode {
	return m.next.Mode(ctx)
}

func outcomeOf(r *TransferReport) Outcome {
	if r == nil {
		return ""
	}
	return r.Outcome
}

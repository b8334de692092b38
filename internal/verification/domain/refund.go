package domain

import (
	"context"
	"errors"
	"log/slog"
	"math/big"

	"github.com/monito83/OgWalletBot/internal/chains"
	"github.com/monito83/OgWalletBot/internal/observability/metrics"
)

// RefundIssuer submits refunds through the service wallet. Each call makes
// exactly one submission attempt.
type RefundIssuer struct {
	sender chains.Sender
	audit  AuditRecorder
	logger *slog.Logger
}

// NewRefundIssuer creates a refund issuer. A nil sender makes every Issue
// fail with ErrScanningUnavailable.
func NewRefundIssuer(sender chains.Sender, audit AuditRecorder, logger *slog.Logger) *RefundIssuer {
	if audit == nil {
		audit = noopAudit{}
	}
	return &RefundIssuer{sender: sender, audit: audit, logger: logger}
}

// Issue sends amount to `to`. Failures are logged and audited, then returned.
func (r *RefundIssuer) Issue(ctx context.Context, to string, amount *big.Int, reason string) (string, error) {
	if r.sender == nil {
		return "", ErrScanningUnavailable
	}
	if amount == nil || amount.Sign() <= 0 {
		return "", errors.New("refund amount must be positive")
	}

	txID, err := r.sender.Send(ctx, to, amount)
	if err != nil {
		metrics.Refund("failed")
		r.logger.Error("refund failed", "to", to, "amount", amount.String(), "reason", reason, "error", err)
		r.audit.RecordEvent(ctx, EventRefundFailed, map[string]string{
			"to":     to,
			"amount": amount.String(),
			"reason": reason,
			"error":  err.Error(),
		})
		return "", err
	}

	metrics.Refund("sent")
	r.logger.Info("refund issued", "to", to, "amount", amount.String(), "reason", reason, "tx", txID)
	r.audit.RecordEvent(ctx, EventRefundIssued, map[string]string{
		"to":     to,
		"amount": amount.String(),
		"reason": reason,
		"tx":     txID,
	})
	return txID, nil
}

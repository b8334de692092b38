package domain

import (
	"context"
	"time"
)

// CredentialGranter gives a claimant the credential. Granting to a claimant
// who already holds it must succeed.
type CredentialGranter interface {
	GrantCredential(ctx context.Context, claimantID, originContext string) error
}

// Notifier delivers a best-effort message to a claimant.
type Notifier interface {
	Notify(ctx context.Context, claimantID, message string) error
}

// AuditRecorder appends to the audit log. Failures are the recorder's
// problem; callers do not check them.
type AuditRecorder interface {
	RecordEvent(ctx context.Context, kind string, details map[string]string)
}

// ClaimLedger is the claim store the engine finalizes into.
type ClaimLedger interface {
	IsClaimed(address string) bool
	Claim(ctx context.Context, address, claimantID, claimantLabel string, at time.Time) error
}

// Audit event kinds.
const (
	EventRequested      = "requested"
	EventFinalized      = "finalized"
	EventDirectGrant    = "direct_grant"
	EventRejected       = "rejected"
	EventExpired        = "expired"
	EventCancelled      = "cancelled"
	EventRefundIssued   = "refund_issued"
	EventRefundFailed   = "refund_failed"
	EventGrantFailed    = "grant_failed"
	EventManualVerify   = "manual_verify"
	EventForceProcessed = "force_processed"
)

type noopGranter struct{}

func (noopGranter) GrantCredential(context.Context, string, string) error { return nil }

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, string, string) error { return nil }

type noopAudit struct{}

func (noopAudit) RecordEvent(context.Context, string, map[string]string) {}

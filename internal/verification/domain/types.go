// Package domain contains the verification reconciliation engine: pending
// requests, transfer matching, the scan/sweep loop and the command surface
// built on top of it.
package domain

import (
	"time"

	"github.com/monito83/OgWalletBot/internal/chains"
)

// Request is a live verification request awaiting payment.
type Request struct {
	Code          string    `json:"code"`
	ClaimantID    string    `json:"claimantId"`
	ClaimantLabel string    `json:"claimantLabel"`
	Address       string    `json:"address"`
	OriginContext string    `json:"originContext,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// ExpiresAt returns when the request stops being live.
func (r Request) ExpiresAt(timeout time.Duration) time.Time {
	return r.CreatedAt.Add(timeout)
}

// Outcome is the result of evaluating one candidate transfer.
type Outcome string

// Match outcomes.
const (
	OutcomeAccepted         Outcome = "accepted"
	OutcomeWrongAmount      Outcome = "wrong_amount"
	OutcomeUnmatched        Outcome = "unmatched"
	OutcomeNotEligible      Outcome = "not_eligible"
	OutcomeAlreadyClaimed   Outcome = "already_claimed"
	OutcomeAlreadyProcessed Outcome = "already_processed"
)

// RefundOwed reports whether the sender gets their payment back because the
// transfer was rejected. Accepted transfers are refunded separately.
func (o Outcome) RefundOwed() bool {
	switch o {
	case OutcomeUnmatched, OutcomeNotEligible, OutcomeAlreadyClaimed:
		return true
	default:
		return false
	}
}

// MatchResult is the decision for one transfer. Request is nil for
// OutcomeWrongAmount and OutcomeUnmatched.
type MatchResult struct {
	Outcome  Outcome
	Request  *Request
	Transfer chains.Transfer
}

// TransferReport describes what the engine did with one transfer.
type TransferReport struct {
	TransferID  string  `json:"transferId"`
	From        string  `json:"from"`
	Amount      string  `json:"amount"`
	BlockHeight uint64  `json:"blockHeight"`
	Outcome     Outcome `json:"outcome"`
	Code        string  `json:"code,omitempty"`
	Address     string  `json:"address,omitempty"`
	ClaimantID  string  `json:"claimantId,omitempty"`
	RefundTx    string  `json:"refundTx,omitempty"`
	RefundError string  `json:"refundError,omitempty"`
	Error       string  `json:"error,omitempty"`
}

// CycleReport summarizes one reconciliation cycle.
type CycleReport struct {
	Skipped      bool             `json:"skipped"`
	Head         uint64           `json:"head,omitempty"`
	FailedBlocks int              `json:"failedBlocks,omitempty"`
	Transfers    []TransferReport `json:"transfers"`
	Duration     time.Duration    `json:"duration"`
	TimedOut     bool             `json:"timedOut,omitempty"`
}

// InitiateRequest is a claimant asking to verify an address.
type InitiateRequest struct {
	ClaimantID    string `json:"claimantId"`
	ClaimantLabel string `json:"claimantLabel"`
	Address       string `json:"address"`
	OriginContext string `json:"originContext,omitempty"`
}

// Verification methods.
const (
	MethodPayment = "payment"
	MethodDirect  = "direct"
)

// Initiation tells the claimant what to do next.
type Initiation struct {
	Method           string    `json:"method"`
	Request          *Request  `json:"request,omitempty"`
	Amount           string    `json:"amount,omitempty"`
	Symbol           string    `json:"symbol,omitempty"`
	ReceivingAddress string    `json:"receivingAddress,omitempty"`
	ExpiresAt        time.Time `json:"expiresAt,omitempty"`
	Granted          bool      `json:"granted,omitempty"`
	Instructions     string    `json:"instructions"`
}

// Address states reported by Status.
const (
	StateClaimed     = "claimed"
	StatePending     = "pending"
	StateEligible    = "eligible"
	StateNotEligible = "not_eligible"
)

// Owner identifies who holds a claim.
type Owner struct {
	ClaimantID    string    `json:"claimantId"`
	ClaimantLabel string    `json:"claimantLabel"`
	VerifiedAt    time.Time `json:"verifiedAt"`
}

// StatusReport describes where an address stands.
type StatusReport struct {
	Address          string        `json:"address"`
	State            string        `json:"state"`
	Owner            *Owner        `json:"owner,omitempty"`
	Request          *Request      `json:"request,omitempty"`
	ExpiresAt        *time.Time    `json:"expiresAt,omitempty"`
	Remaining        time.Duration `json:"remaining,omitempty"`
	Amount           string        `json:"amount,omitempty"`
	Symbol           string        `json:"symbol,omitempty"`
	ReceivingAddress string        `json:"receivingAddress,omitempty"`
}

// PendingView is a live request with its expiry, for the admin listing.
type PendingView struct {
	Request
	ExpiresAt time.Time `json:"expiresAt"`
}

// EngineMode reports whether payment scanning is running.
type EngineMode struct {
	Scanning         bool   `json:"scanning"`
	Reason           string `json:"reason,omitempty"`
	ReceivingAddress string `json:"receivingAddress,omitempty"`
	Strategy         string `json:"strategy"`
	Pending          int    `json:"pending"`
	Eligible         int    `json:"eligible"`
	Claimed          int    `json:"claimed"`
}

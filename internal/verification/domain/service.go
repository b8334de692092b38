package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/monito83/OgWalletBot/internal/chains"
	claimsdomain "github.com/monito83/OgWalletBot/internal/claims/domain"
	"github.com/monito83/OgWalletBot/internal/observability/metrics"
	"github.com/monito83/OgWalletBot/internal/validation"
)

type service struct {
	engine *Engine
}

// NewService creates the verification command surface over engine.
func NewService(engine *Engine) *service {
	return &service{engine: engine}
}

// Initiate opens a verification request for an eligible, unclaimed address.
// A claimant asking again for an address they already have a live request on
// gets that request back.
func (s *service) Initiate(ctx context.Context, in InitiateRequest) (*Initiation, error) {
	in.ClaimantID = strings.TrimSpace(in.ClaimantID)
	if in.ClaimantID == "" {
		metrics.VerificationRequest("invalid")
		return nil, ErrInvalidClaimant
	}
	if err := validation.ValidateAddress(in.Address); err != nil {
		metrics.VerificationRequest("invalid")
		return nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	addr := validation.NormalizeAddress(in.Address)
	in.OriginContext = strings.TrimSpace(in.OriginContext)
	if in.OriginContext == "" && s.engine.cfg.RequireOrigin {
		metrics.VerificationRequest("invalid")
		return nil, ErrInvalidOrigin
	}
	if in.ClaimantLabel == "" {
		in.ClaimantLabel = in.ClaimantID
	}

	e := s.engine
	e.mu.Lock()

	if owner, ok := e.claims.OwnerOf(addr); ok {
		e.mu.Unlock()
		metrics.VerificationRequest("already_claimed")
		if owner.ClaimantID == in.ClaimantID {
			return nil, fmt.Errorf("%w: already linked to your account", ErrAlreadyClaimed)
		}
		return nil, fmt.Errorf("%w: linked to another account", ErrAlreadyClaimed)
	}
	if !e.registry.IsEligible(addr) {
		e.mu.Unlock()
		metrics.VerificationRequest("not_eligible")
		return nil, ErrNotEligible
	}
	if existing, ok := e.pending.FindByAddress(addr); ok {
		e.mu.Unlock()
		if existing.ClaimantID != in.ClaimantID {
			metrics.VerificationRequest("in_progress")
			return nil, ErrRequestInProgress
		}
		metrics.VerificationRequest("reused")
		return s.paymentInitiation(existing), nil
	}

	if !e.Scanning() {
		if !e.cfg.DirectGrantFallback {
			e.mu.Unlock()
			metrics.VerificationRequest("unavailable")
			return nil, ErrScanningUnavailable
		}
		err := e.claims.Claim(ctx, addr, in.ClaimantID, in.ClaimantLabel, e.now())
		e.mu.Unlock()
		if errors.Is(err, claimsdomain.ErrAlreadyClaimed) {
			metrics.VerificationRequest("already_claimed")
			return nil, ErrAlreadyClaimed
		}
		if err != nil {
			return nil, fmt.Errorf("recording claim: %w", err)
		}
		return s.directGrant(ctx, addr, in), nil
	}

	req, err := e.pending.Create(in.ClaimantID, in.ClaimantLabel, addr, in.OriginContext)
	n := e.pending.Len()
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}

	metrics.VerificationRequest("created")
	metrics.PendingRequests(n)
	e.audit.RecordEvent(ctx, EventRequested, map[string]string{
		"code":     req.Code,
		"address":  req.Address,
		"claimant": req.ClaimantID,
	})
	return s.paymentInitiation(req), nil
}

func (s *service) directGrant(ctx context.Context, addr string, in InitiateRequest) *Initiation {
	e := s.engine
	metrics.VerificationRequest("direct")
	metrics.ClaimFinalized()

	granted := true
	if err := e.granter.GrantCredential(ctx, in.ClaimantID, in.OriginContext); err != nil {
		granted = false
		metrics.CollaboratorFailure("granter")
		e.logger.Error("failed to grant credential", "claimant", in.ClaimantID, "address", addr, "error", err)
		e.audit.RecordEvent(ctx, EventGrantFailed, map[string]string{
			"claimant": in.ClaimantID,
			"address":  addr,
			"error":    err.Error(),
		})
	}
	e.audit.RecordEvent(ctx, EventDirectGrant, map[string]string{
		"address":  addr,
		"claimant": in.ClaimantID,
	})
	e.logger.Info("address verified without payment", "address", addr, "claimant", in.ClaimantID)

	msg := fmt.Sprintf("%s is now linked to your account.", addr)
	if !granted {
		msg += " The role could not be assigned yet; an admin has been notified."
	}
	return &Initiation{
		Method:       MethodDirect,
		Granted:      granted,
		Instructions: msg,
	}
}

func (s *service) paymentInitiation(req Request) *Initiation {
	e := s.engine
	amount := e.displayAmount()
	expires := req.ExpiresAt(e.cfg.Timeout)

	var b strings.Builder
	fmt.Fprintf(&b, "Send exactly %s %s from %s to %s within %s.",
		amount, e.cfg.Symbol, req.Address, e.cfg.ReceivingAddress, e.cfg.Timeout.Round(time.Second))
	if _, ok := e.strategy.(CodeStrategy); ok {
		fmt.Fprintf(&b, " Put the code %s in the transaction data.", req.Code)
	}
	b.WriteString(" The payment is refunded once it is verified.")

	r := req
	return &Initiation{
		Method:           MethodPayment,
		Request:          &r,
		Amount:           amount,
		Symbol:           e.cfg.Symbol,
		ReceivingAddress: e.cfg.ReceivingAddress,
		ExpiresAt:        expires,
		Instructions:     b.String(),
	}
}

// Status reports whether address is claimed, pending or eligible.
func (s *service) Status(ctx context.Context, address string) (*StatusReport, error) {
	if err := validation.ValidateAddress(address); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	addr := validation.NormalizeAddress(address)
	e := s.engine
	rep := &StatusReport{Address: addr}

	if owner, ok := e.claims.OwnerOf(addr); ok {
		rep.State = StateClaimed
		rep.Owner = &Owner{
			ClaimantID:    owner.ClaimantID,
			ClaimantLabel: owner.ClaimantLabel,
			VerifiedAt:    owner.VerifiedAt,
		}
		return rep, nil
	}

	if req, ok := e.pending.FindByAddress(addr); ok {
		expires := req.ExpiresAt(e.cfg.Timeout)
		remaining := expires.Sub(e.now())
		if remaining < 0 {
			remaining = 0
		}
		rep.State = StatePending
		rep.Request = &req
		rep.ExpiresAt = &expires
		rep.Remaining = remaining
		rep.Amount = e.displayAmount()
		rep.Symbol = e.cfg.Symbol
		rep.ReceivingAddress = e.cfg.ReceivingAddress
		return rep, nil
	}

	if e.registry.IsEligible(addr) {
		rep.State = StateEligible
		if e.Scanning() {
			rep.Amount = e.displayAmount()
			rep.Symbol = e.cfg.Symbol
			rep.ReceivingAddress = e.cfg.ReceivingAddress
		}
		return rep, nil
	}

	rep.State = StateNotEligible
	return rep, nil
}

// Cancel removes a live request. An empty claimantID skips the ownership
// check and is reserved for admin callers.
func (s *service) Cancel(ctx context.Context, code, claimantID string) error {
	code = strings.ToUpper(strings.TrimSpace(code))
	e := s.engine
	if err := validation.ValidateRequestCode(code, e.cfg.CodeLength); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCode, err)
	}

	e.mu.Lock()
	req, ok := e.pending.FindByCode(code)
	if !ok {
		e.mu.Unlock()
		return ErrRequestNotFound
	}
	if claimantID != "" && req.ClaimantID != claimantID {
		e.mu.Unlock()
		return ErrForbidden
	}
	e.pending.Remove(code)
	n := e.pending.Len()
	e.mu.Unlock()

	metrics.PendingRequests(n)
	e.audit.RecordEvent(ctx, EventCancelled, map[string]string{
		"code":     req.Code,
		"address":  req.Address,
		"claimant": req.ClaimantID,
	})
	return nil
}

// LookupClaimant returns who claimed address.
func (s *service) LookupClaimant(ctx context.Context, address string) (*Owner, error) {
	if err := validation.ValidateAddress(address); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	owner, ok := s.engine.claims.OwnerOf(validation.NormalizeAddress(address))
	if !ok {
		return nil, ErrNotClaimed
	}
	return &Owner{
		ClaimantID:    owner.ClaimantID,
		ClaimantLabel: owner.ClaimantLabel,
		VerifiedAt:    owner.VerifiedAt,
	}, nil
}

// ManualVerify runs one transfer through the normal matching path.
func (s *service) ManualVerify(ctx context.Context, txID string) (*TransferReport, error) {
	return s.checkTransfer(ctx, txID, false)
}

// ForceProcess runs one transfer through matching without the amount check.
func (s *service) ForceProcess(ctx context.Context, txID string) (*TransferReport, error) {
	return s.checkTransfer(ctx, txID, true)
}

func (s *service) checkTransfer(ctx context.Context, txID string, forced bool) (*TransferReport, error) {
	if err := validation.ValidateTxHash(txID); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTransfer, err)
	}
	e := s.engine
	if e.ledger == nil {
		return nil, ErrScanningUnavailable
	}

	t, err := e.ledger.TransferByID(ctx, strings.ToLower(txID))
	if errors.Is(err, chains.ErrTransferNotFound) {
		return nil, ErrTransferNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	if !sameAddress(t.To, e.cfg.ReceivingAddress) {
		return nil, ErrWrongDestination
	}

	kind := EventManualVerify
	if forced {
		kind = EventForceProcessed
	}
	e.audit.RecordEvent(ctx, kind, map[string]string{
		"tx":     t.ID,
		"from":   t.From,
		"amount": amountString(t.Amount),
	})

	rep := e.processTransfer(ctx, *t, forced)
	if rep.Error != "" {
		return &rep, fmt.Errorf("processing transfer: %s", rep.Error)
	}
	return &rep, nil
}

// ListPending returns live requests, oldest first.
func (s *service) ListPending(ctx context.Context) []PendingView {
	e := s.engine
	reqs := e.pending.List()
	views := make([]PendingView, 0, len(reqs))
	for _, r := range reqs {
		views = append(views, PendingView{Request: r, ExpiresAt: r.ExpiresAt(e.cfg.Timeout)})
	}
	return views
}

// ReconcileNow runs a scan cycle immediately.
func (s *service) ReconcileNow(ctx context.Context) (*CycleReport, error) {
	if !s.engine.Scanning() {
		return nil, ErrScanningUnavailable
	}
	rep := s.engine.RunCycle(ctx)
	return &rep, nil
}

// Mode reports the engine mode.
func (s *service) Mode(ctx context.Context) EngineMode {
	return s.engine.Mode()
}

package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/monito83/OgWalletBot/internal/chains"
	claimsdomain "github.com/monito83/OgWalletBot/internal/claims/domain"
	"github.com/monito83/OgWalletBot/internal/observability/metrics"
	"github.com/monito83/OgWalletBot/internal/validation"
)

// finalizeTimeout bounds the work on one transfer, including the grant,
// the notification and the refund.
const finalizeTimeout = 2 * time.Minute

// EngineConfig holds the reconciliation parameters.
type EngineConfig struct {
	ReceivingAddress    string
	Amount              *big.Int
	RefundAmount        *big.Int
	Timeout             time.Duration
	ScanInterval        time.Duration
	SweepInterval       time.Duration
	Window              uint64
	Decimals            int
	Symbol              string
	CodeLength          int
	DirectGrantFallback bool
	// RequireOrigin rejects requests without an origin context, for granters
	// that cannot grant without one.
	RequireOrigin bool
}

// Registry is the eligibility view the engine needs.
type Registry interface {
	IsEligible(address string) bool
	Count() int
}

// Claims is the claim ledger view the engine needs.
type Claims interface {
	ClaimLedger
	OwnerOf(address string) (claimsdomain.ClaimInfo, bool)
	Count() int
}

// TransferScanner finds recent transfers to the receiving address.
type TransferScanner interface {
	ScanRecentTransfers(ctx context.Context, to string, window uint64) ScanResult
}

// Deps are the engine's collaborators. Ledger and Scanner may both be nil,
// in which case the engine runs without payment scanning and Reason says why.
type Deps struct {
	Registry  Registry
	Claims    Claims
	Pending   *PendingStore
	Strategy  Strategy
	Ledger    chains.Ledger
	Scanner   TransferScanner
	Refunds   *RefundIssuer
	Transfers TransferLog
	Granter   CredentialGranter
	Notifier  Notifier
	Audit     AuditRecorder
	Clock     func() time.Time
	Logger    *slog.Logger
	Reason    string
}

// Engine owns the pending requests and reconciles them against incoming
// transfers. All state transitions happen under mu; collaborator calls
// happen after it is released.
type Engine struct {
	mu      sync.Mutex
	cycleMu sync.Mutex

	cfg      EngineConfig
	registry Registry
	claims   Claims
	pending  *PendingStore
	matcher  *Matcher
	strategy Strategy
	ledger   chains.Ledger
	scanner  TransferScanner
	refunds  *RefundIssuer
	dedup    *dedupCache
	granter  CredentialGranter
	notifier Notifier
	audit    AuditRecorder
	now      func() time.Time
	logger   *slog.Logger
	reason   string
}

// NewEngine wires an engine from its collaborators.
func NewEngine(cfg EngineConfig, deps Deps) *Engine {
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Granter == nil {
		deps.Granter = noopGranter{}
	}
	if deps.Notifier == nil {
		deps.Notifier = noopNotifier{}
	}
	if deps.Audit == nil {
		deps.Audit = noopAudit{}
	}
	if deps.Strategy == nil {
		deps.Strategy = SenderStrategy{}
	}
	if deps.Pending == nil {
		deps.Pending = NewPendingStore(cfg.CodeLength, deps.Clock)
	}
	if deps.Refunds == nil {
		deps.Refunds = NewRefundIssuer(nil, deps.Audit, deps.Logger)
	}
	if cfg.Amount == nil {
		cfg.Amount = new(big.Int)
	}
	if cfg.RefundAmount == nil {
		cfg.RefundAmount = new(big.Int).Set(cfg.Amount)
	}
	cfg.ReceivingAddress = validation.NormalizeAddress(cfg.ReceivingAddress)

	reason := deps.Reason
	if deps.Scanner == nil && reason == "" {
		reason = "no ledger configured"
	}

	return &Engine{
		cfg:      cfg,
		registry: deps.Registry,
		claims:   deps.Claims,
		pending:  deps.Pending,
		matcher:  NewMatcher(deps.Strategy, cfg.Amount, deps.Pending, deps.Registry, deps.Claims),
		strategy: deps.Strategy,
		ledger:   deps.Ledger,
		scanner:  deps.Scanner,
		refunds:  deps.Refunds,
		dedup:    newDedupCache(deps.Transfers, deps.Logger),
		granter:  deps.Granter,
		notifier: deps.Notifier,
		audit:    deps.Audit,
		now:      deps.Clock,
		logger:   deps.Logger,
		reason:   reason,
	}
}

// Scanning reports whether payment verification is available.
func (e *Engine) Scanning() bool {
	return e.scanner != nil
}

// Warm loads the processed transfers of the current window into memory so a
// restart does not act on them twice.
func (e *Engine) Warm(ctx context.Context) error {
	if e.ledger == nil {
		return nil
	}
	head, err := e.ledger.HeadHeight(ctx)
	if err != nil {
		return fmt.Errorf("reading ledger head: %w", err)
	}
	since := uint64(0)
	if head > 2*e.cfg.Window {
		since = head - 2*e.cfg.Window
	}
	if err := e.dedup.warm(ctx, since); err != nil {
		return fmt.Errorf("loading processed transfers: %w", err)
	}
	e.logger.Info("processed transfers loaded", "since", since, "count", e.dedup.len())
	return nil
}

// Run drives scan cycles and expiry sweeps until ctx is done. Without a
// ledger only sweeps run.
func (e *Engine) Run(ctx context.Context) {
	sweep := time.NewTicker(e.cfg.SweepInterval)
	defer sweep.Stop()

	var scanC <-chan time.Time
	if e.Scanning() {
		scan := time.NewTicker(e.cfg.ScanInterval)
		defer scan.Stop()
		scanC = scan.C
		e.logger.Info("reconciliation started",
			"receiving", e.cfg.ReceivingAddress,
			"strategy", e.strategy.Name(),
			"interval", e.cfg.ScanInterval,
			"window", e.cfg.Window,
		)
		e.RunCycle(ctx)
	} else {
		e.logger.Warn("payment scanning disabled", "reason", e.reason)
	}

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("reconciliation stopped")
			return
		case <-scanC:
			e.RunCycle(ctx)
		case <-sweep.C:
			e.SweepExpired(ctx)
		}
	}
}

// RunCycle scans the recent window once and processes every transfer found.
// A cycle that starts while another is running is skipped.
func (e *Engine) RunCycle(ctx context.Context) CycleReport {
	if e.scanner == nil {
		return CycleReport{Skipped: true, Transfers: []TransferReport{}}
	}
	if !e.cycleMu.TryLock() {
		e.logger.Debug("previous cycle still running, skipping")
		metrics.ScanCycle("skipped", 0)
		return CycleReport{Skipped: true, Transfers: []TransferReport{}}
	}
	defer e.cycleMu.Unlock()

	start := time.Now()
	if e.cfg.ScanInterval > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.ScanInterval)
		defer cancel()
	}

	scan := e.scanner.ScanRecentTransfers(ctx, e.cfg.ReceivingAddress, e.cfg.Window)
	report := CycleReport{
		Head:         scan.Head,
		FailedBlocks: scan.FailedBlocks,
		Transfers:    []TransferReport{},
	}
	metrics.ScanBlocksFailed(scan.FailedBlocks)

	for _, t := range scan.Transfers {
		if ctx.Err() != nil {
			report.TimedOut = true
			break
		}
		tr := e.processTransfer(ctx, t, false)
		if tr.Outcome == OutcomeAlreadyProcessed {
			continue
		}
		report.Transfers = append(report.Transfers, tr)
	}

	if scan.HeadKnown && scan.Head > 2*e.cfg.Window {
		if n := e.dedup.evict(scan.Head - 2*e.cfg.Window); n > 0 {
			e.logger.Debug("evicted processed transfers", "count", n)
		}
	}

	result := "ok"
	switch {
	case !scan.HeadKnown:
		result = "upstream_unavailable"
	case report.TimedOut:
		result = "timeout"
		e.logger.Warn("cycle timed out", "processed", len(report.Transfers), "found", len(scan.Transfers))
	}
	report.Duration = time.Since(start)
	metrics.ScanCycle(result, report.Duration)
	if len(report.Transfers) > 0 {
		e.logger.Info("cycle complete", "head", scan.Head, "transfers", len(report.Transfers), "duration", report.Duration)
	}
	return report
}

// SweepExpired drops requests older than the timeout.
func (e *Engine) SweepExpired(ctx context.Context) []Request {
	now := e.now()
	e.mu.Lock()
	removed := e.pending.SweepExpired(now, e.cfg.Timeout)
	n := e.pending.Len()
	e.mu.Unlock()

	metrics.PendingRequests(n)
	if len(removed) == 0 {
		return removed
	}
	metrics.RequestsExpired(len(removed))
	for _, r := range removed {
		e.logger.Info("verification request expired", "code", r.Code, "address", r.Address, "claimant", r.ClaimantID)
		e.audit.RecordEvent(ctx, EventExpired, map[string]string{
			"code":     r.Code,
			"address":  r.Address,
			"claimant": r.ClaimantID,
		})
	}
	return removed
}

// processTransfer evaluates and applies one transfer. Forced skips the
// amount check.
func (e *Engine) processTransfer(ctx context.Context, t chains.Transfer, forced bool) TransferReport {
	// Once a transfer is picked up it runs to completion: a claim must not be
	// committed without its grant and refund.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	rep := TransferReport{
		TransferID:  t.ID,
		From:        t.From,
		Amount:      amountString(t.Amount),
		BlockHeight: t.BlockHeight,
	}

	e.mu.Lock()
	done, err := e.dedup.processed(ctx, t)
	if err != nil {
		e.mu.Unlock()
		e.logger.Error("failed to check processed transfer", "tx", t.ID, "error", err)
		rep.Error = err.Error()
		return rep
	}
	if done {
		e.mu.Unlock()
		rep.Outcome = OutcomeAlreadyProcessed
		return rep
	}

	var res MatchResult
	if forced {
		res = e.matcher.EvaluateForced(t)
	} else {
		res = e.matcher.Evaluate(t)
	}

	// Neither case changes state, so the transfer is left unrecorded.
	switch {
	case res.Outcome == OutcomeWrongAmount:
		first := e.dedup.ignore(t)
		e.mu.Unlock()
		rep.Outcome = res.Outcome
		if first {
			metrics.Transfer(string(res.Outcome))
			e.logger.Info("ignoring transfer with wrong amount", "tx", t.ID, "from", t.From, "amount", rep.Amount)
		} else {
			e.logger.Debug("ignoring transfer with wrong amount", "tx", t.ID)
		}
		return rep
	case forced && res.Outcome == OutcomeUnmatched:
		e.mu.Unlock()
		rep.Outcome = res.Outcome
		e.logger.Info("forced transfer matches no pending request", "tx", t.ID, "from", t.From)
		return rep
	}

	switch res.Outcome {
	case OutcomeAccepted:
		req := res.Request
		err := e.claims.Claim(ctx, req.Address, req.ClaimantID, req.ClaimantLabel, e.now())
		switch {
		case errors.Is(err, claimsdomain.ErrAlreadyClaimed):
			res.Outcome = OutcomeAlreadyClaimed
		case err != nil:
			// left unmarked so the next cycle retries it
			e.mu.Unlock()
			e.logger.Error("failed to record claim", "tx", t.ID, "address", req.Address, "error", err)
			rep.Error = err.Error()
			return rep
		}
		e.pending.Remove(req.Code)
	case OutcomeAlreadyClaimed:
		e.pending.Remove(res.Request.Code)
	}
	e.dedup.mark(ctx, t, res.Outcome)
	n := e.pending.Len()
	e.mu.Unlock()

	metrics.Transfer(string(res.Outcome))
	metrics.PendingRequests(n)

	rep.Outcome = res.Outcome
	if res.Request != nil {
		rep.Code = res.Request.Code
		rep.Address = res.Request.Address
		rep.ClaimantID = res.Request.ClaimantID
	}

	e.applyOutcome(ctx, res, &rep)
	return rep
}

// applyOutcome runs the side effects of a decided transfer.
func (e *Engine) applyOutcome(ctx context.Context, res MatchResult, rep *TransferReport) {
	t := res.Transfer

	switch {
	case res.Outcome == OutcomeAccepted:
		req := res.Request
		metrics.ClaimFinalized()
		e.logger.Info("verification finalized",
			"address", req.Address,
			"claimant", req.ClaimantID,
			"code", req.Code,
			"tx", t.ID,
		)
		e.audit.RecordEvent(ctx, EventFinalized, map[string]string{
			"address":  req.Address,
			"claimant": req.ClaimantID,
			"code":     req.Code,
			"tx":       t.ID,
		})
		e.grant(ctx, *req)

		refund := new(big.Int).Set(e.cfg.RefundAmount)
		if t.Amount != nil && refund.Cmp(t.Amount) > 0 {
			refund.Set(t.Amount)
		}
		e.refund(ctx, t, refund, string(OutcomeAccepted), rep)
		e.notify(ctx, req.ClaimantID, fmt.Sprintf(
			"Verification complete: %s is now linked to your account.%s",
			req.Address, e.refundNote(rep),
		))

	case res.Outcome.RefundOwed():
		e.logger.Info("transfer rejected", "tx", t.ID, "from", t.From, "outcome", res.Outcome)
		details := map[string]string{
			"tx":      t.ID,
			"from":    t.From,
			"amount":  rep.Amount,
			"outcome": string(res.Outcome),
		}
		if res.Request != nil {
			details["code"] = res.Request.Code
			details["claimant"] = res.Request.ClaimantID
		}
		e.audit.RecordEvent(ctx, EventRejected, details)
		e.refund(ctx, t, t.Amount, string(res.Outcome), rep)
		if res.Request != nil {
			e.notify(ctx, res.Request.ClaimantID, rejectionMessage(res)+e.refundNote(rep))
		}
	}
}

func (e *Engine) grant(ctx context.Context, req Request) {
	if err := e.granter.GrantCredential(ctx, req.ClaimantID, req.OriginContext); err != nil {
		metrics.CollaboratorFailure("granter")
		e.logger.Error("failed to grant credential", "claimant", req.ClaimantID, "address", req.Address, "error", err)
		e.audit.RecordEvent(ctx, EventGrantFailed, map[string]string{
			"claimant": req.ClaimantID,
			"address":  req.Address,
			"error":    err.Error(),
		})
	}
}

func (e *Engine) notify(ctx context.Context, claimantID, msg string) {
	if err := e.notifier.Notify(ctx, claimantID, msg); err != nil {
		metrics.CollaboratorFailure("notifier")
		e.logger.Warn("failed to notify claimant", "claimant", claimantID, "error", err)
	}
}

func (e *Engine) refund(ctx context.Context, t chains.Transfer, amount *big.Int, reason string, rep *TransferReport) {
	if amount == nil || amount.Sign() <= 0 {
		return
	}
	txID, err := e.refunds.Issue(ctx, t.From, amount, reason)
	if err != nil {
		rep.RefundError = err.Error()
		return
	}
	rep.RefundTx = txID
}

func (e *Engine) refundNote(rep *TransferReport) string {
	if rep.RefundTx == "" {
		return ""
	}
	return fmt.Sprintf(" Your payment was refunded in %s.", rep.RefundTx)
}

func rejectionMessage(res MatchResult) string {
	switch res.Outcome {
	case OutcomeNotEligible:
		return fmt.Sprintf("Verification for %s failed: the address is not on the eligible list.", res.Request.Address)
	case OutcomeAlreadyClaimed:
		return fmt.Sprintf("Verification for %s failed: the address is already linked to another account.", res.Request.Address)
	default:
		return "Verification failed: the payment could not be matched to a request."
	}
}

// Mode reports the engine's scanning state and counts.
func (e *Engine) Mode() EngineMode {
	return EngineMode{
		Scanning:         e.Scanning(),
		Reason:           e.reason,
		ReceivingAddress: e.cfg.ReceivingAddress,
		Strategy:         e.strategy.Name(),
		Pending:          e.pending.Len(),
		Eligible:         e.registry.Count(),
		Claimed:          e.claims.Count(),
	}
}

func (e *Engine) displayAmount() string {
	return chains.FormatUnits(e.cfg.Amount, e.cfg.Decimals)
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func sameAddress(a, b string) bool {
	return strings.EqualFold(a, b)
}

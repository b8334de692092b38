package domain

import (
	"bytes"
	"math/big"
	"strings"

	"github.com/monito83/OgWalletBot/internal/chains"
	"github.com/monito83/OgWalletBot/internal/validation"
)

// PendingLookup is the read side of PendingStore used by strategies.
type PendingLookup interface {
	FindByCode(code string) (Request, bool)
	FindByAddress(address string) (Request, bool)
}

// EligibilityChecker reports registry membership.
type EligibilityChecker interface {
	IsEligible(address string) bool
}

// ClaimChecker reports whether an address was already claimed.
type ClaimChecker interface {
	IsClaimed(address string) bool
}

// Strategy binds a transfer to at most one pending request.
type Strategy interface {
	Name() string
	Resolve(t chains.Transfer, pending PendingLookup) (Request, bool)
}

// SenderStrategy resolves the request whose address sent the transfer.
type SenderStrategy struct{}

// Name implements Strategy.
func (SenderStrategy) Name() string { return "sender" }

// Resolve implements Strategy.
func (SenderStrategy) Resolve(t chains.Transfer, pending PendingLookup) (Request, bool) {
	return pending.FindByAddress(t.From)
}

// CodeStrategy reads a request code from the transfer's data field and
// requires the sender to be the request's address.
type CodeStrategy struct {
	Length int
}

// Name implements Strategy.
func (CodeStrategy) Name() string { return "code" }

// Resolve implements Strategy.
func (s CodeStrategy) Resolve(t chains.Transfer, pending PendingLookup) (Request, bool) {
	code, ok := DecodeCode(t.Data, s.Length)
	if !ok {
		return Request{}, false
	}
	req, ok := pending.FindByCode(code)
	if !ok {
		return Request{}, false
	}
	if req.Address != validation.NormalizeAddress(t.From) {
		return Request{}, false
	}
	return req, true
}

// DecodeCode extracts a request code from an ASCII memo. Surrounding
// whitespace and NUL padding are ignored and letters are upper-cased.
func DecodeCode(data []byte, length int) (string, bool) {
	trimmed := bytes.Trim(data, " \t\r\n\x00")
	if len(trimmed) != length {
		return "", false
	}
	code := strings.ToUpper(string(trimmed))
	if err := validation.ValidateRequestCode(code, length); err != nil {
		return "", false
	}
	return code, true
}

// NewStrategy returns the strategy registered under name.
func NewStrategy(name string, codeLength int) Strategy {
	if name == "code" {
		return CodeStrategy{Length: codeLength}
	}
	return SenderStrategy{}
}

// Matcher evaluates transfers against pending requests. It never mutates
// the stores it reads.
type Matcher struct {
	strategy Strategy
	amount   *big.Int
	pending  PendingLookup
	eligible EligibilityChecker
	claims   ClaimChecker
}

// NewMatcher creates a matcher requiring transfers of exactly amount.
func NewMatcher(strategy Strategy, amount *big.Int, pending PendingLookup, eligible EligibilityChecker, claims ClaimChecker) *Matcher {
	return &Matcher{
		strategy: strategy,
		amount:   new(big.Int).Set(amount),
		pending:  pending,
		eligible: eligible,
		claims:   claims,
	}
}

// Evaluate applies the amount, resolution, eligibility and claim checks in
// that order.
func (m *Matcher) Evaluate(t chains.Transfer) MatchResult {
	return m.evaluate(t, true)
}

// EvaluateForced skips the amount check only.
func (m *Matcher) EvaluateForced(t chains.Transfer) MatchResult {
	return m.evaluate(t, false)
}

func (m *Matcher) evaluate(t chains.Transfer, checkAmount bool) MatchResult {
	res := MatchResult{Transfer: t}

	if checkAmount && (t.Amount == nil || t.Amount.Cmp(m.amount) != 0) {
		res.Outcome = OutcomeWrongAmount
		return res
	}

	req, ok := m.strategy.Resolve(t, m.pending)
	if !ok {
		res.Outcome = OutcomeUnmatched
		return res
	}
	res.Request = &req

	switch {
	case !m.eligible.IsEligible(req.Address):
		res.Outcome = OutcomeNotEligible
	case m.claims.IsClaimed(req.Address):
		res.Outcome = OutcomeAlreadyClaimed
	default:
		res.Outcome = OutcomeAccepted
	}
	return res
}

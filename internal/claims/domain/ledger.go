// Package domain holds the claim ledger: the permanent, first-claim-wins
// binding of an address to the claimant who verified it.
package domain

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/monito83/OgWalletBot/internal/storage"
	"github.com/monito83/OgWalletBot/internal/validation"
)

// Common errors returned by the ledger.
var (
	ErrAlreadyClaimed = errors.New("address already claimed")
	ErrInvalidAddress = errors.New("invalid address")
)

// Store defines the persistence the ledger needs. InsertClaim must return
// storage.ErrClaimExists when the address is already claimed.
type Store interface {
	LoadClaims(ctx context.Context) ([]storage.Claim, error)
	InsertClaim(ctx context.Context, claim storage.Claim) error
}

// ClaimInfo describes who claimed an address and when.
type ClaimInfo struct {
	ClaimantID    string    `json:"claimantId"`
	ClaimantLabel string    `json:"claimantLabel"`
	VerifiedAt    time.Time `json:"verifiedAt"`
}

// Entry pairs an address with its claim.
type Entry struct {
	Address string `json:"address"`
	ClaimInfo
}

// Ledger maps addresses to claims. Entries are never overwritten.
type Ledger struct {
	mu     sync.RWMutex
	claims map[string]ClaimInfo
	store  Store
}

// NewLedger creates an empty ledger backed by store.
func NewLedger(store Store) *Ledger {
	return &Ledger{
		claims: make(map[string]ClaimInfo),
		store:  store,
	}
}

// Load replaces the in-memory ledger with the persisted claims.
func (l *Ledger) Load(ctx context.Context) error {
	rows, err := l.store.LoadClaims(ctx)
	if err != nil {
		return fmt.Errorf("loading claims: %w", err)
	}
	claims := make(map[string]ClaimInfo, len(rows))
	for _, c := range rows {
		addr := validation.NormalizeAddress(c.Address)
		if _, dup := claims[addr]; dup {
			continue
		}
		claims[addr] = ClaimInfo{
			ClaimantID:    c.ClaimantID,
			ClaimantLabel: c.ClaimantLabel,
			VerifiedAt:    c.VerifiedAt,
		}
	}

	l.mu.Lock()
	l.claims = claims
	l.mu.Unlock()
	return nil
}

// IsClaimed reports whether address has been claimed.
func (l *Ledger) IsClaimed(address string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.claims[validation.NormalizeAddress(address)]
	return ok
}

// OwnerOf returns the claim on address, if any.
func (l *Ledger) OwnerOf(address string) (ClaimInfo, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	info, ok := l.claims[validation.NormalizeAddress(address)]
	return info, ok
}

// Claim binds address to claimantID. It fails with ErrAlreadyClaimed if the
// address has any claim, whoever holds it. The claim is persisted before it
// becomes visible.
func (l *Ledger) Claim(ctx context.Context, address, claimantID, claimantLabel string, at time.Time) error {
	addr := validation.NormalizeAddress(address)
	if addr == "" {
		return fmt.Errorf("%w: address cannot be empty", ErrInvalidAddress)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.claims[addr]; ok {
		return ErrAlreadyClaimed
	}

	err := l.store.InsertClaim(ctx, storage.Claim{
		Address:       addr,
		ClaimantID:    claimantID,
		ClaimantLabel: claimantLabel,
		VerifiedAt:    at,
	})
	if errors.Is(err, storage.ErrClaimExists) {
		return ErrAlreadyClaimed
	}
	if err != nil {
		return fmt.Errorf("persisting claim: %w", err)
	}

	l.claims[addr] = ClaimInfo{ClaimantID: claimantID, ClaimantLabel: claimantLabel, VerifiedAt: at}
	return nil
}

// List returns every claim ordered by verification time.
func (l *Ledger) List() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Entry, 0, len(l.claims))
	for addr, info := range l.claims {
		out = append(out, Entry{Address: addr, ClaimInfo: info})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].VerifiedAt.Equal(out[j].VerifiedAt) {
			return out[i].Address < out[j].Address
		}
		return out[i].VerifiedAt.Before(out[j].VerifiedAt)
	})
	return out
}

// ClaimsOf returns the addresses claimed by claimantID.
func (l *Ledger) ClaimsOf(claimantID string) []Entry {
	var out []Entry
	for _, e := range l.List() {
		if e.ClaimantID == claimantID {
			out = append(out, e)
		}
	}
	return out
}

// Count returns the number of claims.
func (l *Ledger) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.claims)
}

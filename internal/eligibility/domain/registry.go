// Package domain holds the eligible address registry.
package domain

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/monito83/OgWalletBot/internal/validation"
)

// Common errors returned by the registry.
var (
	ErrInvalidAddress = errors.New("invalid address")
	ErrEmptyList      = errors.New("list contains no valid addresses")
)

// Store defines the persistence the registry needs.
type Store interface {
	LoadEligible(ctx context.Context) ([]string, error)
	SaveEligible(ctx context.Context, addresses []string) error
}

// ReplaceResult summarizes a bulk replace.
type ReplaceResult struct {
	Accepted int      `json:"accepted"`
	Rejected []string `json:"rejected,omitempty"`
}

// Registry is the set of addresses allowed to claim the credential.
// Every mutation is persisted before it returns; a failed save leaves the
// set unchanged.
type Registry struct {
	mu    sync.RWMutex
	set   map[string]struct{}
	store Store
}

// NewRegistry creates an empty registry backed by store.
func NewRegistry(store Store) *Registry {
	return &Registry{
		set:   make(map[string]struct{}),
		store: store,
	}
}

// Load replaces the in-memory set with the persisted list.
func (r *Registry) Load(ctx context.Context) error {
	addrs, err := r.store.LoadEligible(ctx)
	if err != nil {
		return fmt.Errorf("loading eligible list: %w", err)
	}
	set := make(map[string]struct{}, len(addrs))
	for _, a := range addrs {
		if n := validation.NormalizeAddress(a); n != "" {
			set[n] = struct{}{}
		}
	}

	r.mu.Lock()
	r.set = set
	r.mu.Unlock()
	return nil
}

// IsEligible reports whether address is in the set.
func (r *Registry) IsEligible(address string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.set[validation.NormalizeAddress(address)]
	return ok
}

// Add inserts address. It reports false without saving when the address is
// already present.
func (r *Registry) Add(ctx context.Context, address string) (bool, error) {
	if err := validation.ValidateAddress(address); err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	addr := validation.NormalizeAddress(address)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.set[addr]; ok {
		return false, nil
	}
	r.set[addr] = struct{}{}
	if err := r.store.SaveEligible(ctx, r.sortedLocked()); err != nil {
		delete(r.set, addr)
		return false, fmt.Errorf("saving eligible list: %w", err)
	}
	return true, nil
}

// Remove deletes address. It reports false without saving when the address
// was not present.
func (r *Registry) Remove(ctx context.Context, address string) (bool, error) {
	addr := validation.NormalizeAddress(address)
	if addr == "" {
		return false, fmt.Errorf("%w: address cannot be empty", ErrInvalidAddress)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.set[addr]; !ok {
		return false, nil
	}
	delete(r.set, addr)
	if err := r.store.SaveEligible(ctx, r.sortedLocked()); err != nil {
		r.set[addr] = struct{}{}
		return false, fmt.Errorf("saving eligible list: %w", err)
	}
	return true, nil
}

// ReplaceAll swaps the whole set for addresses. Blank entries are skipped and
// malformed ones are reported in the result. A list with no valid entries is
// rejected with ErrEmptyList.
func (r *Registry) ReplaceAll(ctx context.Context, addresses []string) (*ReplaceResult, error) {
	result := &ReplaceResult{}
	next := make(map[string]struct{}, len(addresses))
	for _, a := range addresses {
		addr := validation.NormalizeAddress(a)
		if addr == "" {
			continue
		}
		if err := validation.ValidateAddress(addr); err != nil {
			result.Rejected = append(result.Rejected, addr)
			continue
		}
		next[addr] = struct{}{}
	}
	if len(next) == 0 {
		return nil, ErrEmptyList
	}
	result.Accepted = len(next)

	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.set
	r.set = next
	if err := r.store.SaveEligible(ctx, r.sortedLocked()); err != nil {
		r.set = prev
		return nil, fmt.Errorf("saving eligible list: %w", err)
	}
	return result, nil
}

// List returns the addresses in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sortedLocked()
}

// Count returns the number of eligible addresses.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.set)
}

func (r *Registry) sortedLocked() []string {
	out := make([]string, 0, len(r.set))
	for a := range r.set {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// SplitList splits a newline-delimited upload into trimmed entries.
func SplitList(text string) []string {
	var out []string
	scanner := bufio.NewScanner(strings.NewReader(text))
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			out = append(out, line)
		}
	}
	return out
}

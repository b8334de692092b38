package domain

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/monito83/OgWalletBot/internal/validation"
)

const (
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	// maxCodeAttempts bounds regeneration when a fresh code collides
	maxCodeAttempts = 32
)

// PendingStore holds live verification requests keyed by code. It is not
// persisted: a restart drops requests that were never paid.
type PendingStore struct {
	mu         sync.RWMutex
	byCode     map[string]Request
	codeLength int
	now        func() time.Time
	randCode   func(n int) (string, error)
}

// NewPendingStore creates an empty store generating codes of codeLength.
func NewPendingStore(codeLength int, now func() time.Time) *PendingStore {
	if now == nil {
		now = time.Now
	}
	return &PendingStore{
		byCode:     make(map[string]Request),
		codeLength: codeLength,
		now:        now,
		randCode:   randomCode,
	}
}

// Create registers a request under a code unique among live requests.
func (s *PendingStore) Create(claimantID, claimantLabel, address, originContext string) (Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := s.randCode(s.codeLength)
		if err != nil {
			return Request{}, fmt.Errorf("generating request code: %w", err)
		}
		if _, taken := s.byCode[code]; taken {
			continue
		}
		req := Request{
			Code:          code,
			ClaimantID:    claimantID,
			ClaimantLabel: claimantLabel,
			Address:       validation.NormalizeAddress(address),
			OriginContext: originContext,
			CreatedAt:     s.now(),
		}
		s.byCode[code] = req
		return req, nil
	}
	return Request{}, ErrCodeSpaceExhausted
}

// FindByCode returns the live request with code.
func (s *PendingStore) FindByCode(code string) (Request, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	req, ok := s.byCode[code]
	return req, ok
}

// FindByAddress returns the live request for address. If several exist the
// oldest wins.
func (s *PendingStore) FindByAddress(address string) (Request, bool) {
	addr := validation.NormalizeAddress(address)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var found Request
	ok := false
	for _, req := range s.byCode {
		if req.Address != addr {
			continue
		}
		if !ok || req.CreatedAt.Before(found.CreatedAt) {
			found, ok = req, true
		}
	}
	return found, ok
}

// Remove deletes the request with code. It reports whether one existed.
func (s *PendingStore) Remove(code string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.byCode[code]
	delete(s.byCode, code)
	return ok
}

// SweepExpired removes requests with now - CreatedAt > timeout and returns
// them.
func (s *PendingStore) SweepExpired(now time.Time, timeout time.Duration) []Request {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []Request
	for code, req := range s.byCode {
		if now.Sub(req.CreatedAt) > timeout {
			removed = append(removed, req)
			delete(s.byCode, code)
		}
	}
	sort.Slice(removed, func(i, j int) bool { return removed[i].CreatedAt.Before(removed[j].CreatedAt) })
	return removed
}

// List returns live requests, oldest first.
func (s *PendingStore) List() []Request {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Request, 0, len(s.byCode))
	for _, req := range s.byCode {
		out = append(out, req)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Code < out[j].Code
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Len returns the number of live requests.
func (s *PendingStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byCode)
}

func randomCode(n int) (string, error) {
	limit := big.NewInt(int64(len(codeAlphabet)))
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		b[i] = codeAlphabet[idx.Int64()]
	}
	return string(b), nil
}

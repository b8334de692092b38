package storage

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/monito83/OgWalletBot/internal/config"
)

// maxFileAuditEvents bounds the audit log kept in the state file
const maxFileAuditEvents = 1000

// acceptedOutcome marks processed transfers that finalized a claim.
const acceptedOutcome = "accepted"

// FileStore implements Store on flat files: a newline-delimited eligible
// list, a JSON claims document keyed by address, and a JSON state document
// for processed transfers, audit events and API keys.
type FileStore struct {
	mu           sync.Mutex
	eligiblePath string
	claimsPath   string
	statePath    string
	retention    uint64
	logger       *slog.Logger
}

// fileClaim is stored as {userId, username, verifiedAt}. Documents written
// with claimantId and claimantLabel keys are still read.
type fileClaim struct {
	ClaimantID    string `json:"userId"`
	ClaimantLabel string `json:"username"`
	VerifiedAt    string `json:"verifiedAt"`
}

func (c *fileClaim) UnmarshalJSON(data []byte) error {
	var raw struct {
		UserID        string `json:"userId"`
		Username      string `json:"username"`
		ClaimantID    string `json:"claimantId"`
		ClaimantLabel string `json:"claimantLabel"`
		VerifiedAt    string `json:"verifiedAt"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	c.ClaimantID = firstNonEmpty(raw.UserID, raw.ClaimantID)
	c.ClaimantLabel = firstNonEmpty(raw.Username, raw.ClaimantLabel)
	c.VerifiedAt = raw.VerifiedAt
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

type fileTransfer struct {
	BlockHeight uint64 `json:"blockHeight"`
	Outcome     string `json:"outcome"`
	ProcessedAt string `json:"processedAt"`
}

type fileAuditEvent struct {
	ID        string            `json:"id"`
	Kind      string            `json:"kind"`
	Details   map[string]string `json:"details,omitempty"`
	CreatedAt string            `json:"createdAt"`
}

type fileAPIKey struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	KeyHash    string `json:"keyHash"`
	CreatedAt  string `json:"createdAt"`
	LastUsedAt string `json:"lastUsedAt,omitempty"`
	RevokedAt  string `json:"revokedAt,omitempty"`
}

type fileState struct {
	ProcessedTransfers map[string]fileTransfer `json:"processedTransfers"`
	AuditEvents        []fileAuditEvent        `json:"auditEvents"`
	APIKeys            []fileAPIKey            `json:"apiKeys"`
}

// NewFileStore creates a file-backed store
func NewFileStore(cfg config.FileConfig, logger *slog.Logger) (*FileStore, error) {
	if cfg.EligibleListPath == "" || cfg.ClaimsPath == "" || cfg.StatePath == "" {
		return nil, errors.New("file storage requires eligible list, claims and state paths")
	}
	return &FileStore{
		eligiblePath: cfg.EligibleListPath,
		claimsPath:   cfg.ClaimsPath,
		statePath:    cfg.StatePath,
		retention:    uint64(max(cfg.ProcessedRetention, 0)),
		logger:       logger,
	}, nil
}

// Close is a no-op for file storage
func (s *FileStore) Close() error {
	return nil
}

// Migrate creates any missing files
func (s *FileStore) Migrate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ensureFile(s.eligiblePath, nil); err != nil {
		return fmt.Errorf("initializing eligible list: %w", err)
	}
	if err := ensureFile(s.claimsPath, []byte("{}")); err != nil {
		return fmt.Errorf("initializing claims file: %w", err)
	}
	if err := ensureFile(s.statePath, []byte("{}")); err != nil {
		return fmt.Errorf("initializing state file: %w", err)
	}
	s.logger.Info("file storage ready", "eligible", s.eligiblePath, "claims", s.claimsPath)
	return nil
}

// LoadEligible reads the newline-delimited list, normalizing each line
func (s *FileStore) LoadEligible(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.eligiblePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var addresses []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.ToLower(strings.TrimSpace(scanner.Text()))
		if line != "" {
			addresses = append(addresses, line)
		}
	}
	return addresses, scanner.Err()
}

// SaveEligible rewrites the eligible list
func (s *FileStore) SaveEligible(ctx context.Context, addresses []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sorted := append([]string(nil), addresses...)
	sort.Strings(sorted)
	return writeFileAtomic(s.eligiblePath, []byte(strings.Join(sorted, "\n")))
}

// LoadClaims reads the claims document
func (s *FileStore) LoadClaims(ctx context.Context) ([]Claim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.readClaims()
	if err != nil {
		return nil, err
	}
	claims := make([]Claim, 0, len(doc))
	for addr, fc := range doc {
		claims = append(claims, Claim{
			Address:       strings.ToLower(strings.TrimSpace(addr)),
			ClaimantID:    fc.ClaimantID,
			ClaimantLabel: fc.ClaimantLabel,
			VerifiedAt:    parseTime(fc.VerifiedAt),
		})
	}
	sort.Slice(claims, func(i, j int) bool { return claims[i].VerifiedAt.Before(claims[j].VerifiedAt) })
	return claims, nil
}

// InsertClaim adds a claim and rewrites the document
func (s *FileStore) InsertClaim(ctx context.Context, c Claim) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.readClaims()
	if err != nil {
		return err
	}
	if _, exists := doc[c.Address]; exists {
		return ErrClaimExists
	}
	doc[c.Address] = fileClaim{
		ClaimantID:    c.ClaimantID,
		ClaimantLabel: c.ClaimantLabel,
		VerifiedAt:    c.VerifiedAt.UTC().Format(timeLayout),
	}
	return writeJSONAtomic(s.claimsPath, doc)
}

// MarkTransferProcessed records a transfer ID; repeated marks are ignored.
// Each write also drops non-accepted records older than the retention
// window, which the scanner can no longer reach.
func (s *FileStore) MarkTransferProcessed(ctx context.Context, t ProcessedTransfer) error {
	if t.ProcessedAt.IsZero() {
		t.ProcessedAt = time.Now()
	}
	return s.updateState(func(st *fileState) bool {
		if _, ok := st.ProcessedTransfers[t.ID]; ok {
			return false
		}
		st.ProcessedTransfers[t.ID] = fileTransfer{
			BlockHeight: t.BlockHeight,
			Outcome:     t.Outcome,
			ProcessedAt: t.ProcessedAt.UTC().Format(timeLayout),
		}
		if pruned := s.pruneTransfers(st, t.BlockHeight); pruned > 0 {
			s.logger.Debug("pruned processed transfers", "count", pruned, "height", t.BlockHeight)
		}
		return true
	})
}

// pruneTransfers removes records below height minus the retention window.
// Accepted transfers are kept so a replayed one is never refunded.
func (s *FileStore) pruneTransfers(st *fileState, height uint64) int {
	if s.retention == 0 || height <= s.retention {
		return 0
	}
	floor := height - s.retention
	pruned := 0
	for id, ft := range st.ProcessedTransfers {
		if ft.Outcome == acceptedOutcome || ft.BlockHeight >= floor {
			continue
		}
		delete(st.ProcessedTransfers, id)
		pruned++
	}
	return pruned
}

// IsTransferProcessed reports whether a transfer ID was recorded
func (s *FileStore) IsTransferProcessed(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.readState()
	if err != nil {
		return false, err
	}
	_, ok := st.ProcessedTransfers[id]
	return ok, nil
}

// ListProcessedTransfers returns transfers at or above the given height
func (s *FileStore) ListProcessedTransfers(ctx context.Context, sinceHeight uint64) ([]ProcessedTransfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.readState()
	if err != nil {
		return nil, err
	}
	var out []ProcessedTransfer
	for id, ft := range st.ProcessedTransfers {
		if ft.BlockHeight < sinceHeight {
			continue
		}
		out = append(out, ProcessedTransfer{
			ID:          id,
			BlockHeight: ft.BlockHeight,
			Outcome:     ft.Outcome,
			ProcessedAt: parseTime(ft.ProcessedAt),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BlockHeight < out[j].BlockHeight })
	return out, nil
}

// AppendAuditEvent appends an event, keeping the newest maxFileAuditEvents
func (s *FileStore) AppendAuditEvent(ctx context.Context, e AuditEvent) error {
	if e.ID == "" {
		e.ID = generateID()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	return s.updateState(func(st *fileState) bool {
		st.AuditEvents = append(st.AuditEvents, fileAuditEvent{
			ID:        e.ID,
			Kind:      e.Kind,
			Details:   e.Details,
			CreatedAt: e.CreatedAt.UTC().Format(timeLayout),
		})
		if over := len(st.AuditEvents) - maxFileAuditEvents; over > 0 {
			st.AuditEvents = st.AuditEvents[over:]
		}
		return true
	})
}

// ListAuditEvents returns the most recent events, newest first
func (s *FileStore) ListAuditEvents(ctx context.Context, limit int) ([]AuditEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.readState()
	if err != nil {
		return nil, err
	}
	var out []AuditEvent
	for i := len(st.AuditEvents) - 1; i >= 0 && len(out) < limit; i-- {
		fe := st.AuditEvents[i]
		out = append(out, AuditEvent{
			ID:        fe.ID,
			Kind:      fe.Kind,
			Details:   fe.Details,
			CreatedAt: parseTime(fe.CreatedAt),
		})
	}
	return out, nil
}

// CreateAPIKey creates a new API key
func (s *FileStore) CreateAPIKey(ctx context.Context, name string) (string, error) {
	key := generateAPIKey()
	err := s.updateState(func(st *fileState) bool {
		st.APIKeys = append(st.APIKeys, fileAPIKey{
			ID:        generateID(),
			Name:      name,
			KeyHash:   hashAPIKey(key),
			CreatedAt: time.Now().UTC().Format("2006-01-02 15:04:05"),
		})
		return true
	})
	if err != nil {
		return "", err
	}
	return key, nil
}

// ValidateAPIKey validates an API key
func (s *FileStore) ValidateAPIKey(ctx context.Context, key string) (*APIKey, error) {
	hash := hashAPIKey(key)
	var found *APIKey
	err := s.updateState(func(st *fileState) bool {
		for i := range st.APIKeys {
			k := &st.APIKeys[i]
			if k.KeyHash == hash && k.RevokedAt == "" {
				k.LastUsedAt = time.Now().UTC().Format("2006-01-02 15:04:05")
				found = &APIKey{ID: k.ID, Name: k.Name, KeyHash: k.KeyHash, CreatedAt: k.CreatedAt, LastUsedAt: k.LastUsedAt}
				return true
			}
		}
		return false
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, ErrNotFound
	}
	return found, nil
}

// ListAPIKeys lists all API keys
func (s *FileStore) ListAPIKeys(ctx context.Context) ([]APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.readState()
	if err != nil {
		return nil, err
	}
	var keys []APIKey
	for _, k := range st.APIKeys {
		if k.RevokedAt != "" {
			continue
		}
		keys = append(keys, APIKey{ID: k.ID, Name: k.Name, CreatedAt: k.CreatedAt, LastUsedAt: k.LastUsedAt})
	}
	return keys, nil
}

// RevokeAPIKey revokes an API key
func (s *FileStore) RevokeAPIKey(ctx context.Context, id string) error {
	revoked := false
	err := s.updateState(func(st *fileState) bool {
		for i := range st.APIKeys {
			if st.APIKeys[i].ID == id && st.APIKeys[i].RevokedAt == "" {
				st.APIKeys[i].RevokedAt = time.Now().UTC().Format("2006-01-02 15:04:05")
				revoked = true
				return true
			}
		}
		return false
	})
	if err != nil {
		return err
	}
	if !revoked {
		return ErrNotFound
	}
	return nil
}

func (s *FileStore) readClaims() (map[string]fileClaim, error) {
	doc := map[string]fileClaim{}
	data, err := os.ReadFile(s.claimsPath)
	if errors.Is(err, os.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing claims file: %w", err)
	}
	return doc, nil
}

func (s *FileStore) readState() (*fileState, error) {
	st := &fileState{}
	data, err := os.ReadFile(s.statePath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, st); err != nil {
			return nil, fmt.Errorf("parsing state file: %w", err)
		}
	}
	if st.ProcessedTransfers == nil {
		st.ProcessedTransfers = map[string]fileTransfer{}
	}
	return st, nil
}

// updateState applies fn under the lock and writes the state back when fn
// reports a change.
func (s *FileStore) updateState(fn func(*fileState) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.readState()
	if err != nil {
		return err
	}
	if !fn(st) {
		return nil
	}
	return writeJSONAtomic(s.statePath, st)
}

func ensureFile(path string, initial []byte) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return writeFileAtomic(path, initial)
}

func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(path, data)
}

// writeFileAtomic writes to a temp file in the same directory and renames it
// over path.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

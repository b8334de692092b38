package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store
func NewSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One writer keeps claim inserts serialized across goroutines
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate runs database migrations
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	schema := `
	-- Eligible addresses
	CREATE TABLE IF NOT EXISTS eligible_addresses (
		address TEXT PRIMARY KEY
	);

	-- Claims, one per address for all time
	CREATE TABLE IF NOT EXISTS claims (
		address TEXT PRIMARY KEY,
		claimant_id TEXT NOT NULL,
		claimant_label TEXT,
		verified_at TEXT NOT NULL
	);

	-- Transfers already acted on
	CREATE TABLE IF NOT EXISTS processed_transfers (
		id TEXT PRIMARY KEY,
		block_height INTEGER NOT NULL,
		outcome TEXT NOT NULL,
		processed_at TEXT NOT NULL
	);

	-- Audit log
	CREATE TABLE IF NOT EXISTS audit_events (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		details TEXT,
		created_at TEXT NOT NULL
	);

	-- API keys
	CREATE TABLE IF NOT EXISTS api_keys (
		id TEXT PRIMARY KEY,
		key_hash TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		created_at TEXT DEFAULT (datetime('now')),
		last_used_at TEXT,
		revoked_at TEXT
	);

	-- Indexes
	CREATE INDEX IF NOT EXISTS idx_claims_claimant ON claims(claimant_id);
	CREATE INDEX IF NOT EXISTS idx_processed_transfers_height ON processed_transfers(block_height);
	CREATE INDEX IF NOT EXISTS idx_audit_events_created ON audit_events(created_at);
	`

	_, err := s.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	s.logger.Info("database migrations complete")
	return nil
}

// LoadEligible returns every eligible address
func (s *SQLiteStore) LoadEligible(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT address FROM eligible_addresses ORDER BY address")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var addresses []string
	for rows.Next() {
		var a string
		if err := rows.Scan(&a); err != nil {
			return nil, err
		}
		addresses = append(addresses, a)
	}
	return addresses, rows.Err()
}

// SaveEligible replaces the eligible list in a single transaction
func (s *SQLiteStore) SaveEligible(ctx context.Context, addresses []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM eligible_addresses"); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, "INSERT OR IGNORE INTO eligible_addresses (address) VALUES (?)")
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, a := range addresses {
		if _, err := stmt.ExecContext(ctx, a); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// LoadClaims returns every claim
func (s *SQLiteStore) LoadClaims(ctx context.Context) ([]Claim, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT address, claimant_id, claimant_label, verified_at FROM claims ORDER BY verified_at")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var claims []Claim
	for rows.Next() {
		var c Claim
		var label sql.NullString
		var verifiedAt string
		if err := rows.Scan(&c.Address, &c.ClaimantID, &label, &verifiedAt); err != nil {
			return nil, err
		}
		c.ClaimantLabel = label.String
		c.VerifiedAt = parseTime(verifiedAt)
		claims = append(claims, c)
	}
	return claims, rows.Err()
}

// InsertClaim records a claim; the primary key rejects a second claim
func (s *SQLiteStore) InsertClaim(ctx context.Context, c Claim) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO claims (address, claimant_id, claimant_label, verified_at) VALUES (?, ?, ?, ?)",
		c.Address, c.ClaimantID, c.ClaimantLabel, c.VerifiedAt.UTC().Format(timeLayout),
	)
	if isUniqueViolation(err) {
		return ErrClaimExists
	}
	return err
}

// MarkTransferProcessed records a transfer ID; repeated marks are ignored
func (s *SQLiteStore) MarkTransferProcessed(ctx context.Context, t ProcessedTransfer) error {
	if t.ProcessedAt.IsZero() {
		t.ProcessedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO processed_transfers (id, block_height, outcome, processed_at) VALUES (?, ?, ?, ?)",
		t.ID, int64(t.BlockHeight), t.Outcome, t.ProcessedAt.UTC().Format(timeLayout),
	)
	return err
}

// IsTransferProcessed reports whether a transfer ID was recorded
func (s *SQLiteStore) IsTransferProcessed(ctx context.Context, id string) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM processed_transfers WHERE id = ?", id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// ListProcessedTransfers returns transfers at or above the given height
func (s *SQLiteStore) ListProcessedTransfers(ctx context.Context, sinceHeight uint64) ([]ProcessedTransfer, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, block_height, outcome, processed_at FROM processed_transfers WHERE block_height >= ? ORDER BY block_height",
		int64(sinceHeight),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transfers []ProcessedTransfer
	for rows.Next() {
		var t ProcessedTransfer
		var height int64
		var processedAt string
		if err := rows.Scan(&t.ID, &height, &t.Outcome, &processedAt); err != nil {
			return nil, err
		}
		t.BlockHeight = uint64(height)
		t.ProcessedAt = parseTime(processedAt)
		transfers = append(transfers, t)
	}
	return transfers, rows.Err()
}

// AppendAuditEvent appends an event to the audit log
func (s *SQLiteStore) AppendAuditEvent(ctx context.Context, e AuditEvent) error {
	if e.ID == "" {
		e.ID = generateID()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO audit_events (id, kind, details, created_at) VALUES (?, ?, ?, ?)",
		e.ID, e.Kind, encodeDetails(e.Details), e.CreatedAt.UTC().Format(timeLayout),
	)
	return err
}

// ListAuditEvents returns the most recent events, newest first
func (s *SQLiteStore) ListAuditEvents(ctx context.Context, limit int) ([]AuditEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, kind, details, created_at FROM audit_events ORDER BY created_at DESC LIMIT ?", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []AuditEvent
	for rows.Next() {
		var e AuditEvent
		var details sql.NullString
		var createdAt string
		if err := rows.Scan(&e.ID, &e.Kind, &details, &createdAt); err != nil {
			return nil, err
		}
		e.Details = decodeDetails(details.String)
		e.CreatedAt = parseTime(createdAt)
		events = append(events, e)
	}
	return events, rows.Err()
}

// CreateAPIKey creates a new API key
func (s *SQLiteStore) CreateAPIKey(ctx context.Context, name string) (string, error) {
	key := generateAPIKey()
	hash := hashAPIKey(key)
	id := generateID()
	_, err := s.db.ExecContext(ctx, "INSERT INTO api_keys (id, key_hash, name, created_at) VALUES (?, ?, ?, datetime('now'))", id, hash, name)
	if err != nil {
		return "", err
	}
	return key, nil
}

// ValidateAPIKey validates an API key
func (s *SQLiteStore) ValidateAPIKey(ctx context.Context, key string) (*APIKey, error) {
	hash := hashAPIKey(key)
	var ak APIKey
	err := s.db.QueryRowContext(ctx, "SELECT id, key_hash, name, created_at FROM api_keys WHERE key_hash = ? AND revoked_at IS NULL", hash).Scan(
		&ak.ID, &ak.KeyHash, &ak.Name, &ak.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	_, _ = s.db.ExecContext(ctx, "UPDATE api_keys SET last_used_at = datetime('now') WHERE id = ?", ak.ID)
	return &ak, nil
}

// ListAPIKeys lists all API keys
func (s *SQLiteStore) ListAPIKeys(ctx context.Context) ([]APIKey, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name, created_at, last_used_at FROM api_keys WHERE revoked_at IS NULL")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []APIKey
	for rows.Next() {
		var k APIKey
		var lastUsed sql.NullString
		if err := rows.Scan(&k.ID, &k.Name, &k.CreatedAt, &lastUsed); err != nil {
			return nil, err
		}
		k.LastUsedAt = lastUsed.String
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// RevokeAPIKey revokes an API key
func (s *SQLiteStore) RevokeAPIKey(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "UPDATE api_keys SET revoked_at = datetime('now') WHERE id = ? AND revoked_at IS NULL", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

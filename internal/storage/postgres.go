package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresStore creates a new Postgres store
func NewPostgresStore(url string, logger *slog.Logger) (*PostgresStore, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &PostgresStore{db: db, logger: logger}, nil
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Migrate runs database migrations
func (s *PostgresStore) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS eligible_addresses (
		address TEXT PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS claims (
		address TEXT PRIMARY KEY,
		claimant_id TEXT NOT NULL,
		claimant_label TEXT,
		verified_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS processed_transfers (
		id TEXT PRIMARY KEY,
		block_height BIGINT NOT NULL,
		outcome TEXT NOT NULL,
		processed_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS audit_events (
		id UUID PRIMARY KEY,
		kind TEXT NOT NULL,
		details JSONB,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS api_keys (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		key_hash TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		created_at TIMESTAMPTZ DEFAULT NOW(),
		last_used_at TIMESTAMPTZ,
		revoked_at TIMESTAMPTZ
	);

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
func (s *PostgresStore) LoadEligible(ctx context.Context) ([]string, error) {
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
func (s *PostgresStore) SaveEligible(ctx context.Context, addresses []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM eligible_addresses"); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, "INSERT INTO eligible_addresses (address) VALUES ($1) ON CONFLICT DO NOTHING")
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
func (s *PostgresStore) LoadClaims(ctx context.Context) ([]Claim, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT address, claimant_id, claimant_label, verified_at FROM claims ORDER BY verified_at")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var claims []Claim
	for rows.Next() {
		var c Claim
		var label sql.NullString
		if err := rows.Scan(&c.Address, &c.ClaimantID, &label, &c.VerifiedAt); err != nil {
			return nil, err
		}
		c.ClaimantLabel = label.String
		claims = append(claims, c)
	}
	return claims, rows.Err()
}

// InsertClaim records a claim; the primary key rejects a second claim
func (s *PostgresStore) InsertClaim(ctx context.Context, c Claim) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO claims (address, claimant_id, claimant_label, verified_at) VALUES ($1, $2, $3, $4)",
		c.Address, c.ClaimantID, c.ClaimantLabel, c.VerifiedAt.UTC(),
	)
	if isUniqueViolation(err) {
		return ErrClaimExists
	}
	return err
}

// MarkTransferProcessed records a transfer ID; repeated marks are ignored
func (s *PostgresStore) MarkTransferProcessed(ctx context.Context, t ProcessedTransfer) error {
	if t.ProcessedAt.IsZero() {
		t.ProcessedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO processed_transfers (id, block_height, outcome, processed_at) VALUES ($1, $2, $3, $4) ON CONFLICT (id) DO NOTHING",
		t.ID, int64(t.BlockHeight), t.Outcome, t.ProcessedAt.UTC(),
	)
	return err
}

// IsTransferProcessed reports whether a transfer ID was recorded
func (s *PostgresStore) IsTransferProcessed(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM processed_transfers WHERE id = $1)", id).Scan(&exists)
	return exists, err
}

// ListProcessedTransfers returns transfers at or above the given height
func (s *PostgresStore) ListProcessedTransfers(ctx context.Context, sinceHeight uint64) ([]ProcessedTransfer, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, block_height, outcome, processed_at FROM processed_transfers WHERE block_height >= $1 ORDER BY block_height",
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
		if err := rows.Scan(&t.ID, &height, &t.Outcome, &t.ProcessedAt); err != nil {
			return nil, err
		}
		t.BlockHeight = uint64(height)
		transfers = append(transfers, t)
	}
	return transfers, rows.Err()
}

// AppendAuditEvent appends an event to the audit log
func (s *PostgresStore) AppendAuditEvent(ctx context.Context, e AuditEvent) error {
	if e.ID == "" {
		e.ID = generateID()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO audit_events (id, kind, details, created_at) VALUES ($1, $2, $3, $4)",
		e.ID, e.Kind, encodeDetails(e.Details), e.CreatedAt.UTC(),
	)
	return err
}

// ListAuditEvents returns the most recent events, newest first
func (s *PostgresStore) ListAuditEvents(ctx context.Context, limit int) ([]AuditEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, kind, details, created_at FROM audit_events ORDER BY created_at DESC LIMIT $1", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []AuditEvent
	for rows.Next() {
		var e AuditEvent
		var details sql.NullString
		if err := rows.Scan(&e.ID, &e.Kind, &details, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Details = decodeDetails(details.String)
		events = append(events, e)
	}
	return events, rows.Err()
}

// CreateAPIKey creates a new API key
func (s *PostgresStore) CreateAPIKey(ctx context.Context, name string) (string, error) {
	key := generateAPIKey()
	hash := hashAPIKey(key)
	id := generateID()
	_, err := s.db.ExecContext(ctx, "INSERT INTO api_keys (id, key_hash, name) VALUES ($1, $2, $3)", id, hash, name)
	if err != nil {
		return "", err
	}
	return key, nil
}

// ValidateAPIKey validates an API key
func (s *PostgresStore) ValidateAPIKey(ctx context.Context, key string) (*APIKey, error) {
	hash := hashAPIKey(key)
	var ak APIKey
	var createdAt time.Time
	err := s.db.QueryRowContext(ctx, "SELECT id, key_hash, name, created_at FROM api_keys WHERE key_hash = $1 AND revoked_at IS NULL", hash).Scan(
		&ak.ID, &ak.KeyHash, &ak.Name, &createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	ak.CreatedAt = createdAt.Format("2006-01-02 15:04:05")
	_, _ = s.db.ExecContext(ctx, "UPDATE api_keys SET last_used_at = NOW() WHERE id = $1", ak.ID)
	return &ak, nil
}

// ListAPIKeys lists all API keys
func (s *PostgresStore) ListAPIKeys(ctx context.Context) ([]APIKey, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name, created_at, last_used_at FROM api_keys WHERE revoked_at IS NULL")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []APIKey
	for rows.Next() {
		var k APIKey
		var createdAt time.Time
		var lastUsed sql.NullTime
		if err := rows.Scan(&k.ID, &k.Name, &createdAt, &lastUsed); err != nil {
			return nil, err
		}
		k.CreatedAt = createdAt.Format("2006-01-02 15:04:05")
		if lastUsed.Valid {
			k.LastUsedAt = lastUsed.Time.Format("2006-01-02 15:04:05")
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// RevokeAPIKey revokes an API key
func (s *PostgresStore) RevokeAPIKey(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "UPDATE api_keys SET revoked_at = NOW() WHERE id = $1 AND revoked_at IS NULL", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/monito83/OgWalletBot/internal/config"
)

// EligibleStore persists the eligible address list
type EligibleStore interface {
	LoadEligible(ctx context.Context) ([]string, error)
	SaveEligible(ctx context.Context, addresses []string) error
}

// ClaimStore persists claims. InsertClaim returns ErrClaimExists when the
// address already has a claim.
type ClaimStore interface {
	LoadClaims(ctx context.Context) ([]Claim, error)
	InsertClaim(ctx context.Context, claim Claim) error
}

// TransferStore records ledger transfers the engine has already acted on
type TransferStore interface {
	MarkTransferProcessed(ctx context.Context, t ProcessedTransfer) error
	IsTransferProcessed(ctx context.Context, id string) (bool, error)
	ListProcessedTransfers(ctx context.Context, sinceHeight uint64) ([]ProcessedTransfer, error)
}

// AuditStore is an append-only event log
type AuditStore interface {
	AppendAuditEvent(ctx context.Context, e AuditEvent) error
	ListAuditEvents(ctx context.Context, limit int) ([]AuditEvent, error)
}

// APIKeyStore handles API key operations
type APIKeyStore interface {
	CreateAPIKey(ctx context.Context, name string) (key string, err error)
	ValidateAPIKey(ctx context.Context, key string) (*APIKey, error)
	ListAPIKeys(ctx context.Context) ([]APIKey, error)
	RevokeAPIKey(ctx context.Context, id string) error
}

// Store combines all storage interfaces with lifecycle methods.
// Domain services define their own minimal interfaces based on their actual usage.
type Store interface {
	EligibleStore
	ClaimStore
	TransferStore
	AuditStore
	APIKeyStore

	// Lifecycle
	Close() error
	Migrate(ctx context.Context) error
}

// Claim is the permanent binding of an address to a claimant
type Claim struct {
	Address       string
	ClaimantID    string
	ClaimantLabel string
	VerifiedAt    time.Time
}

// ProcessedTransfer marks a transfer ID as consumed
type ProcessedTransfer struct {
	ID          string
	BlockHeight uint64
	Outcome     string
	ProcessedAt time.Time
}

// AuditEvent is a single entry of the audit log
type AuditEvent struct {
	ID        string
	Kind      string
	Details   map[string]string
	CreatedAt time.Time
}

// APIKey represents an API key
type APIKey struct {
	ID         string
	Name       string
	KeyHash    string
	CreatedAt  string
	LastUsedAt string
	RevokedAt  string
}

// New creates a new store based on configuration
func New(cfg config.StorageConfig, logger *slog.Logger) (Store, error) {
	switch cfg.Type {
	case "file":
		return NewFileStore(cfg.File, logger)
	case "sqlite":
		return NewSQLiteStore(cfg.SQLite.Path, logger)
	case "postgres":
		return NewPostgresStore(cfg.Postgres.URL, logger)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}

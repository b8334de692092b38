package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/monito83/OgWalletBot/internal/config"
)

func newTestFileStore(t *testing.T) (*FileStore, config.FileConfig) {
	dir := t.TempDir()
	cfg := config.FileConfig{
		EligibleListPath: filepath.Join(dir, "og_wallets.txt"),
		ClaimsPath:       filepath.Join(dir, "verified_wallets.json"),
		StatePath:        filepath.Join(dir, "state.json"),
	}
	store, err := NewFileStore(cfg, testLogger())
	require.NoError(t, err)
	require.NoError(t, store.Migrate(context.Background()))
	return store, cfg
}

func TestFileStore_LoadEligibleNormalizesLines(t *testing.T) {
	store, cfg := newTestFileStore(t)
	raw := "  0xAAA  \n\n0xbbb\r\n   \n"
	require.NoError(t, os.WriteFile(cfg.EligibleListPath, []byte(raw), 0644))

	got, err := store.LoadEligible(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"0xaaa", "0xbbb"}, got)
}

func TestFileStore_ClaimsDocumentFormat(t *testing.T) {
	store, cfg := newTestFileStore(t)
	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, store.InsertClaim(context.Background(), Claim{
		Address: "0xaaa", ClaimantID: "42", ClaimantLabel: "alice", VerifiedAt: at,
	}))

	data, err := os.ReadFile(cfg.ClaimsPath)
	require.NoError(t, err)
	assert.JSONEq(t, `{"0xaaa":{"userId":"42","username":"alice","verifiedAt":"2025-01-02T03:04:05Z"}}`, string(data))
}

func TestFileStore_LoadClaimsFormats(t *testing.T) {
	store, cfg := newTestFileStore(t)
	doc := `{
  "0xaaa": {"userId": "123456789", "username": "alice#0001", "verifiedAt": "2024-06-01T12:30:00.250Z"},
  " 0xBBB": {"claimantId": "987", "claimantLabel": "bob", "verifiedAt": "2024-06-02 08:00:00"}
}`
	require.NoError(t, os.WriteFile(cfg.ClaimsPath, []byte(doc), 0644))

	claims, err := store.LoadClaims(context.Background())
	require.NoError(t, err)
	require.Len(t, claims, 2)

	assert.Equal(t, "0xaaa", claims[0].Address)
	assert.Equal(t, "123456789", claims[0].ClaimantID)
	assert.Equal(t, "alice#0001", claims[0].ClaimantLabel)
	assert.True(t, claims[0].VerifiedAt.Equal(time.Date(2024, 6, 1, 12, 30, 0, 250_000_000, time.UTC)))

	assert.Equal(t, "0xbbb", claims[1].Address)
	assert.Equal(t, "987", claims[1].ClaimantID)
	assert.Equal(t, "bob", claims[1].ClaimantLabel)
	assert.True(t, claims[1].VerifiedAt.Equal(time.Date(2024, 6, 2, 8, 0, 0, 0, time.UTC)))

	// Inserting rewrites the whole document in the current format.
	require.NoError(t, store.InsertClaim(context.Background(), Claim{
		Address: "0xccc", ClaimantID: "5", ClaimantLabel: "carol", VerifiedAt: time.Now(),
	}))
	data, err := os.ReadFile(cfg.ClaimsPath)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "claimantId")

	claims, err = store.LoadClaims(context.Background())
	require.NoError(t, err)
	assert.Len(t, claims, 3)
}

func TestFileStore_PrunesProcessedTransfers(t *testing.T) {
	store, cfg := newTestFileStore(t)
	store.retention = 40
	ctx := context.Background()

	marks := []ProcessedTransfer{
		{ID: "0x01", BlockHeight: 10, Outcome: "unmatched"},
		{ID: "0x02", BlockHeight: 12, Outcome: "accepted"},
		{ID: "0x03", BlockHeight: 55, Outcome: "not_eligible"},
		{ID: "0x04", BlockHeight: 100, Outcome: "unmatched"},
	}
	for _, m := range marks {
		require.NoError(t, store.MarkTransferProcessed(ctx, m))
	}

	for id, want := range map[string]bool{"0x01": false, "0x02": true, "0x03": false, "0x04": true} {
		got, err := store.IsTransferProcessed(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, got, id)
	}

	// Marks below the newest height do not drop anything still in range.
	require.NoError(t, store.MarkTransferProcessed(ctx, ProcessedTransfer{ID: "0x05", BlockHeight: 70, Outcome: "unmatched"}))
	ok, err := store.IsTransferProcessed(ctx, "0x05")
	require.NoError(t, err)
	assert.True(t, ok)

	data, err := os.ReadFile(cfg.StatePath)
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"0x01"`)
}

func TestNewFileStore_Retention(t *testing.T) {
	dir := t.TempDir()
	cfg := config.FileConfig{
		EligibleListPath:   filepath.Join(dir, "og_wallets.txt"),
		ClaimsPath:         filepath.Join(dir, "verified_wallets.json"),
		StatePath:          filepath.Join(dir, "state.json"),
		ProcessedRetention: 40,
	}
	store, err := NewFileStore(cfg, testLogger())
	require.NoError(t, err)
	assert.Equal(t, uint64(40), store.retention)

	cfg.ProcessedRetention = -5
	store, err = NewFileStore(cfg, testLogger())
	require.NoError(t, err)
	assert.Zero(t, store.retention)
}

func TestFileStore_MigrateKeepsExistingFiles(t *testing.T) {
	store, cfg := newTestFileStore(t)
	require.NoError(t, os.WriteFile(cfg.EligibleListPath, []byte("0xaaa"), 0644))

	require.NoError(t, store.Migrate(context.Background()))

	got, err := store.LoadEligible(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"0xaaa"}, got)
}

func TestFileStore_CorruptClaimsFile(t *testing.T) {
	store, cfg := newTestFileStore(t)
	require.NoError(t, os.WriteFile(cfg.ClaimsPath, []byte("{not json"), 0644))

	_, err := store.LoadClaims(context.Background())
	assert.Error(t, err)
}

func TestFileStore_AuditLogIsBounded(t *testing.T) {
	store, _ := newTestFileStore(t)
	ctx := context.Background()
	for i := 0; i < maxFileAuditEvents+5; i++ {
		require.NoError(t, store.AppendAuditEvent(ctx, AuditEvent{Kind: "expired"}))
	}
	events, err := store.ListAuditEvents(ctx, maxFileAuditEvents*2)
	require.NoError(t, err)
	assert.Len(t, events, maxFileAuditEvents)
}

func TestNewFileStore_RequiresPaths(t *testing.T) {
	_, err := NewFileStore(config.FileConfig{}, testLogger())
	assert.Error(t, err)
}

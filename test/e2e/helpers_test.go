//go:build e2e

package e2e

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/monito83/OgWalletBot/internal/audit"
	"github.com/monito83/OgWalletBot/internal/chains"
	"github.com/monito83/OgWalletBot/internal/chains/evm"
	claimsdomain "github.com/monito83/OgWalletBot/internal/claims/domain"
	"github.com/monito83/OgWalletBot/internal/config"
	eligibilitydomain "github.com/monito83/OgWalletBot/internal/eligibility/domain"
	"github.com/monito83/OgWalletBot/internal/server"
	"github.com/monito83/OgWalletBot/internal/storage"
	"github.com/monito83/OgWalletBot/internal/verification/domain"
	"github.com/monito83/OgWalletBot/pkg/client"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	verificationAmount = "0.001"
	refundAmount       = "0.001"
	decimals           = 18
)

// TestContext holds shared test infrastructure
type TestContext struct {
	PostgresContainer *postgres.PostgresContainer
	ConnString        string
	Chain             *Chain
	TestServer        *httptest.Server
	Store             storage.Store
}

// Account is a funded key on the simulated chain
type Account struct {
	Key     *ecdsa.PrivateKey
	Address common.Address
}

// Chain is an in-memory EVM chain with a funded service wallet and payers
type Chain struct {
	Backend *simulated.Backend
	Service Account
	Payers  []Account
}

// setupPostgresE starts a Postgres container and returns the connection string
func setupPostgresE(ctx context.Context) (*postgres.PostgresContainer, string, error) {
	postgresContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("ogwallet"),
		postgres.WithUsername("ogwallet"),
		postgres.WithPassword("ogwallet"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		return nil, "", fmt.Errorf("failed to start postgres container: %w", err)
	}

	connString, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = postgresContainer.Terminate(ctx)
		return nil, "", fmt.Errorf("failed to get postgres connection string: %w", err)
	}

	return postgresContainer, connString, nil
}

func newAccount() (Account, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return Account{}, err
	}
	return Account{Key: key, Address: crypto.PubkeyToAddress(key.PublicKey)}, nil
}

// newChainE starts a simulated chain with one service wallet and a few payers
func newChainE() (*Chain, error) {
	service, err := newAccount()
	if err != nil {
		return nil, err
	}
	funds := new(big.Int).Mul(big.NewInt(10), big.NewInt(1e18))
	alloc := types.GenesisAlloc{service.Address: {Balance: funds}}

	chain := &Chain{Service: service}
	for range 4 {
		payer, err := newAccount()
		if err != nil {
			return nil, err
		}
		alloc[payer.Address] = types.Account{Balance: funds}
		chain.Payers = append(chain.Payers, payer)
	}

	chain.Backend = simulated.NewBackend(alloc)
	return chain, nil
}

// Close shuts the simulated chain down
func (c *Chain) Close() {
	_ = c.Backend.Close()
}

// Pay sends a native transfer and mines it, returning the transaction hash
func (c *Chain) Pay(t *testing.T, from Account, to common.Address, amount *big.Int) string {
	t.Helper()
	ctx := context.Background()
	rpc := c.Backend.Client()

	chainID, err := rpc.ChainID(ctx)
	require.NoError(t, err)
	nonce, err := rpc.PendingNonceAt(ctx, from.Address)
	require.NoError(t, err)
	tip, err := rpc.SuggestGasTipCap(ctx)
	require.NoError(t, err)
	head, err := rpc.HeaderByNumber(ctx, nil)
	require.NoError(t, err)
	feeCap := new(big.Int).Add(tip, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		To:        &to,
		Value:     amount,
		Gas:       21000,
		GasTipCap: tip,
		GasFeeCap: feeCap,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), from.Key)
	require.NoError(t, err)
	require.NoError(t, rpc.SendTransaction(ctx, signed))
	c.Backend.Commit()

	receipt, err := rpc.TransactionReceipt(ctx, signed.Hash())
	require.NoError(t, err)
	require.Equal(t, types.ReceiptStatusSuccessful, receipt.Status)
	return signed.Hash().Hex()
}

// Mine commits pending transactions such as refunds
func (c *Chain) Mine() {
	c.Backend.Commit()
}

func units(t *testing.T, v string) *big.Int {
	t.Helper()
	out, err := chains.ParseUnits(v, decimals)
	require.NoError(t, err)
	return out
}

// startServerE starts the ogwallet server in-process against postgres and the simulated chain
func startServerE(connString string, chain *Chain) (*httptest.Server, storage.Store, error) {
	ctx := context.Background()
	cfg := &config.Config{
		Server: config.ServerConfig{
			Port:          8080,
			Host:          "0.0.0.0",
			MaxBodySizeMB: 1,
		},
		Storage: config.StorageConfig{
			Type:     "postgres",
			Postgres: config.PostgresConfig{URL: connString},
		},
		Auth:      config.AuthConfig{Type: "api-key"},
		Logging:   config.LoggingConfig{Level: "debug", Format: "text"},
		RateLimit: config.RateLimitConfig{Enabled: false},
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	store, err := storage.New(cfg.Storage, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create store: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	registry := eligibilitydomain.NewRegistry(store)
	if err := registry.Load(ctx); err != nil {
		return nil, nil, fmt.Errorf("loading eligible list: %w", err)
	}
	claims := claimsdomain.NewLedger(store)
	if err := claims.Load(ctx); err != nil {
		return nil, nil, fmt.Errorf("loading claims: %w", err)
	}

	rpc := chain.Backend.Client()
	chainID, err := rpc.ChainID(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("fetching chain id: %w", err)
	}
	wallet, err := evm.NewWallet(rpc, fmt.Sprintf("%x", crypto.FromECDSA(chain.Service.Key)), chain.Service.Address.Hex(), chainID, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("loading service wallet: %w", err)
	}
	ledger := evm.NewClient(rpc, chainID, logger)

	amount, err := chains.ParseUnits(verificationAmount, decimals)
	if err != nil {
		return nil, nil, err
	}
	refund, err := chains.ParseUnits(refundAmount, decimals)
	if err != nil {
		return nil, nil, err
	}

	recorder := audit.NewStoreRecorder(store, logger)
	engine := domain.NewEngine(domain.EngineConfig{
		ReceivingAddress: wallet.Address(),
		Amount:           amount,
		RefundAmount:     refund,
		Timeout:          10 * time.Minute,
		ScanInterval:     time.Hour,
		SweepInterval:    time.Hour,
		Window:           50,
		Decimals:         decimals,
		Symbol:           "ETH",
		CodeLength:       6,
	}, domain.Deps{
		Registry:  registry,
		Claims:    claims,
		Strategy:  domain.NewStrategy("sender", 6),
		Transfers: store,
		Audit:     recorder,
		Ledger:    ledger,
		Scanner:   domain.NewScanner(ledger, 0, 4, logger),
		Refunds:   domain.NewRefundIssuer(wallet, recorder, logger),
		Logger:    logger,
	})
	if err := engine.Warm(ctx); err != nil {
		return nil, nil, fmt.Errorf("warming engine: %w", err)
	}

	srv := server.New(cfg, store, server.Services{
		Verification: domain.LoggingMiddleware(logger)(domain.NewService(engine)),
		Registry:     registry,
		Claims:       claims,
	}, logger)

	return httptest.NewServer(srv.Handler()), store, nil
}

// newClient creates a new API client for the test server
func newClient(testServer *httptest.Server, apiKey string) *client.Client {
	return client.New(testServer.URL, apiKey)
}

// createTestAPIKey creates a test API key using the store directly
func createTestAPIKey(t *testing.T, store storage.Store, name string) string {
	key, err := store.CreateAPIKey(context.Background(), name)
	require.NoError(t, err, "Failed to create API key")
	return key
}

// assertHTTPError asserts that the error is an API error with the given code
func assertHTTPError(t *testing.T, err error, expectedCode string) {
	t.Helper()
	require.Error(t, err)
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		assert.Equal(t, expectedCode, apiErr.Code, "error code mismatch: %s", apiErr.Message)
		return
	}
	t.Fatalf("expected APIError with code %s, got %T: %v", expectedCode, err, err)
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"golang.org/x/sync/errgroup"

	"github.com/monito83/OgWalletBot/internal/audit"
	"github.com/monito83/OgWalletBot/internal/auth"
	"github.com/monito83/OgWalletBot/internal/chains"
	"github.com/monito83/OgWalletBot/internal/chains/evm"
	claimsdomain "github.com/monito83/OgWalletBot/internal/claims/domain"
	"github.com/monito83/OgWalletBot/internal/config"
	"github.com/monito83/OgWalletBot/internal/discord"
	eligibilitydomain "github.com/monito83/OgWalletBot/internal/eligibility/domain"
	"github.com/monito83/OgWalletBot/internal/observability/metrics"
	"github.com/monito83/OgWalletBot/internal/server"
	"github.com/monito83/OgWalletBot/internal/storage"
	"github.com/monito83/OgWalletBot/internal/verification/domain"
)

const (
	ledgerDialTimeout = 15 * time.Second
	shutdownTimeout   = 30 * time.Second
)

func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg, os.Stdout)
	slog.SetDefault(logger)
	logger.Info("starting ogwallet-server", "version", version, "storage", cfg.Storage.Type)

	metrics.Init(cfg.Metrics.Enabled, cfg.Metrics.Service)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.New(cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("initializing storage: %w", err)
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	registry := eligibilitydomain.NewRegistry(store)
	if err := registry.Load(ctx); err != nil {
		return fmt.Errorf("loading eligible list: %w", err)
	}
	claims := claimsdomain.NewLedger(store)
	if err := claims.Load(ctx); err != nil {
		return fmt.Errorf("loading claims: %w", err)
	}
	logger.Info("state loaded", "eligible", registry.Count(), "claimed", claims.Count())

	engine, closeLedger, err := buildEngine(ctx, cfg, store, registry, claims, logger)
	if err != nil {
		return err
	}
	defer closeLedger()

	if err := engine.Warm(ctx); err != nil {
		logger.Warn("could not warm processed transfers", "error", err)
	}

	svc := domain.LoggingMiddleware(logger)(domain.NewService(engine))
	srv := server.New(cfg, store, server.Services{
		Verification: svc,
		Registry:     registry,
		Claims:       claims,
	}, logger)
	defer srv.Close()

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      srv.Handler(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		engine.Run(gctx)
		return nil
	})
	g.Go(func() error {
		logger.Info("server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}

// buildEngine wires the reconciliation engine. Ledger problems are not
// fatal: the engine starts without payment scanning and reports why.
func buildEngine(ctx context.Context, cfg *config.Config, store storage.Store, registry *eligibilitydomain.Registry, claims *claimsdomain.Ledger, logger *slog.Logger) (*domain.Engine, func(), error) {
	amount, err := chains.ParseUnits(cfg.Verification.Amount, cfg.Ledger.Decimals)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing verification amount: %w", err)
	}
	refundAmount, err := chains.ParseUnits(cfg.Verification.RefundAmount, cfg.Ledger.Decimals)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing refund amount: %w", err)
	}

	recorders := []audit.Recorder{audit.NewStoreRecorder(store, logger)}
	if cfg.Discord.AuditWebhookURL != "" {
		recorders = append(recorders, audit.NewWebhookRecorder(cfg.Discord.AuditWebhookURL, logger))
	}
	recorder := audit.WithActor(audit.Multi(recorders...), auth.CallerFromContext)

	deps := domain.Deps{
		Registry:  registry,
		Claims:    claims,
		Strategy:  domain.NewStrategy(cfg.Verification.Strategy, cfg.Verification.CodeLength),
		Transfers: store,
		Audit:     recorder,
		Logger:    logger,
	}

	requireOrigin := false
	if cfg.Discord.BotToken != "" {
		client := discord.New(cfg.Discord.APIBase, cfg.Discord.BotToken, cfg.Discord.RoleName, logger,
			discord.WithDefaultGuild(cfg.Discord.GuildID))
		requireOrigin = cfg.Discord.GuildID == ""
		deps.Granter = client
		deps.Notifier = client
	} else {
		logger.Warn("DISCORD_BOT_TOKEN not set; credentials will not be granted and claimants will not be notified")
	}

	closeLedger := func() {}
	ledger, wallet, ec, reason := connectLedger(ctx, cfg, logger)
	if ledger != nil {
		closeLedger = ec.Close
		deps.Ledger = ledger
		deps.Scanner = domain.NewScanner(ledger, cfg.Verification.ScanRequestDelay, cfg.Verification.ScanConcurrency, logger)
		deps.Refunds = domain.NewRefundIssuer(wallet, recorder, logger)
	} else {
		deps.Reason = reason
		logger.Warn("payment verification unavailable", "reason", reason, "direct_grant_fallback", cfg.Verification.DirectGrantFallback)
	}

	engine := domain.NewEngine(domain.EngineConfig{
		ReceivingAddress:    cfg.Ledger.ReceivingAddress,
		Amount:              amount,
		RefundAmount:        refundAmount,
		Timeout:             cfg.Verification.Timeout,
		ScanInterval:        cfg.Verification.ScanInterval,
		SweepInterval:       cfg.Verification.SweepInterval,
		Window:              uint64(cfg.Verification.ScanWindow),
		Decimals:            cfg.Ledger.Decimals,
		Symbol:              cfg.Ledger.Symbol,
		CodeLength:          cfg.Verification.CodeLength,
		DirectGrantFallback: cfg.Verification.DirectGrantFallback,
		RequireOrigin:       requireOrigin,
	}, deps)
	return engine, closeLedger, nil
}

// connectLedger dials the RPC endpoint and loads the service wallet. On
// failure it returns nil clients and the reason.
// lowBalanceThreshold parses the refund wallet warning threshold. An
// unparseable value disables the warning.
func lowBalanceThreshold(cfg *config.Config, logger *slog.Logger) *big.Int {
	low, err := chains.ParseUnits(cfg.Ledger.LowBalance, cfg.Ledger.Decimals)
	if err != nil {
		logger.Warn("ignoring low balance threshold", "value", cfg.Ledger.LowBalance, "error", err)
		return nil
	}
	return low
}

func connectLedger(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*evm.Client, *evm.Wallet, *ethclient.Client, string) {
	if !cfg.LedgerEnabled() {
		return nil, nil, nil, "ledger not configured (LEDGER_RPC_URL, RECEIVING_ADDRESS and SIGNING_KEY are required)"
	}

	dialCtx, cancel := context.WithTimeout(ctx, ledgerDialTimeout)
	defer cancel()

	ec, chainID, err := evm.Dial(dialCtx, cfg.Ledger.RPCURL, cfg.Ledger.ChainID)
	if err != nil {
		return nil, nil, nil, err.Error()
	}

	wallet, err := evm.NewWallet(ec, cfg.Ledger.SigningKey, cfg.Ledger.ReceivingAddress, chainID, logger)
	if err != nil {
		ec.Close()
		return nil, nil, nil, err.Error()
	}

	if bal, err := wallet.CheckBalance(dialCtx, lowBalanceThreshold(cfg, logger)); err != nil {
		logger.Warn("could not read refund wallet balance", "error", err)
	} else {
		logger.Info("refund wallet ready",
			"address", wallet.Address(),
			"chain_id", chainID.String(),
			"balance", chains.FormatUnits(bal, cfg.Ledger.Decimals)+" "+cfg.Ledger.Symbol,
		)
	}

	return evm.NewClient(ec, chainID, logger), wallet, ec, ""
}

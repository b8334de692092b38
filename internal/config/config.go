package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/monito83/OgWalletBot/internal/chains"
)

// Config holds all configuration for the server
type Config struct {
	Server       ServerConfig       `toml:"server"`
	Storage      StorageConfig      `toml:"storage"`
	Auth         AuthConfig         `toml:"auth"`
	Logging      LoggingConfig      `toml:"logging"`
	RateLimit    RateLimitConfig    `toml:"rate_limit"`
	Metrics      MetricsConfig      `toml:"metrics"`
	Ledger       LedgerConfig       `toml:"ledger"`
	Verification VerificationConfig `toml:"verification"`
	Discord      DiscordConfig      `toml:"discord"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port           int    `toml:"port"`
	Host           string `toml:"host"`
	ReadTimeout    int    `toml:"read_timeout"`  // seconds
	WriteTimeout   int    `toml:"write_timeout"` // seconds
	IdleTimeout    int    `toml:"idle_timeout"`  // seconds
	MaxBodySizeMB  int    `toml:"max_body_size_mb"`
	RequestTimeout int    `toml:"request_timeout"` // seconds

	// TrustProxy honors X-Forwarded-For from TrustedProxies (CIDRs or IPs)
	TrustProxy     bool     `toml:"trust_proxy"`
	TrustedProxies []string `toml:"trusted_proxies"`
}

// StorageConfig holds storage configuration
type StorageConfig struct {
	Type     string         `toml:"type"` // "file", "sqlite" or "postgres"
	Postgres PostgresConfig `toml:"postgres"`
	SQLite   SQLiteConfig   `toml:"sqlite"`
	File     FileConfig     `toml:"file"`
}

// PostgresConfig holds Postgres connection settings
type PostgresConfig struct {
	URL string `toml:"url"`
}

// SQLiteConfig holds SQLite settings
type SQLiteConfig struct {
	Path string `toml:"path"`
}

// FileConfig holds flat-file storage settings
type FileConfig struct {
	EligibleListPath string `toml:"eligible_list_path"`
	ClaimsPath       string `toml:"claims_path"`
	StatePath        string `toml:"state_path"`
	// ProcessedRetention is how many blocks of non-accepted processed
	// transfers the state file keeps. Zero means twice the scan window.
	ProcessedRetention int `toml:"processed_retention"`
}

// AuthConfig holds authentication settings
type AuthConfig struct {
	Type string `toml:"type"` // "none" or "api-key"
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "text" or "json"
}

// RateLimitConfig holds rate limiting settings
type RateLimitConfig struct {
	Enabled        bool `toml:"enabled"`
	RequestsPerMin int  `toml:"requests_per_min"`
	BurstSize      int  `toml:"burst_size"`
	CleanupMinutes int  `toml:"cleanup_minutes"`
}

// MetricsConfig holds Prometheus settings
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Service string `toml:"service"`
}

// LedgerConfig holds the EVM ledger connection and the service wallet
type LedgerConfig struct {
	RPCURL           string `toml:"rpc_url"`
	ChainID          int64  `toml:"chain_id"` // 0 = ask the node
	ReceivingAddress string `toml:"receiving_address"`
	SigningKey       string `toml:"-"` // env only
	Decimals         int    `toml:"decimals"`
	Symbol           string `toml:"symbol"`
	LowBalance       string `toml:"low_balance"`
}

// VerificationConfig holds reconciliation engine settings
type VerificationConfig struct {
	Amount              string        `toml:"amount"`
	RefundAmount        string        `toml:"refund_amount"`
	Timeout             time.Duration `toml:"timeout"`
	ScanInterval        time.Duration `toml:"scan_interval"`
	SweepInterval       time.Duration `toml:"sweep_interval"`
	ScanWindow          int           `toml:"scan_window"`
	ScanRequestDelay    time.Duration `toml:"scan_request_delay"`
	ScanConcurrency     int           `toml:"scan_concurrency"`
	Strategy            string        `toml:"strategy"` // "sender" or "code"
	CodeLength          int           `toml:"code_length"`
	DirectGrantFallback bool          `toml:"direct_grant_fallback"`
}

// DiscordConfig holds settings for the credential-grant, notification and
// audit collaborators
type DiscordConfig struct {
	BotToken        string `toml:"-"` // env only
	APIBase         string `toml:"api_base"`
	RoleName        string `toml:"role_name"`
	GuildID         string `toml:"guild_id"` // used when a request carries no origin
	AuditWebhookURL string `toml:"audit_webhook_url"`
}

// Load loads configuration from the optional TOML file named by CONFIG_FILE,
// then applies environment variable overrides.
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	// If DATABASE_URL is set, default to postgres
	if cfg.Storage.Postgres.URL != "" && os.Getenv("STORAGE_TYPE") == "" && cfg.Storage.Type == "sqlite" {
		cfg.Storage.Type = "postgres"
	}

	if cfg.Verification.RefundAmount == "" {
		cfg.Verification.RefundAmount = cfg.Verification.Amount
	}
	if cfg.Storage.File.ProcessedRetention == 0 {
		cfg.Storage.File.ProcessedRetention = 2 * cfg.Verification.ScanWindow
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           8080,
			Host:           "0.0.0.0",
			ReadTimeout:    30,
			WriteTimeout:   60,
			IdleTimeout:    120,
			MaxBodySizeMB:  5,
			RequestTimeout: 30,
		},
		Storage: StorageConfig{
			Type:   "sqlite",
			SQLite: SQLiteConfig{Path: "./data/ogwallet.db"},
			File: FileConfig{
				EligibleListPath: "./og_wallets.txt",
				ClaimsPath:       "./verified_wallets.json",
				StatePath:        "./data/state.json",
			},
		},
		Auth:    AuthConfig{Type: "none"},
		Logging: LoggingConfig{Level: "info", Format: "json"},
		RateLimit: RateLimitConfig{
			Enabled:        true,
			RequestsPerMin: 120,
			BurstSize:      20,
			CleanupMinutes: 10,
		},
		Metrics: MetricsConfig{Enabled: true, Service: "ogwallet"},
		Ledger: LedgerConfig{
			RPCURL:     "https://testnet-rpc.monad.xyz",
			Decimals:   18,
			Symbol:     "MON",
			LowBalance: "0.1",
		},
		Verification: VerificationConfig{
			Amount:           "0.001",
			Timeout:          10 * time.Minute,
			ScanInterval:     30 * time.Second,
			SweepInterval:    time.Minute,
			ScanWindow:       20,
			ScanRequestDelay: 100 * time.Millisecond,
			ScanConcurrency:  1,
			Strategy:         "sender",
			CodeLength:       6,
		},
		Discord: DiscordConfig{
			APIBase:  "https://discord.com/api/v10",
			RoleName: "OG",
		},
	}
}

func applyEnv(cfg *Config) {
	cfg.Server.Port = getEnvInt("PORT", cfg.Server.Port)
	cfg.Server.Host = getEnv("HOST", cfg.Server.Host)
	cfg.Server.ReadTimeout = getEnvInt("SERVER_READ_TIMEOUT", cfg.Server.ReadTimeout)
	cfg.Server.WriteTimeout = getEnvInt("SERVER_WRITE_TIMEOUT", cfg.Server.WriteTimeout)
	cfg.Server.IdleTimeout = getEnvInt("SERVER_IDLE_TIMEOUT", cfg.Server.IdleTimeout)
	cfg.Server.MaxBodySizeMB = getEnvInt("SERVER_MAX_BODY_SIZE_MB", cfg.Server.MaxBodySizeMB)
	cfg.Server.RequestTimeout = getEnvInt("SERVER_REQUEST_TIMEOUT", cfg.Server.RequestTimeout)
	cfg.Server.TrustProxy = getEnvBool("TRUST_PROXY", cfg.Server.TrustProxy)
	cfg.Server.TrustedProxies = getEnvStringSlice("TRUSTED_PROXIES", cfg.Server.TrustedProxies)

	cfg.Storage.Type = getEnv("STORAGE_TYPE", cfg.Storage.Type)
	cfg.Storage.Postgres.URL = getEnv("DATABASE_URL", cfg.Storage.Postgres.URL)
	cfg.Storage.SQLite.Path = getEnv("SQLITE_PATH", cfg.Storage.SQLite.Path)
	cfg.Storage.File.EligibleListPath = getEnv("ELIGIBLE_LIST_PATH", cfg.Storage.File.EligibleListPath)
	cfg.Storage.File.ClaimsPath = getEnv("CLAIMS_PATH", cfg.Storage.File.ClaimsPath)
	cfg.Storage.File.StatePath = getEnv("STATE_PATH", cfg.Storage.File.StatePath)
	cfg.Storage.File.ProcessedRetention = getEnvInt("FILE_PROCESSED_RETENTION", cfg.Storage.File.ProcessedRetention)

	cfg.Auth.Type = getEnv("AUTH_TYPE", cfg.Auth.Type)

	cfg.Logging.Level = getEnv("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = getEnv("LOG_FORMAT", cfg.Logging.Format)

	cfg.RateLimit.Enabled = getEnvBool("RATE_LIMIT_ENABLED", cfg.RateLimit.Enabled)
	cfg.RateLimit.RequestsPerMin = getEnvInt("RATE_LIMIT_RPM", cfg.RateLimit.RequestsPerMin)
	cfg.RateLimit.BurstSize = getEnvInt("RATE_LIMIT_BURST", cfg.RateLimit.BurstSize)
	cfg.RateLimit.CleanupMinutes = getEnvInt("RATE_LIMIT_CLEANUP_MINUTES", cfg.RateLimit.CleanupMinutes)

	cfg.Metrics.Enabled = getEnvBool("METRICS_ENABLED", cfg.Metrics.Enabled)

	cfg.Ledger.RPCURL = getEnv("LEDGER_RPC_URL", cfg.Ledger.RPCURL)
	cfg.Ledger.ChainID = int64(getEnvInt("LEDGER_CHAIN_ID", int(cfg.Ledger.ChainID)))
	cfg.Ledger.ReceivingAddress = getEnv("RECEIVING_ADDRESS", cfg.Ledger.ReceivingAddress)
	cfg.Ledger.SigningKey = getEnv("SIGNING_KEY", cfg.Ledger.SigningKey)
	cfg.Ledger.Decimals = getEnvInt("LEDGER_DECIMALS", cfg.Ledger.Decimals)
	cfg.Ledger.Symbol = getEnv("LEDGER_SYMBOL", cfg.Ledger.Symbol)
	cfg.Ledger.LowBalance = getEnv("LEDGER_LOW_BALANCE", cfg.Ledger.LowBalance)

	cfg.Verification.Amount = getEnv("VERIFICATION_AMOUNT", cfg.Verification.Amount)
	cfg.Verification.RefundAmount = getEnv("REFUND_AMOUNT", cfg.Verification.RefundAmount)
	cfg.Verification.Timeout = getEnvDuration("VERIFICATION_TIMEOUT", cfg.Verification.Timeout)
	cfg.Verification.ScanInterval = getEnvDuration("SCAN_INTERVAL", cfg.Verification.ScanInterval)
	cfg.Verification.SweepInterval = getEnvDuration("SWEEP_INTERVAL", cfg.Verification.SweepInterval)
	cfg.Verification.ScanWindow = getEnvInt("SCAN_WINDOW", cfg.Verification.ScanWindow)
	cfg.Verification.ScanRequestDelay = getEnvDuration("SCAN_REQUEST_DELAY", cfg.Verification.ScanRequestDelay)
	cfg.Verification.ScanConcurrency = getEnvInt("SCAN_CONCURRENCY", cfg.Verification.ScanConcurrency)
	cfg.Verification.Strategy = getEnv("MATCH_STRATEGY", cfg.Verification.Strategy)
	cfg.Verification.CodeLength = getEnvInt("REQUEST_CODE_LENGTH", cfg.Verification.CodeLength)
	cfg.Verification.DirectGrantFallback = getEnvBool("DIRECT_GRANT_FALLBACK", cfg.Verification.DirectGrantFallback)

	cfg.Discord.BotToken = getEnv("DISCORD_BOT_TOKEN", cfg.Discord.BotToken)
	cfg.Discord.APIBase = getEnv("DISCORD_API_BASE", cfg.Discord.APIBase)
	cfg.Discord.RoleName = getEnv("CREDENTIAL_ROLE_NAME", cfg.Discord.RoleName)
	cfg.Discord.GuildID = getEnv("DISCORD_GUILD_ID", cfg.Discord.GuildID)
	cfg.Discord.AuditWebhookURL = getEnv("AUDIT_WEBHOOK_URL", cfg.Discord.AuditWebhookURL)
}

// Validate checks settings that cannot be defaulted.
func (c *Config) Validate() error {
	switch c.Storage.Type {
	case "file", "sqlite", "postgres":
	default:
		return fmt.Errorf("unknown storage type: %s", c.Storage.Type)
	}
	switch c.Verification.Strategy {
	case "sender", "code":
	default:
		return fmt.Errorf("unknown match strategy: %s", c.Verification.Strategy)
	}
	if c.Verification.Timeout <= 0 {
		return fmt.Errorf("verification timeout must be positive")
	}
	if c.Verification.ScanInterval <= 0 || c.Verification.SweepInterval <= 0 {
		return fmt.Errorf("scan and sweep intervals must be positive")
	}
	if c.Verification.ScanWindow < 0 {
		return fmt.Errorf("scan window cannot be negative")
	}
	if c.Storage.File.ProcessedRetention < 0 {
		return fmt.Errorf("processed transfer retention cannot be negative")
	}
	if c.Verification.CodeLength < 4 || c.Verification.CodeLength > 16 {
		return fmt.Errorf("request code length must be between 4 and 16")
	}
	if c.Ledger.Decimals < 0 || c.Ledger.Decimals > 36 {
		return fmt.Errorf("ledger decimals out of range: %d", c.Ledger.Decimals)
	}
	amount, err := chains.ParseUnits(c.Verification.Amount, c.Ledger.Decimals)
	if err != nil {
		return fmt.Errorf("invalid verification amount %q: %w", c.Verification.Amount, err)
	}
	if amount.Sign() <= 0 {
		return fmt.Errorf("verification amount must be positive")
	}
	if _, err := chains.ParseUnits(c.Verification.RefundAmount, c.Ledger.Decimals); err != nil {
		return fmt.Errorf("invalid refund amount %q: %w", c.Verification.RefundAmount, err)
	}
	if _, err := chains.ParseUnits(c.Ledger.LowBalance, c.Ledger.Decimals); err != nil {
		return fmt.Errorf("invalid low balance threshold %q: %w", c.Ledger.LowBalance, err)
	}
	return nil
}

// LedgerEnabled reports whether enough ledger settings are present to start
// the scanning subsystem.
func (c *Config) LedgerEnabled() bool {
	return c.Ledger.RPCURL != "" && c.Ledger.ReceivingAddress != "" && c.Ledger.SigningKey != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvDuration accepts Go duration strings ("90s", "10m") or plain seconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		if secs, err := strconv.Atoi(value); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}

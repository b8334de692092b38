package cli

import (
	"encoding/json"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/monito83/OgWalletBot/pkg/client"
)

var (
	cfgFile    string
	server     string
	apiKey     string
	jsonOutput bool
)

// Execute runs the CLI
func Execute(version string) error {
	return newRootCmd(version).Execute()
}

func newRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "ogwallet",
		Short:   "OG wallet verification CLI",
		Long:    `ogwallet talks to an ogwallet-server: start and check verifications, manage the eligible list and operate the reconciliation engine.`,
		Version: version,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "project config file (default: ogwallet.toml)")
	rootCmd.PersistentFlags().StringVar(&server, "server", "", "server URL (default from config)")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "API key for authentication")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print raw JSON responses")

	rootCmd.AddCommand(createVerifyCmd())
	rootCmd.AddCommand(createStatusCmd())
	rootCmd.AddCommand(createCancelCmd())
	rootCmd.AddCommand(createPendingCmd())
	rootCmd.AddCommand(createOwnerCmd())
	rootCmd.AddCommand(createClaimsCmd())
	rootCmd.AddCommand(createTxCmd())
	rootCmd.AddCommand(createReconcileCmd())
	rootCmd.AddCommand(createModeCmd())
	rootCmd.AddCommand(createAuditCmd())
	rootCmd.AddCommand(createWalletsCmd())
	rootCmd.AddCommand(createAuthCmd())
	rootCmd.AddCommand(createConfigCmd())

	return rootCmd
}

// getServer returns the server URL from flag, env, config file, or the default
func getServer() string {
	if server != "" {
		return server
	}
	if env := os.Getenv("OGWALLET_SERVER"); env != "" {
		return env
	}
	if config := loadProjectConfigSilent(); config != nil && config.Server != "" {
		return config.Server
	}
	if global := loadGlobalConfig(); global != nil && global.Server != "" {
		return global.Server
	}
	return "http://localhost:8080"
}

// getAPIKey returns the API key from flag, env, or credentials file
func getAPIKey() string {
	if apiKey != "" {
		return apiKey
	}
	if env := os.Getenv("OGWALLET_API_KEY"); env != "" {
		return env
	}
	return getCredential(getServer())
}

func newClient() *client.Client {
	return client.New(getServer(), getAPIKey())
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func truncateAddress(addr string) string {
	if len(addr) <= 12 {
		return addr
	}
	return addr[:6] + "..." + addr[len(addr)-4:]
}

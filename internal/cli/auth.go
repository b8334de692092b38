package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/monito83/OgWalletBot/pkg/client"
)

// Credentials stores admin API keys per server
type Credentials struct {
	Servers map[string]ServerCredential `yaml:"servers"`
}

// ServerCredential is the stored key for one server
type ServerCredential struct {
	APIKey  string    `yaml:"api_key"`
	Name    string    `yaml:"name,omitempty"`
	SavedAt time.Time `yaml:"saved_at,omitempty"`
}

func createAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage admin API keys",
	}

	cmd.AddCommand(createAuthLoginCmd())
	cmd.AddCommand(createAuthLogoutCmd())
	cmd.AddCommand(createAuthStatusCmd())

	return cmd
}

func createAuthLoginCmd() *cobra.Command {
	var serverFlag string
	var apiKeyFlag string
	var nameFlag string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store an admin API key",
		Long: `Store an admin API key for an ogwallet server.

The key is checked against the admin API before it is saved to
~/.ogwallet/credentials (mode 0600). Keys are created on the server host
with 'ogwallet-server keys create'.

EXAMPLES:
  # Prompt for the key
  ogwallet auth login

  # Specific server, labelled
  ogwallet auth login --server https://og.example.com --name prod

  # Non-interactive (CI)
  ogwallet auth login --api-key $OGWALLET_API_KEY
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuthLogin(cmd.OutOrStdout(), os.Stdin, serverFlag, apiKeyFlag, nameFlag)
		},
	}

	cmd.Flags().StringVar(&serverFlag, "server", "", "server URL (default from config)")
	cmd.Flags().StringVar(&apiKeyFlag, "api-key", "", "API key (prompts if not provided)")
	cmd.Flags().StringVar(&nameFlag, "name", "", "label shown by 'auth status'")

	return cmd
}

func createAuthLogoutCmd() *cobra.Command {
	var serverFlag string
	var allFlag bool

	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Forget stored keys",
		Long: `Remove the stored key for a server, or every stored key with --all.

EXAMPLES:
  ogwallet auth logout
  ogwallet auth logout --server https://og.example.com
  ogwallet auth logout --all
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuthLogout(cmd.OutOrStdout(), serverFlag, allFlag)
		},
	}

	cmd.Flags().StringVar(&serverFlag, "server", "", "server URL (default from config)")
	cmd.Flags().BoolVar(&allFlag, "all", false, "clear all credentials")

	return cmd
}

func createAuthStatusCmd() *cobra.Command {
	var check bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "List stored keys",
		Long: `List the servers with a stored key. With --check every key is tried
against its server.

EXAMPLES:
  ogwallet auth status
  ogwallet auth status --check
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuthStatus(cmd.OutOrStdout(), check)
		},
	}

	cmd.Flags().BoolVar(&check, "check", false, "validate each key against its server")

	return cmd
}

func runAuthLogin(out io.Writer, in *os.File, serverURL, key, name string) error {
	if serverURL == "" {
		serverURL = getServer()
	}
	serverURL = normalizeServer(serverURL)

	if key == "" {
		var err error
		if key, err = promptAPIKey(out, in, serverURL); err != nil {
			return err
		}
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("API key cannot be empty")
	}

	fmt.Fprintf(out, "Checking key with %s...\n", serverURL)
	valid, err := validateAPIKey(serverURL, key)
	if err != nil {
		return fmt.Errorf("failed to validate credentials: %w", err)
	}
	if !valid {
		return errors.New("invalid API key")
	}

	creds, err := loadCredentialsOrEmpty()
	if err != nil {
		return fmt.Errorf("failed to load credentials: %w", err)
	}
	creds.Servers[serverURL] = ServerCredential{APIKey: key, Name: name, SavedAt: time.Now().UTC()}
	if err := writeCredentials(creds); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}

	fmt.Fprintf(out, "✅ Logged in to %s (key: %s)\n", serverURL, maskAPIKey(key))
	fmt.Fprintf(out, "   Saved to %s\n", credentialsFilePath())
	return nil
}

// promptAPIKey reads the key without echo from a terminal, or one line from
// a pipe.
func promptAPIKey(out io.Writer, in *os.File, serverURL string) (string, error) {
	fmt.Fprintf(out, "API key for %s: ", serverURL)

	fd := int(in.Fd())
	if term.IsTerminal(fd) {
		raw, err := term.ReadPassword(fd)
		fmt.Fprintln(out)
		if err != nil {
			return "", fmt.Errorf("failed to read API key: %w", err)
		}
		return string(raw), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read API key: %w", err)
	}
	return line, nil
}

func runAuthLogout(out io.Writer, serverURL string, all bool) error {
	if all {
		if err := os.Remove(credentialsFilePath()); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove credentials: %w", err)
		}
		fmt.Fprintln(out, "✅ All credentials cleared")
		return nil
	}

	if serverURL == "" {
		serverURL = getServer()
	}
	serverURL = normalizeServer(serverURL)

	creds, err := loadCredentialsOrEmpty()
	if err != nil {
		return fmt.Errorf("failed to load credentials: %w", err)
	}
	if _, ok := creds.Servers[serverURL]; !ok {
		fmt.Fprintf(out, "No credentials stored for %s\n", serverURL)
		return nil
	}

	delete(creds.Servers, serverURL)
	if err := writeCredentials(creds); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}
	fmt.Fprintf(out, "✅ Logged out of %s\n", serverURL)
	return nil
}

func runAuthStatus(out io.Writer, check bool) error {
	creds, err := loadCredentialsOrEmpty()
	if err != nil {
		return fmt.Errorf("failed to load credentials: %w", err)
	}
	if len(creds.Servers) == 0 {
		fmt.Fprintln(out, "Not authenticated to any servers")
		fmt.Fprintln(out, "\nRun 'ogwallet auth login' to authenticate")
		return nil
	}

	servers := make([]string, 0, len(creds.Servers))
	for s := range creds.Servers {
		servers = append(servers, s)
	}
	sort.Strings(servers)

	fmt.Fprintln(out, "Authenticated servers:")
	for _, s := range servers {
		cred := creds.Servers[s]
		line := fmt.Sprintf("  • %s (key: %s", s, maskAPIKey(cred.APIKey))
		if cred.Name != "" {
			line += ", " + cred.Name
		}
		line += ")"
		if check {
			switch valid, err := validateAPIKey(s, cred.APIKey); {
			case err != nil:
				line += " unreachable: " + err.Error()
			case valid:
				line += " ok"
			default:
				line += " REJECTED"
			}
		}
		fmt.Fprintln(out, line)
	}
	return nil
}

func normalizeServer(serverURL string) string {
	return strings.TrimRight(strings.TrimSpace(serverURL), "/")
}

func credentialsDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".ogwallet"
	}
	return filepath.Join(home, ".ogwallet")
}

func credentialsFilePath() string {
	return filepath.Join(credentialsDir(), "credentials")
}

func loadCredentials() (*Credentials, error) {
	data, err := os.ReadFile(credentialsFilePath())
	if err != nil {
		return nil, err
	}

	var creds Credentials
	if err := yaml.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", credentialsFilePath(), err)
	}
	if creds.Servers == nil {
		creds.Servers = make(map[string]ServerCredential)
	}
	return &creds, nil
}

func loadCredentialsOrEmpty() (*Credentials, error) {
	creds, err := loadCredentials()
	if os.IsNotExist(err) {
		return &Credentials{Servers: make(map[string]ServerCredential)}, nil
	}
	return creds, err
}

func writeCredentials(creds *Credentials) error {
	if err := os.MkdirAll(credentialsDir(), 0700); err != nil {
		return err
	}
	data, err := yaml.Marshal(creds)
	if err != nil {
		return err
	}
	return os.WriteFile(credentialsFilePath(), data, 0600)
}

func saveCredential(serverURL, key string) error {
	creds, err := loadCredentialsOrEmpty()
	if err != nil {
		return err
	}
	creds.Servers[normalizeServer(serverURL)] = ServerCredential{APIKey: key, SavedAt: time.Now().UTC()}
	return writeCredentials(creds)
}

func getCredential(serverURL string) string {
	creds, err := loadCredentials()
	if err != nil {
		return ""
	}
	return creds.Servers[normalizeServer(serverURL)].APIKey
}

// validateAPIKey asks the server for its engine mode, which sits behind the
// admin key check. Only an UNAUTHORIZED answer marks the key invalid.
func validateAPIKey(serverURL, key string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	_, err := client.New(serverURL, key).Mode(ctx)
	if err == nil {
		return true, nil
	}

	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status != http.StatusUnauthorized && apiErr.Code != "UNAUTHORIZED", nil
	}
	return false, err
}

func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:8] + "..." + key[len(key)-4:]
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/monito83/OgWalletBot/internal/storage"
)

var (
	errKeyNotFound  = errors.New("key not found")
	errKeyAmbiguous = errors.New("key prefix matches more than one key")
)

func newKeysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage admin API keys",
	}

	cmd.AddCommand(newKeysCreateCmd())
	cmd.AddCommand(newKeysListCmd())
	cmd.AddCommand(newKeysRevokeCmd())

	return cmd
}

func newKeysCreateCmd() *cobra.Command {
	var name string
	var outputFile string
	var quiet bool

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new API key",
		Long: `Create an API key for the bot or an operator.

The key is written to a file (mode 0600) and shown only once.

EXAMPLES:
  ogwallet-server keys create --name discord-bot
  ogwallet-server keys create --name ops --output /secure/path/key.txt
  ogwallet-server keys create --name ops --quiet
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(store storage.Store) error {
				return runKeysCreate(cmd.Context(), store, cmd.OutOrStdout(), name, outputFile, quiet)
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "label for the key (required)")
	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "write key to file (default: ./ogwallet-key-{name}.txt)")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "print only the key (for piping)")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

func newKeysListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(store storage.Store) error {
				return runKeysList(cmd.Context(), store, cmd.OutOrStdout())
			})
		},
	}
}

func newKeysRevokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke an API key",
		Long: `Revoke an API key. The ID comes from 'ogwallet-server keys list';
a unique prefix of at least 8 characters is enough.
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(store storage.Store) error {
				return runKeysRevoke(cmd.Context(), store, cmd.OutOrStdout(), args[0])
			})
		},
	}

	return cmd
}

func runKeysCreate(ctx context.Context, store storage.APIKeyStore, out io.Writer, name, outputFile string, quiet bool) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("key name is required")
	}

	key, err := store.CreateAPIKey(ctx, name)
	if err != nil {
		return fmt.Errorf("creating API key: %w", err)
	}

	if quiet {
		fmt.Fprintln(out, key)
		return nil
	}

	if outputFile == "" {
		outputFile = fmt.Sprintf("./ogwallet-key-%s.txt", name)
	}
	if dir := filepath.Dir(outputFile); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("creating directory: %w", err)
		}
	}
	if err := os.WriteFile(outputFile, []byte(key+"\n"), 0o600); err != nil {
		return fmt.Errorf("writing key to file: %w", err)
	}

	fmt.Fprintf(out, "API key %q created\n", name)
	fmt.Fprintf(out, "  Written to %s (mode 0600); it cannot be shown again.\n", outputFile)
	fmt.Fprintln(out)
	fmt.Fprintf(out, "  export OGWALLET_API_KEY=$(cat %s)\n", outputFile)
	fmt.Fprintf(out, "  ogwallet auth login --api-key $OGWALLET_API_KEY\n")
	return nil
}

func runKeysList(ctx context.Context, store storage.APIKeyStore, out io.Writer) error {
	keys, err := store.ListAPIKeys(ctx)
	if err != nil {
		return fmt.Errorf("listing API keys: %w", err)
	}

	if len(keys) == 0 {
		fmt.Fprintln(out, "No API keys")
		fmt.Fprintln(out, "Create one with: ogwallet-server keys create --name discord-bot")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tCREATED\tLAST USED")
	for _, k := range keys {
		lastUsed := k.LastUsedAt
		if lastUsed == "" {
			lastUsed = "never"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", shortID(k.ID), k.Name, k.CreatedAt, lastUsed)
	}
	return w.Flush()
}

func runKeysRevoke(ctx context.Context, store storage.APIKeyStore, out io.Writer, id string) error {
	keys, err := store.ListAPIKeys(ctx)
	if err != nil {
		return fmt.Errorf("listing API keys: %w", err)
	}

	full, err := resolveKeyID(keys, id)
	if err != nil {
		return err
	}
	if err := store.RevokeAPIKey(ctx, full); err != nil {
		return fmt.Errorf("revoking API key: %w", err)
	}

	fmt.Fprintf(out, "API key %s revoked\n", shortID(full))
	return nil
}

// resolveKeyID accepts a full ID or a unique prefix of at least 8 characters.
func resolveKeyID(keys []storage.APIKey, id string) (string, error) {
	id = strings.TrimSuffix(strings.TrimSpace(id), "...")
	var match string
	for _, k := range keys {
		if k.ID == id {
			return k.ID, nil
		}
		if len(id) >= 8 && strings.HasPrefix(k.ID, id) {
			if match != "" {
				return "", fmt.Errorf("%w: %s", errKeyAmbiguous, id)
			}
			match = k.ID
		}
	}
	if match == "" {
		return "", fmt.Errorf("%w: %s", errKeyNotFound, id)
	}
	return match, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8] + "..."
	}
	return id
}

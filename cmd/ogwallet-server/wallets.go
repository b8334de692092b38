package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	eligibilitydomain "github.com/monito83/OgWalletBot/internal/eligibility/domain"
	"github.com/monito83/OgWalletBot/internal/storage"
)

func newWalletsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wallets",
		Short: "Import or export the eligible wallet list",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "import <file>",
		Short: "Replace the eligible list with a newline-separated file ('-' for stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(store storage.Store) error {
				return runWalletsImport(cmd.Context(), store, cmd.InOrStdin(), cmd.OutOrStdout(), args[0])
			})
		},
	})

	var output string
	export := &cobra.Command{
		Use:   "export",
		Short: "Write the eligible list, one address per line",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(store storage.Store) error {
				return runWalletsExport(cmd.Context(), store, cmd.OutOrStdout(), output)
			})
		},
	}
	export.Flags().StringVarP(&output, "output", "o", "", "write to file instead of stdout")
	cmd.AddCommand(export)

	return cmd
}

func runWalletsImport(ctx context.Context, store eligibilitydomain.Store, stdin io.Reader, out io.Writer, path string) error {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	registry := eligibilitydomain.NewRegistry(store)
	result, err := registry.ReplaceAll(ctx, eligibilitydomain.SplitList(string(data)))
	if err != nil {
		return fmt.Errorf("replacing eligible list: %w", err)
	}

	fmt.Fprintf(out, "Imported %d addresses\n", result.Accepted)
	for _, r := range result.Rejected {
		fmt.Fprintf(out, "  rejected: %s\n", r)
	}
	return nil
}

func runWalletsExport(ctx context.Context, store eligibilitydomain.Store, out io.Writer, path string) error {
	registry := eligibilitydomain.NewRegistry(store)
	if err := registry.Load(ctx); err != nil {
		return fmt.Errorf("loading eligible list: %w", err)
	}

	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
		defer f.Close()
		out = f
	}

	for _, a := range registry.List() {
		if _, err := fmt.Fprintln(out, a); err != nil {
			return err
		}
	}
	return nil
}

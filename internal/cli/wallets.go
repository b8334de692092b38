package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/monito83/OgWalletBot/pkg/client"
)

func createWalletsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wallets",
		Short: "Manage the eligible wallet list (admin)",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List eligible wallets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			wallets, err := newClient().ListWallets(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if jsonOutput {
				return printJSON(out, wallets)
			}
			for _, w := range wallets {
				fmt.Fprintln(out, w)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "add <address>",
		Short: "Add an eligible wallet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			added, err := newClient().AddWallet(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if added {
				fmt.Fprintf(cmd.OutOrStdout(), "✅ Added %s\n", args[0])
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%s is already eligible\n", args[0])
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <address>",
		Short: "Remove an eligible wallet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := newClient().RemoveWallet(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✅ Removed %s\n", args[0])
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "import <file|->",
		Short: "Replace the eligible list from a file",
		Long: `Replace the whole eligible list.

The file holds addresses separated by newlines, commas or spaces.
Use - to read from stdin. Existing claims are kept.
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			return runWalletsImport(cmd.Context(), cmd.OutOrStdout(), newClient(), in)
		},
	})

	return cmd
}

func runWalletsImport(ctx context.Context, out io.Writer, c *client.Client, in io.Reader) error {
	res, err := c.ReplaceWallets(ctx, in)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(out, res)
	}
	fmt.Fprintf(out, "✅ %d wallets accepted\n", res.Accepted)
	if len(res.Rejected) > 0 {
		fmt.Fprintf(out, "   %d rejected:\n", len(res.Rejected))
		for _, r := range res.Rejected {
			fmt.Fprintf(out, "     %s\n", r)
		}
	}
	return nil
}

package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/monito83/OgWalletBot/pkg/client"
)

func createVerifyCmd() *cobra.Command {
	var claimantID string
	var claimantLabel string
	var origin string

	cmd := &cobra.Command{
		Use:   "verify <address>",
		Short: "Start verification of an OG wallet",
		Long: `Start proving ownership of an eligible wallet.

The server answers with a short code and the exact amount to send from the
wallet to the receiving address. The claim is granted once the transfer is
seen on chain and the amount is refunded. When the server runs without a
ledger it may grant directly instead.

The claimant defaults to claimant_id / claimant_label from ogwallet.toml.

EXAMPLES:
  ogwallet verify 0x5e7a...0001 --claimant 4242 --label alice
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := client.InitiateRequest{
				ClaimantID:    claimantID,
				ClaimantLabel: claimantLabel,
				Address:       args[0],
				OriginContext: origin,
			}
			applyClaimantDefaults(&in)
			if in.ClaimantID == "" {
				return fmt.Errorf("claimant is required (use --claimant or set claimant_id in ogwallet.toml)")
			}
			return runVerify(cmd.Context(), cmd.OutOrStdout(), newClient(), in)
		},
	}

	cmd.Flags().StringVar(&claimantID, "claimant", "", "claimant ID")
	cmd.Flags().StringVar(&claimantLabel, "label", "", "claimant display label")
	cmd.Flags().StringVar(&origin, "origin", "", "origin context recorded with the request")

	return cmd
}

func applyClaimantDefaults(in *client.InitiateRequest) {
	config := loadProjectConfigSilent()
	if config == nil {
		return
	}
	if in.ClaimantID == "" {
		in.ClaimantID = config.ClaimantID
		if in.ClaimantLabel == "" {
			in.ClaimantLabel = config.ClaimantLabel
		}
	}
	if in.OriginContext == "" {
		in.OriginContext = config.Origin
	}
}

func runVerify(ctx context.Context, out io.Writer, c *client.Client, in client.InitiateRequest) error {
	res, err := c.Initiate(ctx, in)
	if err != nil {
		return fmt.Errorf("verification failed: %w", err)
	}
	if jsonOutput {
		return printJSON(out, res)
	}

	if res.Granted {
		fmt.Fprintf(out, "✅ %s granted to %s\n", in.Address, in.ClaimantID)
		return nil
	}

	fmt.Fprintf(out, "🔑 Verification code: %s\n", res.Request.Code)
	fmt.Fprintf(out, "   Send:    %s %s\n", res.Amount, res.Symbol)
	fmt.Fprintf(out, "   From:    %s\n", res.Request.Address)
	fmt.Fprintf(out, "   To:      %s\n", res.ReceivingAddress)
	if !res.ExpiresAt.IsZero() {
		fmt.Fprintf(out, "   Expires: %s\n", res.ExpiresAt.Local().Format(time.RFC1123))
	}
	if res.Instructions != "" {
		fmt.Fprintln(out)
		fmt.Fprintln(out, res.Instructions)
	}
	return nil
}

func createStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <address>",
		Short: "Show verification status of an address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.Context(), cmd.OutOrStdout(), newClient(), args[0])
		},
	}
}

func runStatus(ctx context.Context, out io.Writer, c *client.Client, address string) error {
	st, err := c.Status(ctx, address)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(out, st)
	}

	fmt.Fprintf(out, "%s: %s\n", st.Address, st.State)
	switch {
	case st.Owner != nil:
		fmt.Fprintf(out, "   Claimed by: %s (%s)\n", st.Owner.ClaimantLabel, st.Owner.ClaimantID)
		fmt.Fprintf(out, "   Verified:   %s\n", st.Owner.VerifiedAt.Local().Format(time.RFC1123))
	case st.Request != nil:
		fmt.Fprintf(out, "   Code:       %s\n", st.Request.Code)
		fmt.Fprintf(out, "   Claimant:   %s\n", st.Request.ClaimantID)
		if st.Amount != "" {
			fmt.Fprintf(out, "   Send:       %s %s to %s\n", st.Amount, st.Symbol, st.ReceivingAddress)
		}
		if st.Remaining > 0 {
			fmt.Fprintf(out, "   Remaining:  %s\n", st.Remaining.Round(time.Second))
		}
	}
	return nil
}

func createCancelCmd() *cobra.Command {
	var claimantID string

	cmd := &cobra.Command{
		Use:   "cancel <code>",
		Short: "Cancel a pending verification",
		Long: `Cancel a pending verification by its code.

With --claimant only that claimant's own request can be cancelled. Without it
the admin route is used, which needs an API key.
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := newClient().Cancel(cmd.Context(), args[0], claimantID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✅ Cancelled %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&claimantID, "claimant", "", "claimant that owns the request")

	return cmd
}

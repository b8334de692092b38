package cli

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/monito83/OgWalletBot/pkg/client"
)

func createPendingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "List pending verifications (admin)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPending(cmd.Context(), cmd.OutOrStdout(), newClient())
		},
	}
}

func runPending(ctx context.Context, out io.Writer, c *client.Client) error {
	reqs, err := c.ListPending(ctx)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(out, reqs)
	}
	if len(reqs) == 0 {
		fmt.Fprintln(out, "No pending verifications")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CODE\tADDRESS\tCLAIMANT\tEXPIRES")
	for _, r := range reqs {
		expires := "-"
		if !r.ExpiresAt.IsZero() {
			expires = time.Until(r.ExpiresAt).Round(time.Second).String()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Code, truncateAddress(r.Address), claimantName(r.ClaimantID, r.ClaimantLabel), expires)
	}
	return w.Flush()
}

func createOwnerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "owner <address>",
		Short: "Show who claimed an address (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := newClient().LookupClaimant(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if jsonOutput {
				return printJSON(out, owner)
			}
			fmt.Fprintf(out, "%s claimed by %s on %s\n", args[0], claimantName(owner.ClaimantID, owner.ClaimantLabel), owner.VerifiedAt.Local().Format(time.RFC1123))
			return nil
		},
	}
}

func createClaimsCmd() *cobra.Command {
	var claimantID string

	cmd := &cobra.Command{
		Use:   "claims",
		Short: "List claimed addresses (admin)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClaims(cmd.Context(), cmd.OutOrStdout(), newClient(), claimantID)
		},
	}

	cmd.Flags().StringVar(&claimantID, "claimant", "", "only claims held by this claimant")

	return cmd
}

func runClaims(ctx context.Context, out io.Writer, c *client.Client, claimantID string) error {
	claims, err := c.ListClaims(ctx, claimantID)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(out, claims)
	}
	if len(claims) == 0 {
		fmt.Fprintln(out, "No claims")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ADDRESS\tCLAIMANT\tVERIFIED")
	for _, cl := range claims {
		fmt.Fprintf(w, "%s\t%s\t%s\n", cl.Address, claimantName(cl.ClaimantID, cl.ClaimantLabel), cl.VerifiedAt.Format(time.RFC3339))
	}
	return w.Flush()
}

func createTxCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tx",
		Short: "Run a single transfer through the engine (admin)",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "verify <hash>",
		Short: "Match a transfer against pending requests",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rep, err := newClient().VerifyTransfer(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printTransfer(cmd.OutOrStdout(), rep)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "force <hash>",
		Short: "Accept a transfer whatever its amount",
		Long: `Accept a transfer even when its amount does not match.

The refund is the configured refund amount, not the amount received.
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rep, err := newClient().ForceTransfer(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printTransfer(cmd.OutOrStdout(), rep)
		},
	})

	return cmd
}

func printTransfer(out io.Writer, rep *client.TransferReport) error {
	if jsonOutput {
		return printJSON(out, rep)
	}

	icon := "❌"
	if rep.Outcome == "accepted" {
		icon = "✅"
	}
	fmt.Fprintf(out, "%s %s: %s\n", icon, rep.TransferID, rep.Outcome)
	fmt.Fprintf(out, "   From:   %s\n", rep.From)
	fmt.Fprintf(out, "   Amount: %s\n", rep.Amount)
	fmt.Fprintf(out, "   Block:  %d\n", rep.BlockHeight)
	if rep.Code != "" {
		fmt.Fprintf(out, "   Code:   %s (%s)\n", rep.Code, rep.ClaimantID)
	}
	if rep.RefundTx != "" {
		fmt.Fprintf(out, "   Refund: %s\n", rep.RefundTx)
	}
	if rep.RefundError != "" {
		fmt.Fprintf(out, "   Refund failed: %s\n", rep.RefundError)
	}
	if rep.Error != "" {
		fmt.Fprintf(out, "   Error:  %s\n", rep.Error)
	}
	return nil
}

func createReconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Run a reconciliation cycle now (admin)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReconcile(cmd.Context(), cmd.OutOrStdout(), newClient())
		},
	}
}

func runReconcile(ctx context.Context, out io.Writer, c *client.Client) error {
	rep, err := c.Reconcile(ctx)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(out, rep)
	}
	if rep.Skipped {
		fmt.Fprintln(out, "Cycle skipped: another cycle is running")
		return nil
	}

	counts := make(map[string]int)
	for _, t := range rep.Transfers {
		counts[t.Outcome]++
	}
	fmt.Fprintf(out, "Scanned to block %d in %s\n", rep.Head, rep.Duration.Round(time.Millisecond))
	fmt.Fprintf(out, "   Transfers: %d\n", len(rep.Transfers))
	outcomes := make([]string, 0, len(counts))
	for o := range counts {
		outcomes = append(outcomes, o)
	}
	sort.Strings(outcomes)
	for _, o := range outcomes {
		fmt.Fprintf(out, "   %s: %d\n", o, counts[o])
	}
	if rep.FailedBlocks > 0 {
		fmt.Fprintf(out, "   Failed blocks: %d\n", rep.FailedBlocks)
	}
	if rep.TimedOut {
		fmt.Fprintln(out, "   Cycle hit its time limit")
	}
	return nil
}

func createModeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mode",
		Short: "Show engine mode (admin)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := newClient().Mode(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if jsonOutput {
				return printJSON(out, mode)
			}
			if mode.Scanning {
				fmt.Fprintf(out, "Scanning payments to %s (strategy %s)\n", mode.ReceivingAddress, mode.Strategy)
			} else {
				fmt.Fprintf(out, "Degraded: %s\n", mode.Reason)
			}
			fmt.Fprintf(out, "   Eligible: %d\n", mode.Eligible)
			fmt.Fprintf(out, "   Claimed:  %d\n", mode.Claimed)
			fmt.Fprintf(out, "   Pending:  %d\n", mode.Pending)
			return nil
		},
	}
}

func createAuditCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show recent audit events (admin)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAudit(cmd.Context(), cmd.OutOrStdout(), newClient(), limit)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of events")

	return cmd
}

func runAudit(ctx context.Context, out io.Writer, c *client.Client, limit int) error {
	events, err := c.ListAudit(ctx, limit)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(out, events)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tKIND\tDETAILS")
	for _, e := range events {
		fmt.Fprintf(w, "%s\t%s\t%s\n", e.CreatedAt.Format(time.RFC3339), e.Kind, formatDetails(e.Details))
	}
	return w.Flush()
}

func formatDetails(details map[string]string) string {
	keys := make([]string, 0, len(details))
	for k := range details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+details[k])
	}
	return strings.Join(parts, " ")
}

func claimantName(id, label string) string {
	if label == "" || label == id {
		return id
	}
	return label + " (" + id + ")"
}

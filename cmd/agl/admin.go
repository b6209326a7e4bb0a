package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmerrifield20/agriledger/internal/certification/model"
)

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Show the ledger-wide roll-up",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		m, err := c.Summary(cmd.Context())
		if err != nil {
			return err
		}
		if outputFormat == "json" {
			return printJSON(m)
		}
		fmt.Printf("records:        %d\n", m.TotalRecords)
		fmt.Printf("verifications:  %d\n", m.TotalVerifications)
		fmt.Printf("revenue:        %s\n", m.EstimatedRevenue.StringFixed(2))
		fmt.Printf("average fee:    %s\n\n", m.AverageFee.StringFixed(2))

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "CATEGORY\tRECORDS")
		for _, cat := range model.Categories() {
			fmt.Fprintf(w, "%s\t%d\n", cat, m.PerCategoryCounts[cat])
		}
		fmt.Fprintln(w, "\t")
		fmt.Fprintln(w, "STATUS\tRECORDS")
		for _, st := range model.Statuses() {
			fmt.Fprintf(w, "%s\t%d\n", st, m.PerStatusCounts[st])
		}
		return w.Flush()
	},
}

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Show the event log length, head hash and chain validity",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		st, err := c.LedgerStatus(cmd.Context())
		if err != nil {
			return err
		}
		if outputFormat == "json" {
			return printJSON(st)
		}
		fmt.Printf("entries: %d\nroot:    %s\nvalid:   %t\n", st.Entries, st.Root, st.Valid)
		if !st.Valid {
			return fmt.Errorf("event log chain is broken: %s", st.Error)
		}
		return nil
	},
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage role tokens (admin)",
}

var tokenTTL time.Duration

var tokenIssueCmd = &cobra.Command{
	Use:     "issue <subject> <role>",
	Short:   "Mint a role token for a subject",
	Example: "  agl token issue inspector-007 inspector --ttl 720h --token $ADMIN_TOKEN",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		tok, err := c.IssueToken(cmd.Context(), args[0], args[1], tokenTTL)
		if err != nil {
			return err
		}
		fmt.Println(tok)
		return nil
	},
}

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Upload new event log entries to the archive bucket (admin)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		res, err := c.Archive(cmd.Context())
		if err != nil {
			return err
		}
		if outputFormat == "json" {
			return printJSON(res)
		}
		if res.Entries == 0 {
			fmt.Println("nothing new to archive")
			return nil
		}
		fmt.Printf("archived entries %d..%d to %s\n", res.FromIndex, res.ToIndex, res.Key)
		return nil
	},
}

func init() {
	tokenIssueCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "token lifetime (server default when 0)")
	tokenCmd.AddCommand(tokenIssueCmd)
}

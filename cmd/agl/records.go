package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jmerrifield20/agriledger/pkg/client"
)

var recordCmd = &cobra.Command{
	Use:     "record",
	Aliases: []string{"records"},
	Short:   "Create, inspect, verify and dispute certification records",
}

var (
	createInput   client.RecordInput
	disputeReason string
	listCategory  string
	listStatus    string
)

var recordCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Register a harvested batch",
	Example: `  agl record create --as farmer-001:farmer \
    --product "Organic Apples" --batch "500 kg" --category Fresh \
    --location "Yakima Valley, WA" --harvest 2024-09-14 --cert Organic`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		rec, err := c.CreateRecord(cmd.Context(), createInput)
		if err != nil {
			return err
		}
		return printRecords([]client.Record{*rec})
	},
}

var recordGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show one record",
	Args:  cobra.ExactArgs(1),
	RunE: withID(func(cmd *cobra.Command, c *client.Client, id uuid.UUID) error {
		rec, err := c.GetRecord(cmd.Context(), id)
		if err != nil {
			return err
		}
		return printRecords([]client.Record{*rec})
	}),
}

var recordListCmd = &cobra.Command{
	Use:   "list",
	Short: "List records, optionally by category and status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		recs, err := c.ListRecords(cmd.Context(), listCategory, listStatus)
		if err != nil {
			return err
		}
		return printRecords(recs)
	},
}

var recordVerifyCmd = &cobra.Command{
	Use:   "verify <id>",
	Short: "Record a verification by the caller",
	Args:  cobra.ExactArgs(1),
	RunE: withID(func(cmd *cobra.Command, c *client.Client, id uuid.UUID) error {
		rec, err := c.VerifyRecord(cmd.Context(), id)
		if err != nil {
			return err
		}
		return printRecords([]client.Record{*rec})
	}),
}

var recordDisputeCmd = &cobra.Command{
	Use:   "dispute <id>",
	Short: "Mark a record Disputed",
	Args:  cobra.ExactArgs(1),
	RunE: withID(func(cmd *cobra.Command, c *client.Client, id uuid.UUID) error {
		rec, err := c.DisputeRecord(cmd.Context(), id, disputeReason)
		if err != nil {
			return err
		}
		return printRecords([]client.Record{*rec})
	}),
}

var recordHistoryCmd = &cobra.Command{
	Use:   "history <id>",
	Short: "Show a record's event log entries",
	Args:  cobra.ExactArgs(1),
	RunE: withID(func(cmd *cobra.Command, c *client.Client, id uuid.UUID) error {
		entries, err := c.History(cmd.Context(), id)
		if err != nil {
			return err
		}
		if outputFormat == "json" {
			return printJSON(entries)
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "INDEX\tTIME\tACTION\tACTOR\tHASH")
		for _, e := range entries {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", e.Index, e.Timestamp.Format("2006-01-02 15:04:05"), e.Action, e.Actor, e.Hash[:16])
		}
		return w.Flush()
	}),
}

var recordIntegrityCmd = &cobra.Command{
	Use:   "integrity <id>",
	Short: "Recompute a record's integrity hash on the server",
	Args:  cobra.ExactArgs(1),
	RunE: withID(func(cmd *cobra.Command, c *client.Client, id uuid.UUID) error {
		report, err := c.CheckIntegrity(cmd.Context(), id)
		if err != nil {
			return err
		}
		if outputFormat == "json" {
			return printJSON(report)
		}
		fmt.Printf("stored:   %s\ncomputed: %s\nvalid:    %t\n", report.StoredHash, report.ComputedHash, report.Valid)
		if !report.Valid {
			return fmt.Errorf("integrity hash mismatch")
		}
		return nil
	}),
}

func init() {
	f := recordCreateCmd.Flags()
	f.StringVar(&createInput.ProductName, "product", "", "product name")
	f.StringVar(&createInput.BatchSize, "batch", "", "batch size, e.g. \"500 kg\"")
	f.StringVar(&createInput.Description, "description", "", "free-text description")
	f.StringVar(&createInput.Category, "category", "", "product category")
	f.StringVar(&createInput.Location, "location", "", "farm location")
	f.StringVar(&createInput.HarvestDate, "harvest", "", "harvest date, YYYY-MM-DD")
	f.StringSliceVar(&createInput.Certifications, "cert", nil, "certification label (repeatable)")

	recordListCmd.Flags().StringVar(&listCategory, "category", "", "filter by category")
	recordListCmd.Flags().StringVar(&listStatus, "status", "", "filter by status")

	recordDisputeCmd.Flags().StringVar(&disputeReason, "reason", "", "why the record is disputed (optional)")

	recordCmd.AddCommand(recordCreateCmd, recordGetCmd, recordListCmd,
		recordVerifyCmd, recordDisputeCmd, recordHistoryCmd, recordIntegrityCmd)
}

// withID parses the record id argument and builds the client before fn runs.
func withID(fn func(cmd *cobra.Command, c *client.Client, id uuid.UUID) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid record id %q: %w", args[0], err)
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		return fn(cmd, c, id)
	}
}

func printRecords(recs []client.Record) error {
	if outputFormat == "json" {
		if len(recs) == 1 {
			return printJSON(recs[0])
		}
		return printJSON(recs)
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPRODUCT\tCATEGORY\tHARVEST\tSTATUS\tVERIFIED\tFEE\tCERTIFICATIONS")
	for _, r := range recs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			r.ID, r.ProductName, r.Category, r.HarvestDate, r.Status,
			r.VerificationCount, r.TransactionFee.StringFixed(2), strings.Join(r.Certifications, ","))
	}
	return w.Flush()
}

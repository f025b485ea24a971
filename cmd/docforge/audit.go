package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/foxzi/docforge/internal/audit"
	"github.com/foxzi/docforge/internal/report"
)

var (
	auditAction string
	auditBatch  string
	auditSince  string
	auditLimit  int
	auditFormat string
	auditOut    string
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit trail commands",
}

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List audit entries, newest first",
	RunE:  runAuditList,
}

var auditExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export audit entries as CSV or Excel",
	RunE:  runAuditExport,
}

func init() {
	for _, c := range []*cobra.Command{auditListCmd, auditExportCmd} {
		c.Flags().StringVar(&auditAction, "action", "", "Filter by action")
		c.Flags().StringVar(&auditBatch, "batch", "", "Filter by batch ID")
		c.Flags().StringVar(&auditSince, "since", "", "Only entries since this duration ago (e.g. 24h)")
	}
	auditListCmd.Flags().IntVar(&auditLimit, "limit", 50, "Maximum number of entries")
	auditExportCmd.Flags().StringVar(&auditFormat, "format", "csv", "Export format: csv or xlsx")
	auditExportCmd.Flags().StringVar(&auditOut, "out", "", "Output file (default: audit_<date>.<format>)")

	auditCmd.AddCommand(auditListCmd, auditExportCmd)
	rootCmd.AddCommand(auditCmd)
}

func auditFilter() (audit.ListFilter, error) {
	filter := audit.ListFilter{
		Action:  audit.Action(auditAction),
		BatchID: auditBatch,
	}
	if auditSince != "" {
		d, err := time.ParseDuration(auditSince)
		if err != nil {
			return filter, fmt.Errorf("invalid --since: %w", err)
		}
		filter.Since = time.Now().Add(-d)
	}
	return filter, nil
}

func runAuditList(cmd *cobra.Command, args []string) error {
	filter, err := auditFilter()
	if err != nil {
		return err
	}
	filter.Limit = auditLimit

	core, cleanup, err := openCore(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()

	entries, total, err := core.Audit.List(cmd.Context(), filter)
	if err != nil {
		return fmt.Errorf("failed to list audit entries: %w", err)
	}

	if len(entries) == 0 {
		fmt.Println("No audit entries found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tACTION\tTARGET\tRECIPIENT\tSUCCESS\tERROR")
	for _, e := range entries {
		target := e.TargetType
		if e.TargetID != "" {
			target += ":" + e.TargetID
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%s\n",
			e.CreatedAt.Format("2006-01-02 15:04:05"),
			e.Action,
			target,
			e.RecipientEmail,
			e.Success,
			e.ErrorMessage,
		)
	}
	w.Flush()

	fmt.Printf("\nShowing %d of %d entries\n", len(entries), total)
	return nil
}

func runAuditExport(cmd *cobra.Command, args []string) error {
	format, err := report.ParseFormat(auditFormat)
	if err != nil {
		return err
	}
	filter, err := auditFilter()
	if err != nil {
		return err
	}

	core, cleanup, err := openCore(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()

	entries, _, err := core.Audit.List(cmd.Context(), filter)
	if err != nil {
		return fmt.Errorf("failed to list audit entries: %w", err)
	}

	data, err := report.Audit(entries, format)
	if err != nil {
		return fmt.Errorf("failed to build export: %w", err)
	}

	out := auditOut
	if out == "" {
		out = fmt.Sprintf("audit_%s.%s", time.Now().Format("20060102"), format)
	}
	if err := os.WriteFile(out, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", out, err)
	}

	fmt.Printf("Exported %d entries to %s\n", len(entries), out)
	return nil
}

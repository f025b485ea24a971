package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/foxzi/docforge/internal/app"
	"github.com/foxzi/docforge/internal/batch"
	"github.com/foxzi/docforge/internal/render"
	"github.com/foxzi/docforge/internal/report"
	"github.com/foxzi/docforge/internal/tabular"
	"github.com/foxzi/docforge/internal/template"
	"github.com/foxzi/docforge/internal/validation"
)

var (
	genTemplate   string
	genData       []string
	genFormat     string
	genOut        string
	genRecipient  string
	genEmail      string
	genSendEmail  bool
	genSenderName string

	batchFile   string
	batchReport string
	batchOutDir string

	sampleFormat string
	sampleOut    string
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a single document",
	Long: `Generate a single document from key=value data.

Example:
  docforge generate -c config.yaml --template "Offer Letter" \
    --data name="Ana Pérez" --data start_date=2024-03-01 --out offer.pdf`,
	RunE: runGenerate,
}

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Generate documents for every row of a CSV or Excel file",
	RunE:  runBatch,
}

var sampleCmd = &cobra.Command{
	Use:   "sample",
	Short: "Write a sample data file for a template",
	RunE:  runSample,
}

func init() {
	generateCmd.Flags().StringVar(&genTemplate, "template", "", "Template ID or name (required)")
	generateCmd.Flags().StringArrayVar(&genData, "data", nil, "Placeholder value as key=value (repeatable)")
	generateCmd.Flags().StringVar(&genFormat, "format", "", "Output format: pdf or docx (default from config)")
	generateCmd.Flags().StringVar(&genOut, "out", "", "Output file (default: generated file name in the current directory)")
	generateCmd.Flags().StringVar(&genRecipient, "recipient", "", "Recipient name (default: the name value)")
	generateCmd.Flags().StringVar(&genEmail, "email", "", "Recipient email")
	generateCmd.Flags().BoolVar(&genSendEmail, "send-email", false, "Email the document to the recipient")
	generateCmd.Flags().StringVar(&genSenderName, "sender-name", "", "Sender name shown in the email")
	generateCmd.MarkFlagRequired("template")

	batchCmd.Flags().StringVar(&genTemplate, "template", "", "Template ID or name (required)")
	batchCmd.Flags().StringVar(&batchFile, "file", "", "CSV or Excel data file (required)")
	batchCmd.Flags().StringVar(&genFormat, "format", "", "Output format: pdf or docx (default from config)")
	batchCmd.Flags().BoolVar(&genSendEmail, "send-email", false, "Email each document to its recipient")
	batchCmd.Flags().StringVar(&genSenderName, "sender-name", "", "Sender name shown in the emails")
	batchCmd.Flags().StringVar(&batchReport, "report", "", "Write the batch report to this .csv or .xlsx file")
	batchCmd.Flags().StringVar(&batchOutDir, "out", "", "Copy generated documents into this directory")
	batchCmd.MarkFlagRequired("template")
	batchCmd.MarkFlagRequired("file")

	sampleCmd.Flags().StringVar(&genTemplate, "template", "", "Template ID or name (required)")
	sampleCmd.Flags().StringVar(&sampleFormat, "format", "csv", "Sample format: csv or xlsx")
	sampleCmd.Flags().StringVar(&sampleOut, "out", "", "Output file (default: <template>_sample.<format>)")
	sampleCmd.MarkFlagRequired("template")

	rootCmd.AddCommand(generateCmd, batchCmd, sampleCmd)
}

// parseData turns key=value pairs into a value map
func parseData(pairs []string) (map[string]string, error) {
	values := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --data %q, expected key=value", pair)
		}
		values[key] = value
	}
	return values, nil
}

// outputKind resolves --format against the configured default
func outputKind(core *app.Core) (render.Kind, error) {
	if genFormat == "" {
		return core.DefaultKind, nil
	}
	return render.ParseKind(genFormat)
}

func activeTemplate(ctx context.Context, core *app.Core, idOrName string) (*template.Template, error) {
	tmpl, err := core.Templates.Resolve(ctx, idOrName)
	if err != nil {
		return nil, fmt.Errorf("failed to get template: %w", err)
	}
	if tmpl == nil {
		return nil, fmt.Errorf("template not found: %s", idOrName)
	}
	if !tmpl.Active {
		return nil, fmt.Errorf("template %s is not active", tmpl.Name)
	}
	return tmpl, nil
}

func printSchemaError(err error) error {
	var serr *validation.SchemaError
	if !errors.As(err, &serr) {
		return err
	}
	fmt.Fprintln(os.Stderr, "Data validation failed:")
	for _, msg := range serr.Errors {
		fmt.Fprintf(os.Stderr, "  - %s\n", msg)
	}
	if len(serr.AvailableColumns) > 0 {
		fmt.Fprintf(os.Stderr, "Available columns: %s\n", strings.Join(serr.AvailableColumns, ", "))
	}
	return fmt.Errorf("data validation failed")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	values, err := parseData(genData)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	core, cleanup, err := openCore(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	kind, err := outputKind(core)
	if err != nil {
		return err
	}
	tmpl, err := activeTemplate(ctx, core, genTemplate)
	if err != nil {
		return err
	}

	recipient := genRecipient
	if recipient == "" {
		recipient, _ = template.Lookup(values, "name")
	}
	email := genEmail
	if email == "" {
		email, _ = template.Lookup(values, "email")
	}

	res, err := core.Service.GenerateOne(ctx, batch.SingleRequest{
		Template:       tmpl,
		Values:         values,
		Kind:           kind,
		RecipientName:  recipient,
		RecipientEmail: email,
		SendEmail:      genSendEmail,
		SenderName:     genSenderName,
	})
	if err != nil {
		return printSchemaError(err)
	}

	data, err := core.Artifacts.Get(ctx, res.Document.ArtifactKey)
	if err != nil {
		return fmt.Errorf("failed to read generated document: %w", err)
	}

	out := genOut
	if out == "" {
		out = res.Document.FileName
	}
	if err := os.WriteFile(out, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", out, err)
	}

	fmt.Printf("Document generated\n")
	fmt.Printf("  ID:   %s\n", res.Document.ID)
	fmt.Printf("  File: %s (%d bytes)\n", out, len(data))
	if res.Email != nil {
		if res.Email.Success {
			fmt.Printf("  Email: sent to %s (%s)\n", res.Email.RecipientEmail, res.Email.MessageID)
		} else {
			fmt.Printf("  Email: failed: %s\n", res.Email.Error)
		}
	}
	return nil
}

func runBatch(cmd *cobra.Command, args []string) error {
	var reportFormat report.Format
	if batchReport != "" {
		f, err := report.ParseFormat(strings.TrimPrefix(filepath.Ext(batchReport), "."))
		if err != nil {
			return fmt.Errorf("--report must end in .csv or .xlsx: %w", err)
		}
		reportFormat = f
	}

	format, err := tabular.FormatFromFilename(batchFile)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(batchFile)
	if err != nil {
		return fmt.Errorf("failed to read data file: %w", err)
	}
	table, err := tabular.Parse(data, format)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	core, cleanup, err := openCore(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	kind, err := outputKind(core)
	if err != nil {
		return err
	}
	tmpl, err := activeTemplate(ctx, core, genTemplate)
	if err != nil {
		return err
	}

	result, err := core.Service.Run(ctx, batch.Request{
		Template:   tmpl,
		Table:      table,
		Kind:       kind,
		SendEmail:  genSendEmail,
		SenderName: genSenderName,
	})
	if err != nil {
		return printSchemaError(err)
	}

	fmt.Printf("Batch %s completed\n", result.BatchID)
	fmt.Printf("  Records:   %d\n", result.TotalRecords)
	fmt.Printf("  Generated: %d\n", result.SuccessCount)
	fmt.Printf("  Failed:    %d\n", result.FailureCount)

	if len(result.Errors) > 0 {
		fmt.Println("\nErrors:")
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "  ROW\tRECIPIENT\tERROR")
		for _, e := range result.Errors {
			fmt.Fprintf(w, "  %d\t%s\t%s\n", e.RecordIndex, e.RecipientName, e.ErrorMessage)
		}
		w.Flush()
	}

	if batchOutDir != "" {
		if err := copyDocuments(ctx, core, result, batchOutDir); err != nil {
			return err
		}
		fmt.Printf("\nDocuments written to %s\n", batchOutDir)
	}

	if batchReport != "" {
		out, err := report.Batch(result, reportFormat)
		if err != nil {
			return fmt.Errorf("failed to build report: %w", err)
		}
		if err := os.WriteFile(batchReport, out, 0644); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
		fmt.Printf("Report written to %s\n", batchReport)
	}

	return nil
}

// copyDocuments writes each generated file under dir, prefixed by its row
// so that equal display names do not overwrite each other
func copyDocuments(ctx context.Context, core *app.Core, result *batch.Result, dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	for _, d := range result.Documents {
		data, err := core.Artifacts.Get(ctx, d.FileRef)
		if err != nil {
			return fmt.Errorf("failed to read document for row %d: %w", d.RecordIndex, err)
		}
		name := fmt.Sprintf("%05d_%s", d.RecordIndex, d.FileName)
		if err := os.WriteFile(filepath.Join(dir, name), data, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
	}
	return nil
}

func runSample(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	core, cleanup, err := openCore(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	tmpl, err := core.Templates.Resolve(ctx, genTemplate)
	if err != nil {
		return fmt.Errorf("failed to get template: %w", err)
	}
	if tmpl == nil {
		return fmt.Errorf("template not found: %s", genTemplate)
	}

	var data []byte
	switch sampleFormat {
	case "csv":
		data, err = tabular.SampleCSV(tmpl.Placeholders)
	case "xlsx":
		data, err = tabular.SampleXLSX(tmpl.Placeholders)
	default:
		return fmt.Errorf("--format must be csv or xlsx")
	}
	if err != nil {
		return err
	}

	out := sampleOut
	if out == "" {
		out = fmt.Sprintf("%s_sample.%s", strings.ReplaceAll(tmpl.Name, " ", "_"), sampleFormat)
	}
	if err := os.WriteFile(out, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", out, err)
	}

	fmt.Printf("Sample written to %s\n", out)
	return nil
}

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/foxzi/docforge/internal/render"
	"github.com/foxzi/docforge/internal/template"
)

var (
	templateName         string
	templateDescription  string
	templateCategory     string
	templateBodyFile     string
	templatePlaceholders []string
	templateInactive     bool
)

var templateCmd = &cobra.Command{
	Use:   "template",
	Short: "Template management commands",
}

var templateListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all templates",
	RunE:  runTemplateList,
}

var templateCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new template",
	Long: `Create a new template from a body file.

Placeholders are declared as name[:type][:required], for example:
  --placeholder name::required --placeholder start_date:date`,
	RunE: runTemplateCreate,
}

var templateShowCmd = &cobra.Command{
	Use:   "show <id|name>",
	Short: "Show template details",
	Args:  cobra.ExactArgs(1),
	RunE:  runTemplateShow,
}

var templateDeleteCmd = &cobra.Command{
	Use:   "delete <id|name>",
	Short: "Delete a template",
	Args:  cobra.ExactArgs(1),
	RunE:  runTemplateDelete,
}

var templateAttachCmd = &cobra.Command{
	Use:   "attach <id|name> <file.docx>",
	Short: "Attach a DOCX merge document to a template",
	Args:  cobra.ExactArgs(2),
	RunE:  runTemplateAttach,
}

func init() {
	templateCreateCmd.Flags().StringVar(&templateName, "name", "", "Template name (required)")
	templateCreateCmd.Flags().StringVar(&templateDescription, "description", "", "Template description")
	templateCreateCmd.Flags().StringVar(&templateCategory, "category", "", "Category: offer_letter, appointment_letter, experience_letter, certificate")
	templateCreateCmd.Flags().StringVar(&templateBodyFile, "body", "", "Template body file (required)")
	templateCreateCmd.Flags().StringArrayVar(&templatePlaceholders, "placeholder", nil, "Placeholder declaration name[:type][:required] (repeatable)")
	templateCreateCmd.Flags().BoolVar(&templateInactive, "inactive", false, "Create the template disabled")
	templateCreateCmd.MarkFlagRequired("name")
	templateCreateCmd.MarkFlagRequired("body")

	templateCmd.AddCommand(
		templateListCmd,
		templateCreateCmd,
		templateShowCmd,
		templateDeleteCmd,
		templateAttachCmd,
	)
	rootCmd.AddCommand(templateCmd)
}

// parsePlaceholder parses name[:type][:required]
func parsePlaceholder(def string) (template.Placeholder, error) {
	parts := strings.Split(def, ":")
	if len(parts) > 3 {
		return template.Placeholder{}, fmt.Errorf("invalid placeholder %q", def)
	}

	p := template.Placeholder{Name: strings.TrimSpace(parts[0])}
	if p.Name == "" {
		return p, fmt.Errorf("invalid placeholder %q: name is required", def)
	}
	if len(parts) > 1 {
		p.Type = template.ValueType(strings.TrimSpace(parts[1]))
	}
	if len(parts) > 2 {
		switch strings.TrimSpace(parts[2]) {
		case "required":
			p.Required = true
		case "", "optional":
		default:
			return p, fmt.Errorf("invalid placeholder %q: expected required or optional", def)
		}
	}
	return p, nil
}

func runTemplateList(cmd *cobra.Command, args []string) error {
	core, cleanup, err := openCore(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()

	templates, err := core.Templates.List(cmd.Context(), template.ListFilter{})
	if err != nil {
		return fmt.Errorf("failed to list templates: %w", err)
	}

	if len(templates) == 0 {
		fmt.Println("No templates found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tCATEGORY\tACTIVE\tFIELDS\tVERSION\tUPDATED")
	for _, tmpl := range templates {
		category := string(tmpl.Category)
		if category == "" {
			category = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%d\t%d\t%s\n",
			tmpl.ID[:8],
			tmpl.Name,
			category,
			tmpl.Active,
			len(tmpl.Placeholders),
			tmpl.Version,
			tmpl.UpdatedAt.Format("2006-01-02 15:04"),
		)
	}
	w.Flush()

	fmt.Printf("\nTotal: %d templates\n", len(templates))
	return nil
}

func runTemplateCreate(cmd *cobra.Command, args []string) error {
	body, err := os.ReadFile(templateBodyFile)
	if err != nil {
		return fmt.Errorf("failed to read body file: %w", err)
	}

	tmpl := &template.Template{
		Name:        templateName,
		Description: templateDescription,
		Category:    template.Category(templateCategory),
		Body:        string(body),
		Active:      !templateInactive,
	}
	for _, def := range templatePlaceholders {
		p, err := parsePlaceholder(def)
		if err != nil {
			return err
		}
		tmpl.Placeholders = append(tmpl.Placeholders, p)
	}

	if err := template.NewEngine().Validate(tmpl); err != nil {
		return fmt.Errorf("invalid template: %w", err)
	}

	core, cleanup, err := openCore(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()

	if err := core.Templates.Create(cmd.Context(), tmpl); err != nil {
		return fmt.Errorf("failed to create template: %w", err)
	}

	fmt.Printf("Template created successfully\n")
	fmt.Printf("  ID:   %s\n", tmpl.ID)
	fmt.Printf("  Name: %s\n", tmpl.Name)
	if unknown := undeclared(tmpl); len(unknown) > 0 {
		fmt.Printf("  Note: tokens without a placeholder declaration: %s\n", strings.Join(unknown, ", "))
	}
	return nil
}

// undeclared returns body tokens that no placeholder declares
func undeclared(tmpl *template.Template) []string {
	declared := make(map[string]string, len(tmpl.Placeholders))
	for _, p := range tmpl.Placeholders {
		declared[p.Name] = p.Name
	}
	return template.Unresolved(tmpl.Body, declared)
}

func runTemplateShow(cmd *cobra.Command, args []string) error {
	core, cleanup, err := openCore(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()

	tmpl, err := core.Templates.Resolve(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get template: %w", err)
	}
	if tmpl == nil {
		return fmt.Errorf("template not found: %s", args[0])
	}

	fmt.Printf("ID:          %s\n", tmpl.ID)
	fmt.Printf("Name:        %s\n", tmpl.Name)
	fmt.Printf("Description: %s\n", tmpl.Description)
	fmt.Printf("Category:    %s\n", tmpl.Category)
	fmt.Printf("Active:      %t\n", tmpl.Active)
	fmt.Printf("Version:     %d\n", tmpl.Version)
	fmt.Printf("Created:     %s\n", tmpl.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("Updated:     %s\n", tmpl.UpdatedAt.Format("2006-01-02 15:04:05"))
	if tmpl.HasMergeDocument() {
		fmt.Printf("Merge file:  %s (%d bytes)\n", tmpl.FileName, tmpl.FileSize)
	}

	if len(tmpl.Placeholders) > 0 {
		fmt.Println("\nPlaceholders:")
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "  NAME\tTYPE\tREQUIRED\tDESCRIPTION")
		for _, p := range tmpl.Placeholders {
			fmt.Fprintf(w, "  %s\t%s\t%t\t%s\n", p.Name, p.ValueType(), p.Required, p.Description)
		}
		w.Flush()
	}

	if tmpl.Body != "" {
		fmt.Println("\n--- Body ---")
		fmt.Println(tmpl.Body)
	}

	return nil
}

func runTemplateDelete(cmd *cobra.Command, args []string) error {
	core, cleanup, err := openCore(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()

	tmpl, err := core.Templates.Resolve(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get template: %w", err)
	}
	if tmpl == nil {
		return fmt.Errorf("template not found: %s", args[0])
	}

	if err := core.Templates.Delete(cmd.Context(), tmpl.ID); err != nil {
		return fmt.Errorf("failed to delete template: %w", err)
	}

	fmt.Printf("Template %s (%s) deleted\n", tmpl.Name, tmpl.ID)
	return nil
}

func runTemplateAttach(cmd *cobra.Command, args []string) error {
	path := args[1]
	if !strings.EqualFold(filepath.Ext(path), ".docx") {
		return fmt.Errorf("only .docx merge documents are allowed")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	if _, err := render.Merge(data, nil); err != nil {
		return fmt.Errorf("invalid merge document: %w", err)
	}

	core, cleanup, err := openCore(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()

	tmpl, err := core.Templates.Resolve(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get template: %w", err)
	}
	if tmpl == nil {
		return fmt.Errorf("template not found: %s", args[0])
	}

	updated, err := core.Templates.SetFile(cmd.Context(), tmpl.ID, filepath.Base(path), data)
	if err != nil {
		return fmt.Errorf("failed to attach merge document: %w", err)
	}

	fmt.Printf("Attached %s to %s (version %d)\n", updated.FileName, updated.Name, updated.Version)
	return nil
}

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	_ "time/tzdata"

	"github.com/spf13/cobra"

	"github.com/foxzi/docforge/internal/app"
	"github.com/foxzi/docforge/internal/config"
)

var (
	cfgFile   string
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "docforge",
	Short: "docforge - bulk document generation",
	Long: `docforge renders PDF and DOCX documents from templates and
spreadsheet data, and mails them to their recipients.`,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE:  runServe,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration commands",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	RunE:  runConfigValidate,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("docforge version %s\n", version)
		if commit != "unknown" {
			fmt.Printf("  commit: %s\n", commit)
		}
		if buildTime != "unknown" {
			fmt.Printf("  built:  %s\n", buildTime)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")

	configCmd.AddCommand(configValidateCmd)
	rootCmd.AddCommand(serveCmd, configCmd, versionCmd)
}

func loadConfig() (*config.Config, error) {
	if cfgFile == "" {
		return nil, fmt.Errorf("config file is required (use -c flag)")
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// openCore opens the stores for a one-shot command. Only warnings are logged.
func openCore(ctx context.Context) (*app.Core, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	core, err := app.Open(ctx, cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open storage: %w", err)
	}

	cleanup := func() {
		core.Close()
	}
	return core, cleanup, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	application, err := app.New(cfg, version)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	return application.Run(context.Background())
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	if cfgFile == "" {
		return fmt.Errorf("config file is required (use -c flag)")
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("configuration is invalid: %w", err)
	}

	fmt.Printf("Configuration is valid\n")
	fmt.Printf("  Name:      %s\n", cfg.Server.Name)
	fmt.Printf("  API:       %s (auth: %t)\n", cfg.API.ListenAddr, cfg.API.AuthEnabled())
	fmt.Printf("  Storage:   %s\n", cfg.Storage.Path)
	fmt.Printf("  Artifacts: %s\n", cfg.Artifacts.Backend)
	fmt.Printf("  Render:    %s\n", cfg.Render.DefaultFormat)
	if cfg.Mail.Enabled {
		fmt.Printf("  Mail:      %s (%s)\n", cfg.Mail.Mode, cfg.Mail.RelayAddr)
	} else {
		fmt.Printf("  Mail:      disabled\n")
	}
	if cfg.Metrics.Enabled {
		fmt.Printf("  Metrics:   %s%s\n", cfg.Metrics.ListenAddr, cfg.Metrics.Path)
	}

	return nil
}

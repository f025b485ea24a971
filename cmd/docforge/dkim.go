package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/foxzi/docforge/internal/dkim"
)

var (
	dkimDomain    string
	dkimSelector  string
	dkimAlgorithm string
	dkimOutDir    string
	dkimKeyFile   string
)

var dkimCmd = &cobra.Command{
	Use:   "dkim",
	Short: "DKIM key management commands",
}

var dkimKeygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a new DKIM key pair",
	Long:  `Generate a new DKIM key (RSA 2048-bit or ed25519) and print the DNS record.`,
	RunE:  runDKIMKeygen,
}

var dkimShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show DKIM DNS record from existing key",
	RunE:  runDKIMShow,
}

func init() {
	dkimKeygenCmd.Flags().StringVar(&dkimDomain, "domain", "", "Domain name (required)")
	dkimKeygenCmd.Flags().StringVar(&dkimSelector, "selector", "docforge", "DKIM selector")
	dkimKeygenCmd.Flags().StringVar(&dkimAlgorithm, "algorithm", "rsa", "Key algorithm: rsa or ed25519")
	dkimKeygenCmd.Flags().StringVar(&dkimOutDir, "out", ".", "Output directory for key file")
	dkimKeygenCmd.MarkFlagRequired("domain")

	dkimShowCmd.Flags().StringVar(&dkimKeyFile, "key", "", "Path to private key file (required)")
	dkimShowCmd.Flags().StringVar(&dkimDomain, "domain", "", "Domain name (required)")
	dkimShowCmd.Flags().StringVar(&dkimSelector, "selector", "docforge", "DKIM selector")
	dkimShowCmd.MarkFlagRequired("key")
	dkimShowCmd.MarkFlagRequired("domain")

	dkimCmd.AddCommand(dkimKeygenCmd, dkimShowCmd)
	rootCmd.AddCommand(dkimCmd)
}

func runDKIMKeygen(cmd *cobra.Command, args []string) error {
	key, err := dkim.GenerateKey(dkim.Algorithm(dkimAlgorithm))
	if err != nil {
		return fmt.Errorf("failed to generate key: %w", err)
	}

	keyPath := filepath.Join(dkimOutDir, fmt.Sprintf("%s.%s.key", dkimDomain, dkimSelector))
	if err := dkim.WritePrivateKey(keyPath, key); err != nil {
		return fmt.Errorf("failed to save private key: %w", err)
	}

	record, err := dkim.TXTRecord(key)
	if err != nil {
		return err
	}

	fmt.Printf("DKIM key generated successfully\n\n")
	fmt.Printf("Private key saved to: %s\n\n", keyPath)
	fmt.Printf("DNS Record:\n")
	fmt.Printf("  Name: %s\n", dkim.RecordName(dkimSelector, dkimDomain))
	fmt.Printf("  Type: TXT\n")
	fmt.Printf("  Value: %s\n\n", record)
	fmt.Printf("Config:\n")
	fmt.Printf("  mail:\n    dkim:\n      enabled: true\n      domain: %s\n      selector: %s\n      key_file: %s\n",
		dkimDomain, dkimSelector, keyPath)

	return nil
}

func runDKIMShow(cmd *cobra.Command, args []string) error {
	key, err := dkim.LoadPrivateKey(dkimKeyFile)
	if err != nil {
		return fmt.Errorf("failed to parse private key: %w", err)
	}

	record, err := dkim.TXTRecord(key)
	if err != nil {
		return err
	}

	fmt.Printf("DKIM DNS Record:\n\n")
	fmt.Printf("  Name: %s\n", dkim.RecordName(dkimSelector, dkimDomain))
	fmt.Printf("  Type: TXT\n")
	fmt.Printf("  Value: %s\n", record)

	return nil
}

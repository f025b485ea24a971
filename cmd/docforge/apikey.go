package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
)

var apikeyCost int

var apikeyCmd = &cobra.Command{
	Use:   "apikey",
	Short: "API key commands",
}

var apikeyHashCmd = &cobra.Command{
	Use:   "hash [key]",
	Short: "Hash an API key for api.api_key_hashes",
	Long: `Hash an API key with bcrypt. When no key is given a random
one is generated and printed together with its hash.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAPIKeyHash,
}

func init() {
	apikeyHashCmd.Flags().IntVar(&apikeyCost, "cost", bcrypt.DefaultCost, "bcrypt cost")

	apikeyCmd.AddCommand(apikeyHashCmd)
	rootCmd.AddCommand(apikeyCmd)
}

// generateKey returns a random 32-byte key, hex encoded
func generateKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate key: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func runAPIKeyHash(cmd *cobra.Command, args []string) error {
	var key string
	if len(args) == 1 {
		key = args[0]
	} else {
		k, err := generateKey()
		if err != nil {
			return err
		}
		key = k
		fmt.Printf("Key:  %s\n", key)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(key), apikeyCost)
	if err != nil {
		return fmt.Errorf("failed to hash key: %w", err)
	}

	fmt.Printf("Hash: %s\n", hash)
	return nil
}

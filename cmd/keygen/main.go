package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dia/backend/pkg/utils/crypto"
	"github.com/dia/backend/pkg/utils/keygen"
)

var rootCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate and seal secrets for config.yaml",
}

var secretsCmd = &cobra.Command{
	Use:   "secrets",
	Short: "Print a fresh auth.jwt_secret and security.encryption_key",
	RunE: func(cmd *cobra.Command, args []string) error {
		jwtSecret, err := keygen.GenerateSecret(48)
		if err != nil {
			return err
		}
		encKey, err := keygen.GenerateSecret(32)
		if err != nil {
			return err
		}
		fmt.Printf("auth:\n  jwt_secret: %q\n", jwtSecret)
		fmt.Printf("security:\n  encryption_key: %q\n", encKey)
		fmt.Printf("database:\n  password: %q\n", keygen.GenerateRandomPassword(24))
		return nil
	},
}

var sealKey string

var sealCmd = &cobra.Command{
	Use:   "seal <value>",
	Short: "Encrypt a secret into enc:<base64> form",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := sealKey
		if key == "" {
			key = os.Getenv("DIA_SECURITY_ENCRYPTION_KEY")
		}
		if key == "" {
			return fmt.Errorf("encryption key is required (--key or DIA_SECURITY_ENCRYPTION_KEY)")
		}
		sealed, err := crypto.Seal(args[0], key)
		if err != nil {
			return err
		}
		fmt.Println(sealed)
		return nil
	},
}

func init() {
	sealCmd.Flags().StringVar(&sealKey, "key", "", "security.encryption_key used by the server")
	rootCmd.AddCommand(secretsCmd, sealCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

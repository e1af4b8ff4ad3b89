package main

import (
	"fmt"
	"os"
	"time"

	"github.com/aispeak/progressd/internal/auth"
	"github.com/aispeak/progressd/internal/validation"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	tokenUserID string
	tokenTTL    time.Duration
)

// tokenCmd mints a development bearer token. In production, tokens
// come from the identity provider; this exists so the API can be
// exercised locally without one.
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a development bearer token",
	Long: "Sign a short-lived JWT with AISPEAK_JWT_SECRET for local testing. " +
		"Without --user, a fresh user ID is generated.",
	RunE: runToken,
}

func init() {
	tokenCmd.Flags().StringVar(&tokenUserID, "user", "",
		"User ID (UUID) to embed as the token subject")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", time.Hour,
		"Token lifetime")

	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, args []string) error {
	secret := os.Getenv("AISPEAK_JWT_SECRET")
	if secret == "" {
		return fmt.Errorf("AISPEAK_JWT_SECRET is required")
	}

	userID := tokenUserID
	if userID == "" {
		userID = uuid.NewString()
	} else if err := validation.ValidateUserID("user", userID); err != nil {
		return fmt.Errorf("--user %s", err.Message)
	}

	token, err := auth.Issue(secret, userID, tokenTTL)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "user: %s\ntoken: %s\n", userID, token)
	return nil
}

package main

import (
	"errors"
	"fmt"

	"github.com/jonathan/feedback-reviews/internal/config"
	"github.com/jonathan/feedback-reviews/internal/server"
	"github.com/jonathan/feedback-reviews/internal/server/middleware"
	"github.com/spf13/cobra"
)

var (
	tokenEmail string
	tokenAdmin bool
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint an identity token for local development",
	Long: `Mint a signed identity token. The admin role is granted with --admin or
when the email is listed in auth.admins.`,
	RunE: runToken,
}

func init() {
	tokenCmd.Flags().StringVar(&tokenEmail, "email", "", "Email of the identity (required)")
	tokenCmd.Flags().BoolVar(&tokenAdmin, "admin", false, "Grant the admin role")
	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, _ []string) error {
	if tokenEmail == "" {
		return errors.New("--email is required")
	}
	cfg, _, err := setup(cmd)
	if err != nil {
		return err
	}
	jwtConfig, err := config.NewJWTConfig()
	if err != nil {
		return err
	}

	role := middleware.RoleEmployee
	if tokenAdmin || cfg.Auth.IsAdmin(tokenEmail) {
		role = middleware.RoleAdmin
	}
	token, err := server.NewJWTService(jwtConfig).GenerateToken(tokenEmail, role)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}

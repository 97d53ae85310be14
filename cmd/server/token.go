package main

import (
	"fmt"
	"time"

	"github.com/radiocast/backend/internal/application"
	"github.com/radiocast/backend/internal/domain"
	"github.com/radiocast/backend/internal/pkg/config"
	"github.com/spf13/cobra"
)

func newTokenCommand(configFlag *string) *cobra.Command {
	var email string
	var role string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an API access token signed with auth.jwt_secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFrom(*configFlag)
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}

			svc := application.NewAuthService(application.AuthOptions{JWTSecret: cfg.Auth.JWTSecret})
			token, err := svc.IssueToken(domain.Principal{Email: email, Role: domain.UserRole(role)}, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "automation@radiocast.local", "Subject recorded in the token")
	cmd.Flags().StringVar(&role, "role", string(domain.UserRoleOperator), "Role granted: viewer, operator or admin")
	cmd.Flags().DurationVar(&ttl, "ttl", 30*24*time.Hour, "Token lifetime")

	return cmd
}

package cli

import (
	"fmt"

	"scheduled-exam-service/internal/config"
	transport "scheduled-exam-service/internal/transport/http"

	"github.com/spf13/cobra"
)

// NewTokenCmd mints a bearer token for local testing.
func NewTokenCmd(configPath *string) *cobra.Command {
	var (
		userID int64
		name   string
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print a bearer token for a user id (development helper)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret == "" {
				return fmt.Errorf("auth.jwt_secret (or JWT_SECRET) is required")
			}
			if userID <= 0 {
				return fmt.Errorf("--user must be a positive id")
			}
			auth := transport.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer, config.Duration(cfg.Auth.TokenTTL, 0), newLogger(cfg))
			token, err := auth.Issue(userID, name)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().Int64Var(&userID, "user", 0, "user id to embed as user_id")
	cmd.Flags().StringVar(&name, "name", "", "optional display name claim")
	return cmd
}

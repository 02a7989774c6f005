package main

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"kgr/api/internal/auth"
)

// newTokenCommand signs a development access token with the configured
// secret, standing in for the identity provider.
func newTokenCommand(opts *rootOptions) *cobra.Command {
	var (
		id  auth.Identity
		ttl time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign an access token for local development",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if id.UserID == "" {
				return errors.New("--sub is required")
			}
			cfg := opts.config()
			token, err := auth.IssueToken(cfg.JWTSecret, cfg.JWTIssuer, id, ttl)
			if err != nil {
				return err
			}
			return writeLine(cmd, token)
		},
	}
	cmd.Flags().StringVar(&id.UserID, "sub", "", "user id (token subject)")
	cmd.Flags().StringVar(&id.Email, "email", "", "email claim")
	cmd.Flags().StringVar(&id.FullName, "name", "", "full name claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

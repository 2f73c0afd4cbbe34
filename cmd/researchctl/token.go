package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Kocoro-lab/deepresearch/internal/auth"
)

func tokenCmd() *cobra.Command {
	var (
		scopes []string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token <subject>",
		Short: "Issue an access token for the admin API",
		Long: fmt.Sprintf(`Sign a bearer token with auth.jwt_secret. Scopes default to %v;
use --scope %s for the token endpoint itself.`, auth.DefaultScopes, auth.ScopeAdmin),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret == "" {
				return errors.New("auth.jwt_secret (or JWT_SECRET) is not set")
			}
			m, err := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
			if err != nil {
				return err
			}
			tok, err := m.Issue(args[0], scopes, ttl)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), tok)
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok.AccessToken)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&scopes, "scope", nil, "Scope to grant (repeatable)")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime (defaults to auth.token_ttl)")
	return cmd
}

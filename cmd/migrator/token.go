package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/erp/weclapp-migration/internal/infrastructure/auth"
)

var (
	tokenTTL      time.Duration
	tokenReadOnly bool
)

var tokenCmd = &cobra.Command{
	Use:   "token <subject>",
	Short: "Issue a bearer token for the job API",
	Long: `token signs a token with http.jwt_secret. Without --read-only it may queue
jobs as well as read them.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tokens, err := auth.NewTokenService(cfg.HTTP.JWTSecret, cfg.HTTP.JWTIssuer)
		if err != nil {
			return fmt.Errorf("http.jwt_secret is required to issue tokens: %w", err)
		}
		var scopes []string
		if tokenReadOnly {
			scopes = []string{auth.ScopeJobsRead}
		}
		token, err := tokens.Issue(args[0], tokenTTL, scopes...)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
		return err
	},
}

func init() {
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "Token lifetime")
	tokenCmd.Flags().BoolVar(&tokenReadOnly, "read-only", false, "Only grant the jobs:read scope")
	rootCmd.AddCommand(tokenCmd)
}

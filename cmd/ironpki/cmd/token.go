package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmcleod/ironpki/api"
	"github.com/jmcleod/ironpki/internal/config"
)

var (
	tokenSubject string
	tokenScopes  []string
	tokenTTL     time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint an API bearer token",
	Long: `Signs a bearer token for the HTTP API with the secret configured under
server.auth.secret_file or $` + config.APISecretEnv + `. Scopes are pki:read and
pki:write; pki:write also grants read access.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		secret, err := cfg.TokenSecret()
		if err != nil {
			return err
		}
		if secret == nil {
			return errors.New("no API token secret configured")
		}
		tok, err := api.IssueToken(secret, tokenSubject, cfg.Server.Auth.Audience, tokenScopes, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "", "Token subject recorded in audit logs")
	tokenCmd.Flags().StringSliceVar(&tokenScopes, "scope", []string{api.ScopeRead}, "Granted scopes")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "Token lifetime")
	tokenCmd.MarkFlagRequired("subject")
}

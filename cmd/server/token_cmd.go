package main

import (
	"fmt"

	clientauth "github.com/openmined/syncmirror/internal/client/auth"
	"github.com/openmined/syncmirror/internal/remote/httpstore"
	"github.com/openmined/syncmirror/internal/server/auth"
	"github.com/spf13/cobra"
)

func newTokenCmd() *cobra.Command {
	var subject string
	var out string

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an access and refresh token pair for a client",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true

			if !cfg.Auth.Enabled {
				return fmt.Errorf("auth is disabled, clients need no token")
			}

			access, refresh, err := auth.GenerateTokens(subject, &cfg.Auth)
			if err != nil {
				return err
			}
			tokens := &httpstore.TokenResponse{AccessToken: access, RefreshToken: refresh}

			if out == "" {
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "access_token: %s\nrefresh_token: %s\n", access, refresh)
				return err
			}
			if err := clientauth.WriteTokenFile(out, tokens); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "tokens for %q written to %s\n", subject, out)
			return err
		},
	}
	cmd.Flags().StringVarP(&subject, "subject", "s", "syncmirror", "token subject")
	cmd.Flags().StringVarP(&out, "out", "o", "", "write a client token file here instead of printing")
	return cmd
}

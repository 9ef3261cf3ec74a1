package main

import (
	"fmt"

	"github.com/fleetwatch/fleetwatch/internal/adapter/auth"
	"github.com/spf13/cobra"
)

func newTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "token <user-id>",
		Short: "Issue an access token for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Security.JWTSecret == "" {
				return fmt.Errorf("SECURITY_JWT_SECRET is not set")
			}

			token, err := auth.NewTokenService(cfg.Security.JWTSecret, cfg.Security.JWTExpiration).GenerateAccessToken(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
}

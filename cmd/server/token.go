package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"voicedoc/internal/config"
	"voicedoc/internal/pkg/jwtutil"
)

func tokenCmd() *cobra.Command {
	var (
		userID   uint
		username string
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for an existing user id",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == 0 {
				return errors.New("--user is required")
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			token, err := jwtutil.GenerateToken(cfg.Auth.JWTSecret, cfg.JWTExpiration(), userID, username)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().UintVarP(&userID, "user", "u", 0, "user id the token is issued for")
	cmd.Flags().StringVar(&username, "username", "", "username claim")
	return cmd
}

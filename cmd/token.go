package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/scoutworks/deepscout/config"
	srv "github.com/scoutworks/deepscout/internal/server"
)

func tokenCMD() *cobra.Command {
	var (
		cfgPath string
		subject string
		ttl     time.Duration
	)
	var cmd = &cobra.Command{
		Use:   "token",
		Short: "Mint a Bearer token for the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)
			if cfg.Server.JWTSecret == "" {
				return fmt.Errorf("server.jwt_secret not configured")
			}
			signed, err := srv.SignJWT(subject, []byte(cfg.Server.JWTSecret), ttl)
			if err != nil {
				return err
			}
			fmt.Println(signed)
			return nil
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")
	cmd.Flags().StringVar(&subject, "subject", "cli", "token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

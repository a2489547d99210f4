/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/friendsincode/guildtune/internal/auth"
)

var (
	tokenOperator string
	tokenGuilds   []string
	tokenTTL      time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a bearer token for the admin API",
	Long: `Sign an admin API token with GUILDTUNE_ADMIN_JWT_SECRET.
Without --guild the token can read every guild.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := loadConfig(); err != nil {
			return err
		}
		if cfg.AdminJWTSecret == "" {
			return errors.New("GUILDTUNE_ADMIN_JWT_SECRET is not set")
		}
		token, err := auth.Issue([]byte(cfg.AdminJWTSecret), auth.Claims{
			Operator: tokenOperator,
			Guilds:   tokenGuilds,
		}, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenOperator, "operator", "ops", "Operator name recorded as the token subject")
	tokenCmd.Flags().StringSliceVar(&tokenGuilds, "guild", nil, "Restrict the token to a guild (repeatable)")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "Token lifetime")
	rootCmd.AddCommand(tokenCmd)
}

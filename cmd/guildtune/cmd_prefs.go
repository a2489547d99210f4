/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/friendsincode/guildtune/internal/db"
	"github.com/friendsincode/guildtune/internal/preferences"
	"github.com/friendsincode/guildtune/internal/server"
)

var prefsCmd = &cobra.Command{
	Use:   "prefs <guildID>",
	Short: "Show the preferences a new session for a guild would start with",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := loadConfig(); err != nil {
			return err
		}

		defaults := preferences.Defaults(cfg.DefaultVolume)
		var store preferences.Store = preferences.Static{Prefs: defaults}
		source := "defaults"

		database, err := db.Connect(cfg)
		switch {
		case errors.Is(err, db.ErrNoDSN):
		case err != nil:
			return err
		default:
			defer db.Close(database)
			c, err := server.NewCache(cfg, logger)
			if err != nil {
				return err
			}
			defer c.Close()
			store = preferences.NewGormStore(database, c, defaults, logger)
			source = string(cfg.DBBackend)
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
		defer cancel()

		prefs, err := store.Lookup(ctx, args[0])
		if err != nil {
			return err
		}

		fmt.Printf("guild:    %s\n", args[0])
		fmt.Printf("source:   %s\n", source)
		fmt.Printf("volume:   %d\n", prefs.DefaultVolume)
		fmt.Printf("loop:     %t\n", prefs.Loop)
		fmt.Printf("autoplay: %t\n", prefs.Autoplay)
		fmt.Printf("filter:   %s\n", prefs.Filter)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(prefsCmd)
}

/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/friendsincode/guildtune/internal/server"
)

var searchLimit int

var searchCmd = &cobra.Command{
	Use:   "search <query>...",
	Short: "Query the search provider",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 5, "Maximum number of results")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	c, err := server.NewCache(cfg, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	query := strings.Join(args, " ")
	candidates, err := server.NewSearcher(cfg, c, logger).Search(cmd.Context(), query, searchLimit)
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		fmt.Println("no results")
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tTITLE\tAUTHOR\tDURATION\tURI")
	for i, cand := range candidates {
		d := time.Duration(cand.DurationMillis) * time.Millisecond
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", i+1, cand.Title, cand.Author, d, cand.NativeURI)
	}
	return tw.Flush()
}

/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/friendsincode/guildtune/internal/models"
	"github.com/friendsincode/guildtune/internal/resolver"
	"github.com/friendsincode/guildtune/internal/server"
	"github.com/friendsincode/guildtune/internal/sink"
	"github.com/friendsincode/guildtune/internal/transcode"
)

var (
	resolveFilter string
	resolveRate   float64
	resolveVolume int
	resolveOut    string
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <url|query>",
	Short: "Run the backend cascade for one track and report each attempt",
	Long: `Resolve a track exactly as a session would and print every backend attempt.

Examples:
  # Which backend serves this video right now?
  guildtune resolve https://youtu.be/dQw4w9WgXcQ

  # Translate a cross-service link and keep the first 10s of PCM
  guildtune resolve https://open.spotify.com/track/... --out sample.pcm
`,
	Args: cobra.ExactArgs(1),
	RunE: runResolve,
}

func init() {
	resolveCmd.Flags().StringVar(&resolveFilter, "filter", transcode.FilterNormal, "Audio filter preset")
	resolveCmd.Flags().Float64Var(&resolveRate, "rate", 1.0, "Playback rate (0.5-2.0)")
	resolveCmd.Flags().IntVar(&resolveVolume, "volume", 50, "Volume percent (0-100)")
	resolveCmd.Flags().StringVar(&resolveOut, "out", "", "Write up to 10 seconds of PCM to this file")
	rootCmd.AddCommand(resolveCmd)
}

func runResolve(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	c, err := server.NewCache(cfg, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	res, err := server.NewResolver(cfg, server.NewSearcher(cfg, c, logger), logger)
	if err != nil {
		return err
	}

	track := trackFromArg(args[0])
	stream, err := res.Resolve(cmd.Context(), resolver.Request{
		Track:         track,
		Filter:        resolveFilter,
		Rate:          resolveRate,
		VolumePercent: resolveVolume,
	})

	var exhausted *resolver.ExhaustedError
	switch {
	case errors.As(err, &exhausted):
		printAttempts(exhausted.Attempts)
		return err
	case err != nil:
		return err
	}
	defer stream.Close()

	printAttempts(stream.Attempts)
	fmt.Printf("resolved via %s: %s\n", stream.Backend, stream.URI)

	if resolveOut == "" {
		return nil
	}
	f, err := os.Create(resolveOut)
	if err != nil {
		return err
	}
	defer f.Close()
	n, err := io.Copy(f, io.LimitReader(stream, 10*sink.BytesPerSecond))
	if err != nil {
		return fmt.Errorf("write pcm: %w", err)
	}
	fmt.Printf("wrote %d bytes of s16le 48kHz stereo to %s\n", n, resolveOut)
	return nil
}

func printAttempts(attempts []models.BackendAttempt) {
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "BACKEND\tOUTCOME\tELAPSED\tREASON")
	for _, a := range attempts {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", a.Backend, a.Outcome, a.Elapsed.Round(time.Millisecond), a.Reason)
	}
	_ = tw.Flush()
}

// trackFromArg turns a command line argument into a track the way a chat command would.
func trackFromArg(arg string) models.Track {
	t := models.Track{RequestedBy: "cli"}
	if models.IsURL(arg) {
		t.SourceURI = arg
	} else {
		t.Title = arg
	}
	return models.NewTrack(t)
}

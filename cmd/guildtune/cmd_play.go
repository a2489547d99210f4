/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/friendsincode/guildtune/internal/events"
	"github.com/friendsincode/guildtune/internal/models"
	"github.com/friendsincode/guildtune/internal/preferences"
	"github.com/friendsincode/guildtune/internal/registry"
	"github.com/friendsincode/guildtune/internal/server"
	"github.com/friendsincode/guildtune/internal/session"
	"github.com/friendsincode/guildtune/internal/sink"
	"github.com/friendsincode/guildtune/internal/transcode"
)

const localGuild = "local"

var (
	playOut      string
	playRealtime bool
	playLoop     bool
	playAutoplay bool
	playVolume   int
	playRate     float64
	playFilter   string
)

var playCmd = &cobra.Command{
	Use:   "play <url|query>...",
	Short: "Play tracks through a local session, writing PCM to a file or stdout",
	Long: `Run one session locally. The first argument plays immediately and the rest are queued.
Output is raw s16le 48kHz stereo PCM.

Examples:
  # Listen through ffplay with autoplay filling the queue
  guildtune play "daft punk around the world" --autoplay | ffplay -f s16le -ar 48000 -ac 2 -

  # Render two tracks with the nightcore preset to a file
  guildtune play https://youtu.be/a https://youtu.be/b --filter nightcore --out mix.pcm
`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPlay,
}

func init() {
	playCmd.Flags().StringVarP(&playOut, "out", "o", "-", "Output file, - for stdout")
	playCmd.Flags().BoolVar(&playRealtime, "realtime", true, "Pace output at playback speed")
	playCmd.Flags().BoolVar(&playLoop, "loop", false, "Repeat the current track")
	playCmd.Flags().BoolVar(&playAutoplay, "autoplay", false, "Queue related tracks when the queue runs dry")
	playCmd.Flags().IntVar(&playVolume, "volume", 50, "Volume percent (0-100)")
	playCmd.Flags().Float64Var(&playRate, "rate", 1.0, "Playback rate (0.5-2.0)")
	playCmd.Flags().StringVar(&playFilter, "filter", transcode.FilterNormal, "Audio filter preset")
	rootCmd.AddCommand(playCmd)
}

func runPlay(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var out io.Writer = os.Stdout
	if playOut != "-" {
		f, err := os.Create(playOut)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	c, err := server.NewCache(cfg, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	searcher := server.NewSearcher(cfg, c, logger)
	res, err := server.NewResolver(cfg, searcher, logger)
	if err != nil {
		return err
	}

	bus := events.NewBus()
	defer bus.Close()
	go reportEvents(ctx, bus)

	reg := registry.New(registry.Options{
		Session:     server.SessionConfig(cfg),
		Resolver:    res,
		Advisor:     server.NewAdvisor(cfg, searcher, logger),
		Publisher:   bus,
		Preferences: preferences.Static{Prefs: models.Preferences{DefaultVolume: playVolume, Loop: playLoop, Autoplay: playAutoplay, Filter: playFilter}},
	}, logger)
	defer reg.Shutdown(context.Background())

	sess, err := reg.GetOrCreate(ctx, localGuild)
	if err != nil {
		return err
	}
	if err := sess.SetPlaybackRate(playRate); err != nil {
		return err
	}

	w := sink.NewWriter(out, playRealtime, logger)
	if err := sess.Connect(ctx, w); err != nil {
		return err
	}

	for _, arg := range args[1:] {
		if err := sess.Enqueue(trackFromArg(arg)); err != nil {
			return err
		}
	}
	if err := sess.Play(ctx, trackFromArg(args[0])); err != nil {
		return err
	}

	return waitForSession(ctx, sess)
}

// waitForSession returns once the session has nothing left to play.
func waitForSession(ctx context.Context, sess *session.Session) error {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			switch sess.State() {
			case session.StateDisconnected:
				return nil
			case session.StateReady:
				// Only reachable after the retry limit tripped.
				return fmt.Errorf("playback halted after repeated resolution failures")
			}
		}
	}
}

func reportEvents(ctx context.Context, bus *events.Bus) {
	nowPlaying := bus.Subscribe(events.EventNowPlaying)
	failed := bus.Subscribe(events.EventTrackFailed)
	autoplay := bus.Subscribe(events.EventAutoplay)

	for {
		select {
		case <-ctx.Done():
			return
		case p, ok := <-nowPlaying:
			if !ok {
				return
			}
			if t, ok := p["track"].(models.Track); ok {
				logger.Info().Str("backend", fmt.Sprint(p["backend"])).Msgf("now playing: %s", t.Label())
			}
		case p, ok := <-failed:
			if !ok {
				return
			}
			logger.Warn().Msgf("skipped: %v", p["error"])
		case p, ok := <-autoplay:
			if !ok {
				return
			}
			if t, ok := p["track"].(models.Track); ok {
				logger.Info().Msgf("autoplay queued: %s", t.Label())
			}
		}
	}
}

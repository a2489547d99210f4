/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/friendsincode/guildtune/internal/config"
	"github.com/friendsincode/guildtune/internal/logbuffer"
	"github.com/friendsincode/guildtune/internal/logging"
	"github.com/friendsincode/guildtune/internal/server"
	"github.com/friendsincode/guildtune/internal/telemetry"
	"github.com/friendsincode/guildtune/internal/version"
)

var (
	logger zerolog.Logger
	cfg    *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "guildtune",
	Short:         "guildtune - per-guild audio playback orchestrator",
	Long:          "guildtune keeps an independent queue and player for every guild, resolving tracks through a cascade of extraction backends.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the session registry, idle reaper and admin API",
	RunE:  runServe,
}

var checkUpdates bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println(version.Version)
		if !checkUpdates {
			return nil
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()
		info, err := version.Check(ctx, nil)
		if err != nil {
			return err
		}
		if info.UpdateAvailable {
			fmt.Printf("update available: %s (%s)\n", info.LatestVersion, info.ReleaseURL)
		}
		return nil
	},
}

func init() {
	versionCmd.Flags().BoolVar(&checkUpdates, "check", false, "Check for a newer release")
	rootCmd.AddCommand(serveCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration (called by commands that need it)
func loadConfig() error {
	return loadConfigWithWriter(nil)
}

func loadConfigWithWriter(extra *logbuffer.Buffer) error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if extra != nil {
		logger = logging.SetupWithWriter(cfg.Environment, logbuffer.NewWriter(extra, nil))
	} else {
		logger = logging.Setup(cfg.Environment)
	}
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	logBuf := logbuffer.New(logbuffer.DefaultCapacity)
	if err := loadConfigWithWriter(logBuf); err != nil {
		return err
	}

	logger.Info().Str("version", version.Version).Msg("guildtune starting")

	tracing, err := telemetry.InitTracer(context.Background(), telemetry.TracerConfig{
		ServiceName:  "guildtune",
		OTLPEndpoint: cfg.OTLPEndpoint,
		Enabled:      cfg.TracingEnabled,
		SampleRate:   cfg.TracingSampleRate,
	}, logger)
	if err != nil {
		return fmt.Errorf("initialize tracer: %w", err)
	}
	defer func() {
		if err := tracing.Shutdown(context.Background()); err != nil {
			logger.Error().Err(err).Msg("failed to shutdown tracer provider")
		}
	}()

	srv, err := server.New(cfg, logBuf, logger)
	if err != nil {
		return fmt.Errorf("initialize server: %w", err)
	}

	httpServer := srv.HTTPServer()
	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", httpServer.Addr).Msg("admin API listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serveErr:
		logger.Error().Err(err).Msg("http server error")
	}

	logger.Info().Msg("shutting down gracefully...")

	timeoutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(timeoutCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	if err := srv.Close(); err != nil {
		logger.Error().Err(err).Msg("shutdown cleanup failed")
	}

	logger.Info().Msg("guildtune stopped")
	return nil
}

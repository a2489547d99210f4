/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package reaper evicts sessions that have sat idle for too long.
package reaper

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/guildtune/internal/registry"
	"github.com/friendsincode/guildtune/internal/telemetry"
)

const (
	DefaultInterval  = time.Minute
	DefaultThreshold = 5 * time.Minute
)

// Reaper periodically sweeps the registry.
type Reaper struct {
	registry  *registry.Registry
	interval  time.Duration
	threshold time.Duration
	now       func() time.Time
	logger    zerolog.Logger
}

// New creates a reaper. Non-positive durations take the defaults.
func New(reg *registry.Registry, interval, threshold time.Duration, logger zerolog.Logger) *Reaper {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Reaper{
		registry:  reg,
		interval:  interval,
		threshold: threshold,
		now:       time.Now,
		logger:    logger.With().Str("component", "reaper").Logger(),
	}
}

// Run sweeps every interval until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info().Dur("interval", r.interval).Dur("threshold", r.threshold).Msg("reaper started")
	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("reaper stopped")
			return ctx.Err()
		case <-ticker.C:
			r.Sweep(ctx, r.now())
		}
	}
}

// Sweep evicts every session idle for longer than the threshold as of now and
// returns how many were evicted. It works on a snapshot of the registry; sessions
// that become busy between the snapshot and the check are left alone.
func (r *Reaper) Sweep(ctx context.Context, now time.Time) int {
	evicted := 0
	for _, s := range r.registry.List() {
		if ctx.Err() != nil {
			break
		}
		idle, ok := s.IdleSince(now)
		if !ok || idle <= r.threshold {
			continue
		}
		if r.registry.EvictIfIdle(s.GuildID(), now, r.threshold) {
			evicted++
			telemetry.ReaperEvictionsTotal.Inc()
			r.logger.Debug().Str("guild_id", s.GuildID()).Dur("idle", idle).Msg("reaped idle session")
		}
	}
	if evicted > 0 {
		r.logger.Info().Int("evicted", evicted).Msg("idle sweep complete")
	}
	return evicted
}

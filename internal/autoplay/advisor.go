/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package autoplay picks a continuation track when a guild's queue runs dry.
package autoplay

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/rs/zerolog"

	"github.com/friendsincode/guildtune/internal/models"
	"github.com/friendsincode/guildtune/internal/search"
	"github.com/friendsincode/guildtune/internal/telemetry"
)

const (
	DefaultLimit   = 5
	DefaultTopK    = 4
	DefaultTimeout = 10 * time.Second

	minLimit = 2
)

// Config tunes the advisor.
type Config struct {
	Limit   int
	TopK    int
	Timeout time.Duration
}

// Advisor suggests a track related to the one that just finished.
type Advisor struct {
	search search.Searcher
	cfg    Config
	logger zerolog.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// Option configures an Advisor.
type Option func(*Advisor)

// WithRand fixes the random source used to pick among the top candidates.
func WithRand(r *rand.Rand) Option {
	return func(a *Advisor) { a.rng = r }
}

func New(s search.Searcher, cfg Config, logger zerolog.Logger, opts ...Option) *Advisor {
	if cfg.Limit < minLimit {
		cfg.Limit = DefaultLimit
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	a := &Advisor{
		search: s,
		cfg:    cfg,
		logger: logger.With().Str("component", "autoplay").Logger(),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Query builds the related-songs search for seed.
func Query(seed models.Track) string {
	if author := strings.TrimSpace(seed.Author); author != "" {
		return author + " similar songs"
	}
	return strings.TrimSpace(seed.Title)
}

// Suggest returns a track related to seed. ok is false when nothing suitable was found;
// that is a normal outcome, not an error.
func (a *Advisor) Suggest(ctx context.Context, seed models.Track) (models.Track, bool) {
	query := Query(seed)
	if query == "" {
		telemetry.AutoplaySuggestionsTotal.WithLabelValues("empty").Inc()
		return models.Track{}, false
	}

	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	candidates, err := a.search.Search(ctx, query, a.cfg.Limit)
	if err != nil {
		a.logger.Warn().Err(err).Str("query", query).Msg("autoplay search failed")
		telemetry.AutoplaySuggestionsTotal.WithLabelValues("error").Inc()
		return models.Track{}, false
	}

	eligible := exclude(candidates, seed)
	if len(eligible) == 0 {
		telemetry.AutoplaySuggestionsTotal.WithLabelValues("empty").Inc()
		return models.Track{}, false
	}
	if len(eligible) > a.cfg.TopK {
		eligible = eligible[:a.cfg.TopK]
	}

	a.mu.Lock()
	pick := eligible[a.rng.Intn(len(eligible))]
	a.mu.Unlock()

	telemetry.AutoplaySuggestionsTotal.WithLabelValues("suggested").Inc()
	a.logger.Debug().Str("seed", seed.Label()).Str("pick", pick.Title).Msg("autoplay suggestion")
	return pick.ToTrack(seed.RequestedBy), true
}

// exclude drops candidates that are the seed itself, matched by URI or normalized title.
func exclude(candidates []models.Candidate, seed models.Track) []models.Candidate {
	seedTitle := normalizeTitle(seed.Title)
	out := make([]models.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.NativeURI == "" {
			continue
		}
		if seed.SourceURI != "" && c.NativeURI == seed.SourceURI {
			continue
		}
		if seedTitle != "" && normalizeTitle(c.Title) == seedTitle {
			continue
		}
		out = append(out, c)
	}
	return out
}

// normalizeTitle lower-cases and keeps only letters and digits.
func normalizeTitle(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

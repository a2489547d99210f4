/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/friendsincode/guildtune/internal/autoplay"
	"github.com/friendsincode/guildtune/internal/backend"
	"github.com/friendsincode/guildtune/internal/cache"
	"github.com/friendsincode/guildtune/internal/config"
	"github.com/friendsincode/guildtune/internal/resolver"
	"github.com/friendsincode/guildtune/internal/search"
	"github.com/friendsincode/guildtune/internal/session"
)

// The constructors below are shared with the CLI so a local play session is wired
// exactly like a served one.

// NewCache connects the Redis cache when enabled; otherwise the cache is a no-op.
func NewCache(cfg *config.Config, logger zerolog.Logger) (*cache.Cache, error) {
	cacheCfg := cache.DefaultConfig()
	cacheCfg.RedisAddr = cfg.RedisAddr
	cacheCfg.RedisPassword = cfg.RedisPassword
	cacheCfg.RedisDB = cfg.RedisDB
	cacheCfg.SearchTTL = cfg.SearchCacheTTL

	if !cfg.CacheEnabled {
		return cache.NewWithClient(nil, cacheCfg, logger), nil
	}
	return cache.New(cacheCfg, logger)
}

// NewSearcher returns the yt-dlp search provider behind the cache and rate limiter.
func NewSearcher(cfg *config.Config, c *cache.Cache, logger zerolog.Logger) search.Searcher {
	limiter := rate.NewLimiter(rate.Limit(cfg.SearchRate), cfg.SearchBurst)
	return search.NewCached(search.NewYTDLP(cfg.Proxy, logger), c, limiter, logger)
}

// NewResolver builds the backend cascade from the configured chain file.
func NewResolver(cfg *config.Config, s search.Searcher, logger zerolog.Logger) (*resolver.Resolver, error) {
	specs, err := backend.LoadChain(cfg.BackendsFile)
	if err != nil {
		return nil, err
	}
	chain, err := backend.Build(specs, backend.Options{FFmpegBin: cfg.FFmpegBin, Proxy: cfg.Proxy}, logger)
	if err != nil {
		return nil, fmt.Errorf("build backend chain: %w", err)
	}
	if len(chain) == 0 {
		return nil, fmt.Errorf("backend chain has no enabled backends")
	}
	return resolver.New(chain, s, cfg.TranslateTimeout, logger), nil
}

// NewAdvisor returns the autoplay advisor over s.
func NewAdvisor(cfg *config.Config, s search.Searcher, logger zerolog.Logger) *autoplay.Advisor {
	return autoplay.New(s, autoplay.Config{Timeout: cfg.AutoplayTimeout}, logger)
}

// SessionConfig maps process configuration onto per-session limits.
func SessionConfig(cfg *config.Config) session.Config {
	return session.Config{
		ConnectTimeout:         cfg.ConnectTimeout,
		MaxConsecutiveFailures: cfg.MaxConsecutiveFailures,
		FailureWindow:          cfg.FailureWindow,
		HistoryCap:             cfg.HistoryCap,
		MaxQueueSize:           cfg.MaxQueueSize,
	}
}

/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package search

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/friendsincode/guildtune/internal/cache"
	"github.com/friendsincode/guildtune/internal/models"
	"github.com/friendsincode/guildtune/internal/telemetry"
)

// sharedSearchTimeout bounds a coalesced upstream search, which outlives any single caller.
const sharedSearchTimeout = 30 * time.Second

// Cached puts a Redis cache, request coalescing and a rate limit in front of a Searcher.
type Cached struct {
	next    Searcher
	cache   *cache.Cache
	limiter *rate.Limiter
	group   singleflight.Group
	logger  zerolog.Logger
}

// NewCached wraps next. A nil cache or limiter disables that layer.
func NewCached(next Searcher, c *cache.Cache, limiter *rate.Limiter, logger zerolog.Logger) *Cached {
	return &Cached{
		next:    next,
		cache:   c,
		limiter: limiter,
		logger:  logger.With().Str("component", "search_cache").Logger(),
	}
}

func (s *Cached) Search(ctx context.Context, query string, limit int) ([]models.Candidate, error) {
	if s.cache != nil {
		if hit, ok := s.cache.GetSearch(ctx, query, limit); ok {
			telemetry.SearchRequestsTotal.WithLabelValues("hit").Inc()
			return hit, nil
		}
	}

	key := cache.SearchKey(query, limit)
	ch := s.group.DoChan(key, func() (any, error) {
		// Detached from the first caller: one cancelled caller must not fail the others.
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedSearchTimeout)
		defer cancel()

		if s.limiter != nil {
			if err := s.limiter.Wait(sctx); err != nil {
				return nil, fmt.Errorf("search rate limit: %w", err)
			}
		}
		telemetry.SearchRequestsTotal.WithLabelValues("miss").Inc()
		res, err := s.next.Search(sctx, query, limit)
		if err != nil {
			return nil, err
		}
		if s.cache != nil && len(res) > 0 {
			if err := s.cache.SetSearch(sctx, query, limit, res); err != nil {
				s.logger.Debug().Err(err).Msg("failed to cache search results")
			}
		}
		return res, nil
	})

	var r singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r = <-ch:
	}
	if r.Err != nil {
		return nil, r.Err
	}
	if r.Shared {
		s.logger.Debug().Str("query", query).Msg("coalesced concurrent search")
	}

	res := r.Val.([]models.Candidate)
	return append([]models.Candidate(nil), res...), nil
}

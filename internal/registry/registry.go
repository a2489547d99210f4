/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package registry owns the per-guild playback sessions.
package registry

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/guildtune/internal/events"
	"github.com/friendsincode/guildtune/internal/models"
	"github.com/friendsincode/guildtune/internal/preferences"
	"github.com/friendsincode/guildtune/internal/session"
	"github.com/friendsincode/guildtune/internal/telemetry"
)

// DefaultLookupTimeout bounds the preference read done when a session is created.
const DefaultLookupTimeout = 2 * time.Second

// Eviction reasons carried on session_evicted events.
const (
	ReasonIdle     = "idle"
	ReasonStopped  = "stopped"
	ReasonShutdown = "shutdown"
)

// ErrSessionNotFound is returned for guilds without a session.
var ErrSessionNotFound = errors.New("session not found")

// Options carries what every new session is built from.
type Options struct {
	Session       session.Config
	Resolver      session.Resolver
	Advisor       session.Advisor
	Publisher     events.Publisher
	Preferences   preferences.Store
	Defaults      models.Preferences
	LookupTimeout time.Duration
	Clock         func() time.Time
}

// Registry maps guild ids to sessions. Its lock guards only the map; each session
// serializes its own operations, so guilds never block each other.
type Registry struct {
	opts   Options
	logger zerolog.Logger

	mu       sync.RWMutex
	sessions map[string]*session.Session
}

// New creates an empty registry.
func New(opts Options, logger zerolog.Logger) *Registry {
	if opts.Publisher == nil {
		opts.Publisher = events.Discard{}
	}
	if opts.Preferences == nil {
		opts.Preferences = preferences.Static{Prefs: opts.Defaults}
	}
	if opts.LookupTimeout <= 0 {
		opts.LookupTimeout = DefaultLookupTimeout
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Registry{
		opts:     opts,
		logger:   logger.With().Str("component", "registry").Logger(),
		sessions: make(map[string]*session.Session),
	}
}

// GetOrCreate returns the guild's session, creating a disconnected one on first use.
// A destroyed session still in the map is replaced.
func (r *Registry) GetOrCreate(ctx context.Context, guildID string) (*session.Session, error) {
	if s := r.live(guildID); s != nil {
		return s, nil
	}

	// Read preferences before taking the write lock so a slow store never blocks other guilds.
	prefs := r.lookup(ctx, guildID)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[guildID]; ok && !s.Destroyed() {
		return s, nil
	}

	opts := session.Options{
		Resolver:    r.opts.Resolver,
		Advisor:     r.opts.Advisor,
		Publisher:   r.opts.Publisher,
		Preferences: prefs,
		Clock:       r.opts.Clock,
	}
	s := session.New(guildID, r.opts.Session, opts, r.logger)
	r.sessions[guildID] = s
	telemetry.SessionsActive.Set(float64(len(r.sessions)))

	r.logger.Debug().Str("guild_id", guildID).Msg("session created")
	return s, nil
}

// live returns the guild's session unless it is missing or destroyed. Only the
// lock-free destroyed flag is consulted while r.mu is held; a session's own mutex
// may be held across slow sink calls.
func (r *Registry) live(guildID string) *session.Session {
	r.mu.RLock()
	s, ok := r.sessions[guildID]
	r.mu.RUnlock()
	if !ok || s.Destroyed() {
		return nil
	}
	return s
}

func (r *Registry) lookup(ctx context.Context, guildID string) models.Preferences {
	lctx, cancel := context.WithTimeout(ctx, r.opts.LookupTimeout)
	defer cancel()

	prefs, err := r.opts.Preferences.Lookup(lctx, guildID)
	if err != nil {
		r.logger.Warn().Err(err).Str("guild_id", guildID).Msg("preference lookup failed, using defaults")
		return r.opts.Defaults
	}
	return prefs
}

// Get returns the guild's session.
func (r *Registry) Get(guildID string) (*session.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[guildID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// List returns the sessions sorted by guild id. The slice is a copy; callers may
// operate on the sessions without holding any registry lock.
func (r *Registry) List() []*session.Session {
	r.mu.RLock()
	out := make([]*session.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].GuildID() < out[j].GuildID() })
	return out
}

// Len returns the number of sessions held.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Evict destroys the guild's session and drops it from the registry.
func (r *Registry) Evict(guildID, reason string) error {
	s, err := r.Get(guildID)
	if err != nil {
		return err
	}
	// Destroy before removal: in-flight work is cancelled and the sink released while
	// the entry still exists, so a concurrent GetOrCreate sees a destroyed session and replaces it.
	if err := s.Destroy(); err != nil {
		return err
	}
	r.remove(s, reason)
	return nil
}

// EvictIfIdle evicts the guild's session if it has been idle for longer than threshold.
func (r *Registry) EvictIfIdle(guildID string, now time.Time, threshold time.Duration) bool {
	s, err := r.Get(guildID)
	if err != nil {
		return false
	}
	if !s.DestroyIfIdle(now, threshold) {
		return false
	}
	r.remove(s, ReasonIdle)
	return true
}

// Stop is the explicit guild-level stop: the session is destroyed and removed.
func (r *Registry) Stop(guildID string) error {
	return r.Evict(guildID, ReasonStopped)
}

// Shutdown evicts every session. It returns early if ctx ends first.
func (r *Registry) Shutdown(ctx context.Context) error {
	for _, s := range r.List() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.Evict(s.GuildID(), ReasonShutdown); err != nil && !errors.Is(err, ErrSessionNotFound) {
			r.logger.Error().Err(err).Str("guild_id", s.GuildID()).Msg("failed to evict session")
		}
	}
	r.logger.Info().Msg("registry shut down")
	return nil
}

func (r *Registry) remove(s *session.Session, reason string) {
	guildID := s.GuildID()

	r.mu.Lock()
	removed := false
	if cur, ok := r.sessions[guildID]; ok && cur == s {
		delete(r.sessions, guildID)
		removed = true
	}
	telemetry.SessionsActive.Set(float64(len(r.sessions)))
	r.mu.Unlock()

	if !removed {
		return
	}
	r.opts.Publisher.Publish(events.EventSessionEvicted, events.Payload{
		"guild_id": guildID,
		"reason":   reason,
	})
	r.logger.Info().Str("guild_id", guildID).Str("reason", reason).Msg("session evicted")
}

/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/guildtune/internal/cache"
	"github.com/friendsincode/guildtune/internal/config"
	"github.com/friendsincode/guildtune/internal/db"
	"github.com/friendsincode/guildtune/internal/eventbus"
	"github.com/friendsincode/guildtune/internal/events"
	"github.com/friendsincode/guildtune/internal/logbuffer"
	"github.com/friendsincode/guildtune/internal/preferences"
	"github.com/friendsincode/guildtune/internal/reaper"
	"github.com/friendsincode/guildtune/internal/registry"
	"github.com/friendsincode/guildtune/internal/resolver"
	"github.com/friendsincode/guildtune/internal/telemetry"
)

// Server bundles the session registry, its background workers and the admin API.
type Server struct {
	cfg        *config.Config
	logger     zerolog.Logger
	router     chi.Router
	httpServer *http.Server
	closers    []func() error

	db        *gorm.DB
	cache     *cache.Cache
	bus       events.Broker
	logBuffer *logbuffer.Buffer
	resolver  *resolver.Resolver
	registry  *registry.Registry
	reaper    *reaper.Reaper

	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// New constructs the server and wires dependencies. logBuf may be nil.
func New(cfg *config.Config, logBuf *logbuffer.Buffer, logger zerolog.Logger) (*Server, error) {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(securityHeadersMiddleware)
	router.Use(telemetry.TracingMiddleware("guildtune-admin"))
	router.Use(telemetry.MetricsMiddleware)

	srv := &Server{
		cfg:       cfg,
		logger:    logger,
		router:    router,
		logBuffer: logBuf,
	}

	if err := srv.initDependencies(); err != nil {
		_ = srv.Close()
		return nil, err
	}

	srv.configureRoutes()
	srv.startBackgroundWorkers()

	srv.httpServer = &http.Server{
		Addr:              cfg.Addr(),
		Handler:           srv.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// No WriteTimeout: the events stream is long-lived. REST routes carry their own timeout.
		IdleTimeout:       60 * time.Second,
	}

	return srv, nil
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("X-Frame-Options", "DENY")
		// JSON and metrics only; nothing here should ever render in a browser frame.
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		w.Header().Set("Cache-Control", "no-store")

		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) initDependencies() error {
	c, err := NewCache(s.cfg, s.logger)
	if err != nil {
		return err
	}
	s.cache = c
	s.DeferClose(c.Close)

	nodeID := s.cfg.InstanceID
	if nodeID == "" {
		nodeID = eventbus.NodeID()
	}
	redisCfg := eventbus.DefaultRedisConfig()
	redisCfg.Addr = s.cfg.RedisAddr
	redisCfg.Password = s.cfg.RedisPassword
	redisCfg.DB = s.cfg.RedisDB
	natsCfg := eventbus.DefaultNATSConfig()
	natsCfg.URL = s.cfg.NATSURL

	bus, err := eventbus.New(eventbus.Config{
		Kind:   s.cfg.EventBus,
		NodeID: nodeID,
		Redis:  redisCfg,
		NATS:   natsCfg,
	}, s.logger)
	if err != nil {
		return err
	}
	s.bus = bus
	s.DeferClose(bus.Close)

	searcher := NewSearcher(s.cfg, c, s.logger)
	res, err := NewResolver(s.cfg, searcher, s.logger)
	if err != nil {
		return err
	}
	s.resolver = res

	defaults := preferences.Defaults(s.cfg.DefaultVolume)
	var store preferences.Store = preferences.Static{Prefs: defaults}
	database, err := db.Connect(s.cfg)
	switch {
	case errors.Is(err, db.ErrNoDSN):
		s.logger.Info().Msg("no preference database configured, using built-in defaults")
	case err != nil:
		return err
	default:
		s.db = database
		s.DeferClose(func() error { return db.Close(database) })
		store = preferences.NewGormStore(database, c, defaults, s.logger)
	}

	s.registry = registry.New(registry.Options{
		Session:     SessionConfig(s.cfg),
		Resolver:    res,
		Advisor:     NewAdvisor(s.cfg, searcher, s.logger),
		Publisher:   bus,
		Preferences: store,
		Defaults:    defaults,
	}, s.logger)
	s.reaper = reaper.New(s.registry, s.cfg.ReaperInterval, s.cfg.IdleThreshold, s.logger)

	return nil
}

// HTTPServer exposes the underlying net/http server.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// Registry exposes the session registry to the command layer.
func (s *Server) Registry() *registry.Registry {
	return s.registry
}

// Close evicts every session, stops background workers and releases owned resources
// in reverse order.
func (s *Server) Close() error {
	if s.registry != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := s.registry.Shutdown(ctx); err != nil {
			s.logger.Error().Err(err).Msg("registry shutdown error")
		}
		cancel()
	}
	s.stopBackgroundWorkers()
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.closers = nil
	return firstErr
}

// DeferClose registers a cleanup hook.
func (s *Server) DeferClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

func (s *Server) startBackgroundWorkers() {
	ctx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel

	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		if err := s.reaper.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error().Err(err).Msg("reaper loop exited")
		}
	}()

	if s.db != nil {
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			ticker := time.NewTicker(30 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					db.UpdateConnectionMetrics(s.db)
				}
			}
		}()
	}

	if s.cache.IsAvailable() {
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			s.runCacheInvalidationListener(ctx)
		}()
	}
}

// runCacheInvalidationListener drops a guild's cached preferences when its session is
// evicted, so the next session for that guild reads them fresh.
func (s *Server) runCacheInvalidationListener(ctx context.Context) {
	evicted := s.bus.Subscribe(events.EventSessionEvicted)
	defer s.bus.Unsubscribe(events.EventSessionEvicted, evicted)

	s.logger.Info().Msg("cache invalidation listener started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("cache invalidation listener stopped")
			return
		case payload, ok := <-evicted:
			if !ok {
				return
			}
			if guildID, ok := payload["guild_id"].(string); ok && guildID != "" {
				s.logger.Debug().Str("guild_id", guildID).Msg("invalidating preference cache (session evicted)")
				_ = s.cache.InvalidatePreferences(ctx, guildID)
			}
		}
	}
}

func (s *Server) stopBackgroundWorkers() {
	if s.bgCancel == nil {
		return
	}
	s.bgCancel()
	s.bgWG.Wait()
	s.bgCancel = nil
}

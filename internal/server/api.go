/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	ws "nhooyr.io/websocket"

	"github.com/friendsincode/guildtune/internal/auth"
	"github.com/friendsincode/guildtune/internal/events"
	"github.com/friendsincode/guildtune/internal/logbuffer"
	"github.com/friendsincode/guildtune/internal/models"
	"github.com/friendsincode/guildtune/internal/registry"
	"github.com/friendsincode/guildtune/internal/telemetry"
	"github.com/friendsincode/guildtune/internal/version"
)

// streamedEvents are delivered on the events stream when no types are requested.
var streamedEvents = []events.EventType{
	events.EventNowPlaying,
	events.EventTrackFailed,
	events.EventRetryLimit,
	events.EventSessionState,
	events.EventAutoplay,
	events.EventSessionEvicted,
}

// adminAPI serves read-only views of the running sessions.
type adminAPI struct {
	registry *registry.Registry
	backends []string
	logs     *logbuffer.Buffer // nil disables the log endpoints
	bus      events.Broker     // nil disables the event stream
	secret   []byte            // nil leaves /api/v1 unauthenticated
	logger   zerolog.Logger
}

func (s *Server) configureRoutes() {
	api := &adminAPI{
		registry: s.registry,
		backends: s.resolver.Backends(),
		logs:     s.logBuffer,
		bus:      s.bus,
		logger:   s.logger.With().Str("component", "admin").Logger(),
	}
	if s.cfg.AdminJWTSecret != "" {
		api.secret = []byte(s.cfg.AdminJWTSecret)
	} else {
		s.logger.Warn().Msg("GUILDTUNE_ADMIN_JWT_SECRET not set, admin API is unauthenticated")
	}
	api.Routes(s.router)
}

// Routes mounts the admin endpoints on r.
func (a *adminAPI) Routes(r chi.Router) {
	r.Get("/healthz", a.handleHealth)
	r.Handle("/metrics", telemetry.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(auth.Middleware(a.secret))

		r.Get("/events", a.handleEvents)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))
			r.Get("/backends", a.handleBackends)
			r.Get("/guilds", a.handleListGuilds)
			r.Get("/guilds/{guildID}", a.handleGetGuild)
			r.Get("/guilds/{guildID}/logs", a.handleGuildLogs)
			r.Get("/logs", a.handleLogs)
		})
	})
}

func (a *adminAPI) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"version":  version.Version,
		"sessions": a.registry.Len(),
	})
}

func (a *adminAPI) handleBackends(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"backends": a.backends})
}

func (a *adminAPI) handleListGuilds(w http.ResponseWriter, r *http.Request) {
	sessions := a.registry.List()
	out := make([]models.SessionSnapshot, 0, len(sessions))
	for _, s := range sessions {
		if auth.CanView(r.Context(), s.GuildID()) {
			out = append(out, s.Snapshot())
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"guilds": out})
}

func (a *adminAPI) handleGetGuild(w http.ResponseWriter, r *http.Request) {
	guildID := chi.URLParam(r, "guildID")
	if !auth.CanView(r.Context(), guildID) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	s, err := a.registry.Get(guildID)
	if errors.Is(err, registry.ErrSessionNotFound) {
		writeError(w, http.StatusNotFound, "guild_not_found")
		return
	}
	writeJSON(w, http.StatusOK, s.Snapshot())
}

func (a *adminAPI) handleGuildLogs(w http.ResponseWriter, r *http.Request) {
	guildID := chi.URLParam(r, "guildID")
	if !auth.CanView(r.Context(), guildID) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	a.serveLogs(w, r, guildID)
}

func (a *adminAPI) handleLogs(w http.ResponseWriter, r *http.Request) {
	if claims, ok := auth.ClaimsFromContext(r.Context()); ok && len(claims.Guilds) > 0 {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	a.serveLogs(w, r, "")
}

func (a *adminAPI) serveLogs(w http.ResponseWriter, r *http.Request, guildID string) {
	if a.logs == nil {
		writeError(w, http.StatusNotFound, "log_buffer_disabled")
		return
	}

	q := logbuffer.Query{
		GuildID:    guildID,
		Level:      r.URL.Query().Get("level"),
		Component:  r.URL.Query().Get("component"),
		Search:     r.URL.Query().Get("q"),
		Limit:      200,
		Descending: true,
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_limit")
			return
		}
		q.Limit = n
	}
	if v := r.URL.Query().Get("since"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_since")
			return
		}
		q.Since = time.Now().Add(-d)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entries": a.logs.Find(q),
		"stats":   a.logs.Stats(guildID),
	})
}

// handleEvents streams bus events over a websocket. Query parameters: types (comma
// separated, default all session events) and guild (restrict to one guild).
func (a *adminAPI) handleEvents(w http.ResponseWriter, r *http.Request) {
	if a.bus == nil {
		writeError(w, http.StatusNotFound, "event_stream_disabled")
		return
	}
	eventTypes, err := parseEventTypes(r.URL.Query().Get("types"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_types")
		return
	}
	guildID := r.URL.Query().Get("guild")
	if guildID != "" && !auth.CanView(r.Context(), guildID) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	// Subscribe before the upgrade so nothing published after the handshake is missed.
	subscribers := make([]events.Subscriber, len(eventTypes))
	for i, eventType := range eventTypes {
		subscribers[i] = a.bus.Subscribe(eventType)
	}
	defer func() {
		for i, eventType := range eventTypes {
			a.bus.Unsubscribe(eventType, subscribers[i])
		}
	}()

	conn, err := ws.Accept(w, r, nil)
	if err != nil {
		a.logger.Error().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.Close(ws.StatusInternalError, "server error")

	telemetry.APIWebSocketConnections.Inc()
	defer telemetry.APIWebSocketConnections.Dec()

	ctx := conn.CloseRead(r.Context())
	merged := make(chan streamEvent, len(eventTypes))
	for i, eventType := range eventTypes {
		go forwardEvents(ctx, eventType, subscribers[i], merged)
	}

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close(ws.StatusNormalClosure, "")
			return
		case <-ticker.C:
			if err := writeFrame(ctx, conn, map[string]any{"type": "ping"}); err != nil {
				a.logger.Debug().Err(err).Msg("websocket ping failed")
				return
			}
		case ev := <-merged:
			target, _ := ev.payload["guild_id"].(string)
			if guildID != "" && target != guildID {
				continue
			}
			if !auth.CanView(r.Context(), target) {
				continue
			}
			if err := writeFrame(ctx, conn, map[string]any{"type": ev.eventType, "payload": ev.payload}); err != nil {
				a.logger.Debug().Err(err).Msg("websocket write failed")
				return
			}
		}
	}
}

type streamEvent struct {
	eventType events.EventType
	payload   events.Payload
}

func forwardEvents(ctx context.Context, eventType events.EventType, sub events.Subscriber, out chan<- streamEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-sub:
			if !ok {
				return
			}
			select {
			case out <- streamEvent{eventType: eventType, payload: payload}:
			case <-ctx.Done():
				return
			}
		}
	}
}

func parseEventTypes(raw string) ([]events.EventType, error) {
	if strings.TrimSpace(raw) == "" {
		return streamedEvents, nil
	}
	var out []events.EventType
	for _, part := range strings.Split(raw, ",") {
		t := events.EventType(strings.TrimSpace(part))
		known := false
		for _, s := range streamedEvents {
			if s == t {
				known = true
				break
			}
		}
		if !known {
			return nil, fmt.Errorf("unknown event type %q", t)
		}
		out = append(out, t)
	}
	return out, nil
}

func writeFrame(ctx context.Context, conn *ws.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return conn.Write(wctx, ws.MessageText, data)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

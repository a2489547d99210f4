/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package resolver turns tracks into audio streams by walking an ordered backend cascade.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/friendsincode/guildtune/internal/models"
	"github.com/friendsincode/guildtune/internal/telemetry"
)

const (
	DefaultBackendTimeout   = 15 * time.Second
	DefaultTranslateTimeout = 10 * time.Second
)

// Searcher looks up native catalog candidates for a query.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]models.Candidate, error)
}

// Entry is one cascade step.
type Entry struct {
	Backend Backend
	Timeout time.Duration
}

// Resolver tries each backend in order; the first success wins.
type Resolver struct {
	chain            []Entry
	search           Searcher
	translateTimeout time.Duration
	logger           zerolog.Logger
}

// New creates a resolver. search may be nil when every track carries a native URI.
func New(chain []Entry, search Searcher, translateTimeout time.Duration, logger zerolog.Logger) *Resolver {
	entries := make([]Entry, len(chain))
	for i, e := range chain {
		if e.Timeout <= 0 {
			e.Timeout = DefaultBackendTimeout
		}
		entries[i] = e
	}
	if translateTimeout <= 0 {
		translateTimeout = DefaultTranslateTimeout
	}
	return &Resolver{
		chain:            entries,
		search:           search,
		translateTimeout: translateTimeout,
		logger:           logger.With().Str("component", "resolver").Logger(),
	}
}

// Backends lists the configured backend names in cascade order.
func (r *Resolver) Backends() []string {
	names := make([]string, len(r.chain))
	for i, e := range r.chain {
		names[i] = e.Backend.Name()
	}
	return names
}

// Resolve opens a stream for req.Track.
//
// Cross-service references and free-text tracks are first translated to a native URI with a
// single bounded search. The cascade stops at the first backend that succeeds. When all fail
// the returned *ExhaustedError lists one attempt per backend. Cancelling ctx aborts the
// cascade and returns ctx.Err().
func (r *Resolver) Resolve(ctx context.Context, req Request) (*Stream, error) {
	ctx, span := telemetry.StartSpan(ctx, "resolver.resolve", telemetry.TrackAttributes(req.Track)...)
	defer span.End()

	logger := r.logger.With().Str("track_id", req.Track.ID).Str("track", req.Track.Label()).Logger()

	if req.URI == "" {
		uri, err := r.translate(ctx, req.Track)
		if err != nil {
			telemetry.ResolutionsTotal.WithLabelValues("translation_failed").Inc()
			telemetry.RecordError(span, err)
			return nil, err
		}
		req.URI = uri
	}

	attempts := make([]models.BackendAttempt, 0, len(r.chain))
	for _, entry := range r.chain {
		if err := ctx.Err(); err != nil {
			telemetry.ResolutionsTotal.WithLabelValues("cancelled").Inc()
			return nil, err
		}

		stream, attempt := r.attempt(ctx, entry, req)
		attempts = append(attempts, attempt)

		if stream != nil {
			stream.Attempts = attempts
			logger.Info().
				Str("backend", attempt.Backend).
				Dur("elapsed", attempt.Elapsed).
				Int("attempt", len(attempts)).
				Msg("track resolved")
			telemetry.ResolutionsTotal.WithLabelValues("success").Inc()
			return stream, nil
		}

		if err := ctx.Err(); err != nil {
			telemetry.ResolutionsTotal.WithLabelValues("cancelled").Inc()
			return nil, err
		}

		logger.Warn().
			Str("backend", attempt.Backend).
			Str("outcome", string(attempt.Outcome)).
			Str("reason", attempt.Reason).
			Msg("backend failed, trying next")
	}

	err := &ExhaustedError{Track: req.Track, Attempts: attempts}
	telemetry.ResolutionsTotal.WithLabelValues("exhausted").Inc()
	telemetry.RecordError(span, err)
	logger.Error().Int("backends", len(attempts)).Msg("all backends failed")
	return nil, err
}

type result struct {
	stream *Stream
	err    error
}

// attempt runs one backend under its timeout. It returns as soon as the deadline passes even
// if the backend ignores its context; a stream delivered afterwards is closed.
func (r *Resolver) attempt(ctx context.Context, entry Entry, req Request) (*Stream, models.BackendAttempt) {
	name := entry.Backend.Name()
	attempt := models.BackendAttempt{Backend: name, StartedAt: time.Now()}

	actx, cancel := context.WithTimeout(ctx, entry.Timeout)
	defer cancel()

	actx, span := telemetry.StartSpan(actx, "resolver.backend", attribute.String("backend.name", name))
	defer span.End()

	done := make(chan result, 1)
	go func() {
		s, err := entry.Backend.Resolve(actx, req)
		done <- result{stream: s, err: err}
	}()

	var res result
	select {
	case res = <-done:
	case <-actx.Done():
		go func() {
			if late := <-done; late.stream != nil {
				_ = late.stream.Close()
			}
		}()
		res = result{err: actx.Err()}
	}

	attempt.Elapsed = time.Since(attempt.StartedAt)
	telemetry.BackendAttemptDuration.WithLabelValues(name).Observe(attempt.Elapsed.Seconds())

	switch {
	case res.err == nil && res.stream != nil:
		attempt.Outcome = models.OutcomeSuccess
	case res.err == nil:
		attempt.Outcome = models.OutcomeFailure
		attempt.Reason = "backend returned no stream"
	case errors.Is(res.err, context.DeadlineExceeded) && ctx.Err() == nil:
		attempt.Outcome = models.OutcomeTimeout
		attempt.Reason = fmt.Sprintf("timed out after %s", entry.Timeout)
	default:
		attempt.Outcome = models.OutcomeFailure
		attempt.Reason = res.err.Error()
	}

	telemetry.BackendAttemptsTotal.WithLabelValues(name, string(attempt.Outcome)).Inc()
	if attempt.Outcome != models.OutcomeSuccess {
		if res.stream != nil {
			_ = res.stream.Close()
		}
		telemetry.RecordError(span, res.err)
		return nil, attempt
	}
	return res.stream, attempt
}

// translate finds a native URI for tracks that cannot be extracted as-is.
func (r *Resolver) translate(ctx context.Context, t models.Track) (string, error) {
	if t.Origin != models.OriginCrossService && models.IsURL(t.SourceURI) {
		return t.SourceURI, nil
	}
	if r.search == nil {
		return "", &TranslationError{Track: t, Err: errors.New("no search provider configured")}
	}

	tctx, cancel := context.WithTimeout(ctx, r.translateTimeout)
	defer cancel()

	query := t.SearchQuery()
	candidates, err := r.search.Search(tctx, query, 1)
	if err != nil {
		return "", &TranslationError{Track: t, Err: err}
	}
	for _, c := range candidates {
		if c.NativeURI != "" {
			r.logger.Debug().
				Str("query", query).
				Str("source_uri", t.SourceURI).
				Str("native_uri", c.NativeURI).
				Msg("translated track to native uri")
			return c.NativeURI, nil
		}
	}
	return "", &TranslationError{Track: t, Err: fmt.Errorf("no results for %q", query)}
}

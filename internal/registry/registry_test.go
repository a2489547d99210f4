/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package registry

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/guildtune/internal/events"
	"github.com/friendsincode/guildtune/internal/models"
	"github.com/friendsincode/guildtune/internal/resolver"
	"github.com/friendsincode/guildtune/internal/session"
)

// holdResolver blocks resolution of titles listed in hold until their channel is closed.
type holdResolver struct {
	mu   sync.Mutex
	hold map[string]chan struct{}
}

func (r *holdResolver) Resolve(ctx context.Context, req resolver.Request) (*resolver.Stream, error) {
	r.mu.Lock()
	ch := r.hold[req.Track.Title]
	r.mu.Unlock()
	if ch != nil {
		select {
		case <-ch:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return resolver.NewStream(req.Track, "fake", req.Track.SourceURI, io.NopCloser(strings.NewReader(""))), nil
}

type quietSink struct {
	events chan session.SinkEvent
}

func newQuietSink() *quietSink { return &quietSink{events: make(chan session.SinkEvent)} }

func (q *quietSink) Connect(context.Context) error    { return nil }
func (q *quietSink) Bind(*resolver.Stream) error      { return nil }
func (q *quietSink) Pause() error                     { return nil }
func (q *quietSink) Resume() error                    { return nil }
func (q *quietSink) Stop() error                      { return nil }
func (q *quietSink) Close() error                     { return nil }
func (q *quietSink) Events() <-chan session.SinkEvent { return q.events }

type mapStore struct {
	prefs map[string]models.Preferences
	err   error
}

func (m mapStore) Lookup(_ context.Context, guildID string) (models.Preferences, error) {
	if m.err != nil {
		return models.Preferences{}, m.err
	}
	return m.prefs[guildID], nil
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func newRegistry(t *testing.T, opts Options) *Registry {
	t.Helper()
	if opts.Resolver == nil {
		opts.Resolver = &holdResolver{}
	}
	if opts.Defaults == (models.Preferences{}) {
		opts.Defaults = models.Preferences{DefaultVolume: 50}
	}
	r := New(opts, zerolog.Nop())
	t.Cleanup(func() { _ = r.Shutdown(context.Background()) })
	return r
}

func connected(t *testing.T, r *Registry, guildID string) *session.Session {
	t.Helper()
	s, err := r.GetOrCreate(context.Background(), guildID)
	if err != nil {
		t.Fatalf("get or create %s: %v", guildID, err)
	}
	if err := s.Connect(context.Background(), newQuietSink()); err != nil {
		t.Fatalf("connect %s: %v", guildID, err)
	}
	return s
}

func TestGetOrCreateReusesSession(t *testing.T) {
	r := newRegistry(t, Options{})
	a, _ := r.GetOrCreate(context.Background(), "g1")
	b, _ := r.GetOrCreate(context.Background(), "g1")
	if a != b {
		t.Fatal("expected the same session for the same guild")
	}
	if r.Len() != 1 {
		t.Fatalf("expected 1 session, got %d", r.Len())
	}
}

func TestGetOrCreateReadsPreferences(t *testing.T) {
	tests := []struct {
		name       string
		store      mapStore
		wantVolume int
		wantLoop   bool
	}{
		{
			name:       "stored",
			store:      mapStore{prefs: map[string]models.Preferences{"g1": {DefaultVolume: 80, Loop: true}}},
			wantVolume: 80,
			wantLoop:   true,
		},
		{
			name:       "store error falls back to defaults",
			store:      mapStore{err: errors.New("db down")},
			wantVolume: 35,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRegistry(t, Options{Preferences: tt.store, Defaults: models.Preferences{DefaultVolume: 35}})
			s, err := r.GetOrCreate(context.Background(), "g1")
			if err != nil {
				t.Fatalf("get or create: %v", err)
			}
			snap := s.Snapshot()
			if snap.VolumePercent != tt.wantVolume || snap.Loop != tt.wantLoop {
				t.Fatalf("got volume=%d loop=%v", snap.VolumePercent, snap.Loop)
			}
		})
	}
}

func TestGuildsDoNotBlockEachOther(t *testing.T) {
	release := make(chan struct{})
	res := &holdResolver{hold: map[string]chan struct{}{"slow": release}}
	r := newRegistry(t, Options{Resolver: res})

	a := connected(t, r, "a")
	b := connected(t, r, "b")

	done := make(chan error, 1)
	go func() { done <- a.Play(context.Background(), models.Track{Title: "slow"}) }()

	deadline := time.Now().Add(2 * time.Second)
	for a.State() != session.StateBuffering {
		if time.Now().After(deadline) {
			t.Fatal("guild a never started buffering")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// b plays and mutates freely while a is stuck resolving.
	if err := b.Play(context.Background(), models.Track{Title: "fast"}); err != nil {
		t.Fatalf("play b: %v", err)
	}
	if err := b.Enqueue(models.Track{Title: "next"}); err != nil {
		t.Fatalf("enqueue b: %v", err)
	}
	if b.State() != session.StatePlaying {
		t.Fatalf("b state = %s", b.State())
	}
	if len(a.Snapshot().Pending) != 0 {
		t.Fatal("b's enqueue leaked into a")
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("play a: %v", err)
	}
	if a.State() != session.StatePlaying {
		t.Fatalf("a state = %s", a.State())
	}
}

// bindGateSink blocks Bind until release is closed, holding the session mutex meanwhile.
type bindGateSink struct {
	*quietSink
	entered chan struct{}
	release chan struct{}
}

func (b *bindGateSink) Bind(*resolver.Stream) error {
	close(b.entered)
	<-b.release
	return nil
}

func TestSlowSinkDoesNotStallRegistry(t *testing.T) {
	r := newRegistry(t, Options{})
	connected(t, r, "b")

	a, err := r.GetOrCreate(context.Background(), "a")
	if err != nil {
		t.Fatalf("get or create a: %v", err)
	}
	sink := &bindGateSink{quietSink: newQuietSink(), entered: make(chan struct{}), release: make(chan struct{})}
	if err := a.Connect(context.Background(), sink); err != nil {
		t.Fatalf("connect a: %v", err)
	}

	played := make(chan error, 1)
	go func() { played <- a.Play(context.Background(), models.Track{Title: "stuck"}) }()
	t.Cleanup(func() {
		close(sink.release)
		<-played
	})

	select {
	case <-sink.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("bind never reached")
	}

	done := make(chan error, 1)
	go func() {
		if got, err := r.GetOrCreate(context.Background(), "a"); err != nil || got != a {
			done <- errors.New("get or create a returned a different session")
			return
		}
		if _, err := r.GetOrCreate(context.Background(), "c"); err != nil {
			done <- err
			return
		}
		if _, err := r.Get("b"); err != nil {
			done <- err
			return
		}
		if n := len(r.List()); n != 3 {
			done <- errors.New("list did not return every session")
			return
		}
		done <- nil
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(time.Second):
		t.Fatal("registry calls blocked behind a session stuck in Bind")
	}
}

func TestEvictDestroysAndPublishes(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()
	sub := bus.Subscribe(events.EventSessionEvicted)

	r := newRegistry(t, Options{Publisher: bus})
	s := connected(t, r, "g1")

	if err := r.Evict("g1", ReasonStopped); err != nil {
		t.Fatalf("evict: %v", err)
	}
	if s.State() != session.StateDestroyed {
		t.Fatalf("evicted session state = %s", s.State())
	}
	if r.Len() != 0 {
		t.Fatalf("expected empty registry, got %d", r.Len())
	}

	select {
	case p := <-sub:
		if p["guild_id"] != "g1" || p["reason"] != ReasonStopped {
			t.Fatalf("unexpected payload %v", p)
		}
	case <-time.After(time.Second):
		t.Fatal("no session_evicted event")
	}

	if err := r.Evict("g1", ReasonStopped); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}

	fresh, err := r.GetOrCreate(context.Background(), "g1")
	if err != nil {
		t.Fatalf("recreate: %v", err)
	}
	if fresh == s || fresh.State() != session.StateDisconnected {
		t.Fatal("expected a new disconnected session after eviction")
	}
}

func TestGetOrCreateReplacesDestroyedSession(t *testing.T) {
	r := newRegistry(t, Options{})
	s, _ := r.GetOrCreate(context.Background(), "g1")
	_ = s.Destroy()

	fresh, err := r.GetOrCreate(context.Background(), "g1")
	if err != nil {
		t.Fatalf("get or create: %v", err)
	}
	if fresh == s {
		t.Fatal("destroyed session was handed out again")
	}
}

func TestEvictIfIdle(t *testing.T) {
	clk := &clock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	r := newRegistry(t, Options{Clock: clk.Now})

	idle, _ := r.GetOrCreate(context.Background(), "idle")
	busy, _ := r.GetOrCreate(context.Background(), "busy")
	if err := busy.Enqueue(models.Track{Title: "queued"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	threshold := 5 * time.Minute
	if r.EvictIfIdle("idle", clk.Now().Add(4*time.Minute), threshold) {
		t.Fatal("evicted before threshold")
	}
	later := clk.Now().Add(6 * time.Minute)
	if !r.EvictIfIdle("idle", later, threshold) {
		t.Fatal("idle session not evicted")
	}
	if idle.State() != session.StateDestroyed {
		t.Fatalf("idle session state = %s", idle.State())
	}
	if r.EvictIfIdle("busy", later, threshold) {
		t.Fatal("session with pending tracks evicted")
	}
	if r.EvictIfIdle("missing", later, threshold) {
		t.Fatal("unknown guild reported evicted")
	}
}

func TestListIsSortedSnapshot(t *testing.T) {
	r := newRegistry(t, Options{})
	for _, id := range []string{"c", "a", "b"} {
		_, _ = r.GetOrCreate(context.Background(), id)
	}

	list := r.List()
	var ids []string
	for _, s := range list {
		ids = append(ids, s.GuildID())
	}
	if strings.Join(ids, ",") != "a,b,c" {
		t.Fatalf("unexpected order %v", ids)
	}

	_ = r.Stop("a")
	if len(list) != 3 {
		t.Fatal("list must not change after the registry does")
	}
}

func TestShutdownEvictsAll(t *testing.T) {
	r := newRegistry(t, Options{})
	connected(t, r, "a")
	connected(t, r, "b")

	if err := r.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if r.Len() != 0 {
		t.Fatalf("expected empty registry, got %d", r.Len())
	}
}

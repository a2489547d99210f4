package resolver

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/guildtune/internal/models"
)

type fakeBackend struct {
	name     string
	delay    time.Duration
	err      error
	ignore   bool // ignore ctx cancellation
	calls    atomic.Int32
	lastURI  atomic.Value
	closed   atomic.Bool
	returned chan *Stream
}

func (f *fakeBackend) Name() string { return f.name }

func (f *fakeBackend) Resolve(ctx context.Context, req Request) (*Stream, error) {
	f.calls.Add(1)
	f.lastURI.Store(req.URI)
	if f.delay > 0 {
		if f.ignore {
			time.Sleep(f.delay)
		} else {
			select {
			case <-time.After(f.delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	s := NewStream(req.Track, f.name, req.URI, &closeTracker{Reader: strings.NewReader("pcm"), closed: &f.closed})
	if f.returned != nil {
		f.returned <- s
	}
	return s, nil
}

type closeTracker struct {
	io.Reader
	closed *atomic.Bool
}

func (c *closeTracker) Close() error {
	c.closed.Store(true)
	return nil
}

type fakeSearch struct {
	mu      sync.Mutex
	queries []string
	results []models.Candidate
	err     error
}

func (f *fakeSearch) Search(_ context.Context, query string, limit int) ([]models.Candidate, error) {
	f.mu.Lock()
	f.queries = append(f.queries, query)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if limit < len(f.results) {
		return f.results[:limit], nil
	}
	return f.results, nil
}

func nativeTrack() models.Track {
	return models.Track{ID: "t1", Title: "Song", Author: "Band", SourceURI: "https://youtu.be/abc", Origin: models.OriginDirectURL}
}

func TestFirstSuccessStopsCascade(t *testing.T) {
	b1 := &fakeBackend{name: "b1"}
	b2 := &fakeBackend{name: "b2"}
	r := New([]Entry{{Backend: b1, Timeout: time.Second}, {Backend: b2, Timeout: time.Second}}, nil, 0, zerolog.Nop())

	s, err := r.Resolve(context.Background(), Request{Track: nativeTrack()})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	defer s.Close()

	if s.Backend != "b1" {
		t.Fatalf("expected b1, got %s", s.Backend)
	}
	if b2.calls.Load() != 0 {
		t.Fatalf("b2 must not be called after b1 succeeded")
	}
	if len(s.Attempts) != 1 || s.Attempts[0].Outcome != models.OutcomeSuccess {
		t.Fatalf("unexpected attempts: %+v", s.Attempts)
	}
}

func TestFallsThroughToSecondBackend(t *testing.T) {
	b1 := &fakeBackend{name: "b1", delay: time.Second}
	b2 := &fakeBackend{name: "b2", delay: 10 * time.Millisecond}
	b3 := &fakeBackend{name: "b3"}
	r := New([]Entry{
		{Backend: b1, Timeout: 50 * time.Millisecond},
		{Backend: b2, Timeout: time.Second},
		{Backend: b3, Timeout: time.Second},
	}, nil, 0, zerolog.Nop())

	start := time.Now()
	s, err := r.Resolve(context.Background(), Request{Track: nativeTrack()})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	defer s.Close()

	if s.Backend != "b2" {
		t.Fatalf("expected b2, got %s", s.Backend)
	}
	if b3.calls.Load() != 0 {
		t.Fatal("b3 must never be called")
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("cascade took too long: %s", elapsed)
	}
	if got := s.Attempts[0].Outcome; got != models.OutcomeTimeout {
		t.Fatalf("expected first attempt timeout, got %s", got)
	}
}

func TestExhaustedListsReasonsInOrder(t *testing.T) {
	backends := []*fakeBackend{
		{name: "b1", err: errors.New("403 forbidden")},
		{name: "b2", delay: time.Second},
		{name: "b3", err: errors.New("no formats")},
	}
	timeouts := []time.Duration{time.Second, 40 * time.Millisecond, time.Second}
	chain := make([]Entry, len(backends))
	for i, b := range backends {
		chain[i] = Entry{Backend: b, Timeout: timeouts[i]}
	}
	r := New(chain, nil, 0, zerolog.Nop())

	start := time.Now()
	_, err := r.Resolve(context.Background(), Request{Track: nativeTrack()})
	elapsed := time.Since(start)

	if !errors.Is(err, ErrResolutionExhausted) {
		t.Fatalf("expected ErrResolutionExhausted, got %v", err)
	}
	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected *ExhaustedError, got %T", err)
	}
	if len(exhausted.Attempts) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(exhausted.Attempts))
	}
	for i, want := range []string{"b1", "b2", "b3"} {
		if exhausted.Attempts[i].Backend != want {
			t.Errorf("attempt %d backend = %s, want %s", i, exhausted.Attempts[i].Backend, want)
		}
	}
	if exhausted.Attempts[1].Outcome != models.OutcomeTimeout {
		t.Errorf("expected b2 timeout, got %s", exhausted.Attempts[1].Outcome)
	}
	if !strings.Contains(exhausted.Reasons()[0], "403") {
		t.Errorf("reason lost: %v", exhausted.Reasons())
	}

	var bound time.Duration
	for _, d := range timeouts {
		bound += d
	}
	if elapsed > bound {
		t.Fatalf("elapsed %s exceeds bound %s", elapsed, bound)
	}
}

func TestTimeoutHoldsWhenBackendIgnoresContext(t *testing.T) {
	slow := &fakeBackend{name: "stubborn", delay: 200 * time.Millisecond, ignore: true, returned: make(chan *Stream, 1)}
	r := New([]Entry{{Backend: slow, Timeout: 30 * time.Millisecond}}, nil, 0, zerolog.Nop())

	start := time.Now()
	_, err := r.Resolve(context.Background(), Request{Track: nativeTrack()})
	if !errors.Is(err, ErrResolutionExhausted) {
		t.Fatalf("expected exhaustion, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 150*time.Millisecond {
		t.Fatalf("resolver waited for a stubborn backend: %s", elapsed)
	}

	<-slow.returned
	deadline := time.Now().Add(time.Second)
	for !slow.closed.Load() {
		if time.Now().After(deadline) {
			t.Fatal("late stream was not closed")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestCancelledResolutionReturnsContextError(t *testing.T) {
	b1 := &fakeBackend{name: "b1", delay: time.Second}
	b2 := &fakeBackend{name: "b2"}
	r := New([]Entry{{Backend: b1, Timeout: 5 * time.Second}, {Backend: b2, Timeout: time.Second}}, nil, 0, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := r.Resolve(ctx, Request{Track: nativeTrack()})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if b2.calls.Load() != 0 {
		t.Fatal("cascade continued after cancellation")
	}
}

func TestCrossServiceTranslatesBeforeCascade(t *testing.T) {
	search := &fakeSearch{results: []models.Candidate{{Title: "Song", Author: "Band", NativeURI: "https://youtu.be/native"}}}
	b1 := &fakeBackend{name: "b1"}
	r := New([]Entry{{Backend: b1, Timeout: time.Second}}, search, time.Second, zerolog.Nop())

	track := models.Track{ID: "x", Title: "Song", Author: "Band", SourceURI: "https://open.spotify.com/track/1", Origin: models.OriginCrossService}
	s, err := r.Resolve(context.Background(), Request{Track: track})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	defer s.Close()

	if got := b1.lastURI.Load(); got != "https://youtu.be/native" {
		t.Fatalf("backend saw %v, want translated uri", got)
	}
	if len(search.queries) != 1 || search.queries[0] != "Song Band" {
		t.Fatalf("unexpected queries: %v", search.queries)
	}
}

func TestTranslationFailureSkipsBackends(t *testing.T) {
	search := &fakeSearch{err: errors.New("quota")}
	b1 := &fakeBackend{name: "b1"}
	r := New([]Entry{{Backend: b1, Timeout: time.Second}}, search, time.Second, zerolog.Nop())

	track := models.Track{ID: "x", Title: "Song", SourceURI: "https://open.spotify.com/track/1", Origin: models.OriginCrossService}
	_, err := r.Resolve(context.Background(), Request{Track: track})
	if !errors.Is(err, ErrTranslationFailed) {
		t.Fatalf("expected ErrTranslationFailed, got %v", err)
	}
	if b1.calls.Load() != 0 {
		t.Fatal("backends must not run when translation fails")
	}
}

func TestBackendsOrder(t *testing.T) {
	r := New([]Entry{{Backend: &fakeBackend{name: "a"}}, {Backend: &fakeBackend{name: "b"}}}, nil, 0, zerolog.Nop())
	got := r.Backends()
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("unexpected backends: %v", got)
	}
}

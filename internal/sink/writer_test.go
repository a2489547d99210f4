package sink

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/guildtune/internal/models"
	"github.com/friendsincode/guildtune/internal/resolver"
	"github.com/friendsincode/guildtune/internal/session"
)

type safeBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *safeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func stream(rc io.ReadCloser) *resolver.Stream {
	return resolver.NewStream(models.Track{Title: "t"}, "test", "https://youtu.be/t", rc)
}

func nextEvent(t *testing.T, w *Writer) session.SinkEvent {
	t.Helper()
	select {
	case ev := <-w.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no sink event")
		return session.SinkEvent{}
	}
}

func TestWriterCopiesAndReportsEnd(t *testing.T) {
	out := &safeBuffer{}
	w := NewWriter(out, false, zerolog.Nop())
	defer w.Close()

	if err := w.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	s := stream(io.NopCloser(strings.NewReader("pcm-data")))
	if err := w.Bind(s); err != nil {
		t.Fatalf("bind: %v", err)
	}

	ev := nextEvent(t, w)
	if ev.Type != session.SinkTrackEnded || ev.Stream != s {
		t.Fatalf("unexpected event %+v", ev)
	}
	if out.String() != "pcm-data" {
		t.Fatalf("unexpected output %q", out.String())
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("decoder crashed") }
func (failingReader) Close() error             { return nil }

func TestWriterReportsRuntimeError(t *testing.T) {
	w := NewWriter(io.Discard, false, zerolog.Nop())
	defer w.Close()
	_ = w.Connect(context.Background())

	s := stream(failingReader{})
	if err := w.Bind(s); err != nil {
		t.Fatalf("bind: %v", err)
	}
	ev := nextEvent(t, w)
	if ev.Type != session.SinkRuntimeError || ev.Err == nil {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestWriterRequiresConnect(t *testing.T) {
	w := NewWriter(io.Discard, false, zerolog.Nop())
	if err := w.Bind(stream(io.NopCloser(strings.NewReader("")))); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	_ = w.Close()
	if err := w.Connect(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestWriterPauseHoldsOutput(t *testing.T) {
	pr, pw := io.Pipe()
	out := &safeBuffer{}
	w := NewWriter(out, false, zerolog.Nop())
	defer w.Close()
	_ = w.Connect(context.Background())

	s := stream(pr)
	if err := w.Bind(s); err != nil {
		t.Fatalf("bind: %v", err)
	}

	if _, err := pw.Write([]byte("a")); err != nil {
		t.Fatalf("write: %v", err)
	}
	waitFor(t, func() bool { return out.String() == "a" })

	if err := w.Pause(); err != nil {
		t.Fatalf("pause: %v", err)
	}

	// The copier may already be blocked in Read; it must not write once paused.
	go func() { _, _ = pw.Write([]byte("b")) }()
	time.Sleep(50 * time.Millisecond)
	go func() { _, _ = pw.Write([]byte("c")) }()
	time.Sleep(50 * time.Millisecond)
	if got := out.String(); strings.Contains(got, "c") {
		t.Fatalf("output advanced while paused: %q", got)
	}

	if err := w.Resume(); err != nil {
		t.Fatalf("resume: %v", err)
	}
	waitFor(t, func() bool { return strings.Contains(out.String(), "c") })

	_ = pw.Close()
	if ev := nextEvent(t, w); ev.Type != session.SinkTrackEnded {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestWriterStopSuppressesEvents(t *testing.T) {
	pr, pw := io.Pipe()
	w := NewWriter(io.Discard, false, zerolog.Nop())
	defer w.Close()
	_ = w.Connect(context.Background())

	s := stream(pr)
	_ = w.Bind(s)
	_ = w.Stop()
	_ = s.Close()
	_ = pw.Close()

	select {
	case ev := <-w.Events():
		t.Fatalf("detached stream produced %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met")
}

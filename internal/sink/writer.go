/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package sink provides audio outputs for playback sessions.
package sink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/friendsincode/guildtune/internal/resolver"
	"github.com/friendsincode/guildtune/internal/session"
	"github.com/friendsincode/guildtune/internal/transcode"
)

// BytesPerSecond is the data rate of the PCM the backends produce.
const BytesPerSecond = transcode.SampleRate * transcode.Channels * 2

const chunkSize = 16 * 1024

var (
	ErrNotConnected = errors.New("sink not connected")
	ErrClosed       = errors.New("sink closed")
)

// Writer copies bound streams to an io.Writer. With realtime pacing enabled the copy
// runs at playback speed, otherwise as fast as the writer accepts data.
type Writer struct {
	out      io.Writer
	realtime bool
	logger   zerolog.Logger
	events   chan session.SinkEvent
	done     chan struct{}

	mu        sync.Mutex
	connected bool
	closed    bool
	cur       *binding
	wg        sync.WaitGroup
}

// NewWriter creates a sink writing raw PCM to out.
func NewWriter(out io.Writer, realtime bool, logger zerolog.Logger) *Writer {
	return &Writer{
		out:      out,
		realtime: realtime,
		logger:   logger.With().Str("component", "sink").Logger(),
		events:   make(chan session.SinkEvent, 4),
		done:     make(chan struct{}),
	}
}

func (w *Writer) Connect(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	w.connected = true
	return nil
}

// Bind starts copying stream, detaching whatever was bound before.
func (w *Writer) Bind(stream *resolver.Stream) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	if !w.connected {
		return ErrNotConnected
	}
	w.detachLocked()

	ctx, cancel := context.WithCancel(context.Background())
	b := &binding{stream: stream, ctx: ctx, cancel: cancel}
	if w.realtime {
		b.limiter = rate.NewLimiter(rate.Limit(BytesPerSecond), chunkSize)
	}
	w.cur = b

	w.wg.Add(1)
	go w.copy(b)
	return nil
}

func (w *Writer) Pause() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cur == nil {
		return fmt.Errorf("pause: nothing bound")
	}
	w.cur.pause()
	return nil
}

func (w *Writer) Resume() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cur == nil {
		return fmt.Errorf("resume: nothing bound")
	}
	w.cur.resume()
	return nil
}

// Stop detaches the current stream without closing it.
func (w *Writer) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.detachLocked()
	return nil
}

func (w *Writer) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.connected = false
	w.detachLocked()
	close(w.done)
	w.mu.Unlock()

	w.wg.Wait()
	return nil
}

func (w *Writer) Events() <-chan session.SinkEvent {
	return w.events
}

func (w *Writer) detachLocked() {
	if w.cur != nil {
		w.cur.cancel()
		w.cur = nil
	}
}

func (w *Writer) copy(b *binding) {
	defer w.wg.Done()

	buf := make([]byte, chunkSize)
	var written int64
	for {
		if !b.wait() {
			return
		}
		n, err := b.stream.Read(buf)
		if n > 0 {
			if b.limiter != nil {
				if werr := b.limiter.WaitN(b.ctx, n); werr != nil {
					return
				}
			}
			if _, werr := w.out.Write(buf[:n]); werr != nil {
				w.emit(b, session.SinkEvent{Type: session.SinkRuntimeError, Stream: b.stream, Err: fmt.Errorf("write pcm: %w", werr)})
				return
			}
			written += int64(n)
		}
		if errors.Is(err, io.EOF) {
			w.logger.Debug().Int64("bytes", written).Msg("stream finished")
			w.emit(b, session.SinkEvent{Type: session.SinkTrackEnded, Stream: b.stream})
			return
		}
		if err != nil {
			if b.ctx.Err() != nil {
				return
			}
			w.emit(b, session.SinkEvent{Type: session.SinkRuntimeError, Stream: b.stream, Err: err})
			return
		}
	}
}

// emit delivers ev unless the binding was detached or the sink closed first.
func (w *Writer) emit(b *binding, ev session.SinkEvent) {
	select {
	case w.events <- ev:
	case <-b.ctx.Done():
	case <-w.done:
	}
}

type binding struct {
	stream  *resolver.Stream
	limiter *rate.Limiter
	ctx     context.Context
	cancel  context.CancelFunc

	mu      sync.Mutex
	paused  bool
	resumed chan struct{}
}

func (b *binding) pause() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.paused {
		b.paused = true
		b.resumed = make(chan struct{})
	}
}

func (b *binding) resume() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.paused {
		b.paused = false
		close(b.resumed)
	}
}

// wait blocks while paused. It returns false once the binding is detached.
func (b *binding) wait() bool {
	for {
		b.mu.Lock()
		paused, resumed := b.paused, b.resumed
		b.mu.Unlock()

		if !paused {
			return b.ctx.Err() == nil
		}
		select {
		case <-resumed:
		case <-b.ctx.Done():
			return false
		}
	}
}

/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package session implements the per-guild playback state machine.
package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/guildtune/internal/events"
	"github.com/friendsincode/guildtune/internal/models"
	"github.com/friendsincode/guildtune/internal/queue"
	"github.com/friendsincode/guildtune/internal/resolver"
	"github.com/friendsincode/guildtune/internal/telemetry"
	"github.com/friendsincode/guildtune/internal/transcode"
)

const (
	DefaultConnectTimeout         = 20 * time.Second
	DefaultMaxConsecutiveFailures = 3
	DefaultFailureWindow          = 2 * time.Minute
	DefaultVolume                 = 50

	MinPlaybackRate = 0.5
	MaxPlaybackRate = 2.0
)

// Config holds per-session limits.
type Config struct {
	ConnectTimeout         time.Duration
	MaxConsecutiveFailures int
	FailureWindow          time.Duration
	HistoryCap             int
	MaxQueueSize           int
}

// Options carries the collaborators a session needs.
type Options struct {
	Resolver    Resolver
	Advisor     Advisor // nil disables autoplay suggestions
	Publisher   events.Publisher
	Preferences models.Preferences
	Clock       func() time.Time
	Rand        *rand.Rand
}

// Session is one guild's playback state machine. All methods are safe for concurrent use;
// operations on a session are serialized by its mutex, which is never held while a
// stream is being resolved or an autoplay suggestion fetched.
type Session struct {
	guildID   string
	cfg       Config
	resolver  Resolver
	advisor   Advisor
	publisher events.Publisher
	now       func() time.Time
	logger    zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// destroyed mirrors state == StateDestroyed and is readable without mu.
	destroyed atomic.Bool

	mu           sync.Mutex
	state        State
	queue        *queue.Queue
	nowPlaying   *models.Track
	loop         bool
	autoplay     bool
	volume       int
	rate         float64
	filter       string
	lastActivity time.Time

	sink      Sink
	watchDone chan struct{}
	stream    *resolver.Stream

	// gen is bumped by every operation that supersedes in-flight work.
	gen           uint64
	cancelAttempt context.CancelFunc

	failures    []TrackFailure
	lastFailure time.Time
}

// New creates a disconnected session for guildID.
func New(guildID string, cfg Config, opts Options, logger zerolog.Logger) *Session {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.MaxConsecutiveFailures <= 0 {
		cfg.MaxConsecutiveFailures = DefaultMaxConsecutiveFailures
	}
	if cfg.FailureWindow <= 0 {
		cfg.FailureWindow = DefaultFailureWindow
	}
	if opts.Publisher == nil {
		opts.Publisher = events.Discard{}
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	qopts := []queue.Option{}
	if cfg.HistoryCap > 0 {
		qopts = append(qopts, queue.WithHistoryCap(cfg.HistoryCap))
	}
	if cfg.MaxQueueSize > 0 {
		qopts = append(qopts, queue.WithMaxSize(cfg.MaxQueueSize))
	}
	if opts.Rand != nil {
		qopts = append(qopts, queue.WithRand(opts.Rand))
	}

	log := logger.With().Str("component", "session").Str("guild_id", guildID).Logger()

	prefs := opts.Preferences
	volume := prefs.DefaultVolume
	if volume < 0 || volume > 100 {
		volume = DefaultVolume
	}
	filter := prefs.Filter
	if filter == "" {
		filter = transcode.FilterNormal
	}
	if !transcode.ValidFilter(filter) {
		log.Warn().Str("filter", filter).Msg("ignoring unknown default filter")
		filter = transcode.FilterNormal
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		guildID:      guildID,
		cfg:          cfg,
		resolver:     opts.Resolver,
		advisor:      opts.Advisor,
		publisher:    opts.Publisher,
		now:          opts.Clock,
		logger:       log,
		ctx:          ctx,
		cancel:       cancel,
		state:        StateDisconnected,
		queue:        queue.New(qopts...),
		loop:         prefs.Loop,
		autoplay:     prefs.Autoplay,
		volume:       volume,
		rate:         1.0,
		filter:       filter,
		lastActivity: opts.Clock(),
	}
}

// GuildID returns the tenant this session belongs to.
func (s *Session) GuildID() string { return s.guildID }

// Destroyed reports whether the session has been destroyed. It never blocks on the
// session mutex, so callers holding other locks may use it.
func (s *Session) Destroyed() bool { return s.destroyed.Load() }

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connect binds the session to sink. The sink must report ready within the connect
// timeout or the session returns to Disconnected with a *ConnectionError.
func (s *Session) Connect(ctx context.Context, sink Sink) error {
	s.mu.Lock()
	if err := s.checkLocked(TriggerConnect); err != nil {
		s.mu.Unlock()
		return err
	}
	s.gen++
	gen := s.gen
	s.transitionLocked(TriggerConnect)
	s.touchLocked()
	s.mu.Unlock()

	cctx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	defer cancel()

	errc := make(chan error, 1)
	go func() { errc <- sink.Connect(cctx) }()

	var err error
	select {
	case err = <-errc:
	case <-cctx.Done():
		err = cctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gen != gen {
		_ = sink.Close()
		return ErrSuperseded
	}
	if err != nil {
		_ = sink.Close()
		s.transitionLocked(TriggerSinkFailed)
		s.logger.Warn().Err(err).Msg("sink connection failed")
		return &ConnectionError{GuildID: s.guildID, Err: err}
	}

	s.sink = sink
	s.watchDone = make(chan struct{})
	s.wg.Add(1)
	go s.watch(sink, s.watchDone)

	s.transitionLocked(TriggerSinkReady)
	s.logger.Info().Msg("sink connected")
	return nil
}

// Play replaces whatever is playing with track. It blocks until a stream is bound, the
// queue drains, the retry limit trips, or a newer operation supersedes it.
func (s *Session) Play(ctx context.Context, track models.Track) error {
	s.mu.Lock()
	if err := s.checkLocked(TriggerPlay); err != nil {
		s.mu.Unlock()
		return err
	}
	gen := s.supersedeLocked()
	if s.state == StateBuffering {
		// never heard, so not history
		s.nowPlaying = nil
	}
	s.retireLocked()
	t := models.NewTrack(track)
	s.nowPlaying = &t
	s.resetFailuresLocked()
	s.transitionLocked(TriggerPlay)
	s.touchLocked()
	s.mu.Unlock()

	return s.drive(ctx, gen)
}

// Skip ends the current track and advances as if it had finished, ignoring loop.
func (s *Session) Skip(ctx context.Context) error {
	s.mu.Lock()
	if err := s.checkLocked(TriggerSkip); err != nil {
		s.mu.Unlock()
		return err
	}
	finished := s.nowPlaying
	if s.state == StateBuffering {
		// never heard, so not history; it still seeds autoplay
		s.nowPlaying = nil
	}
	gen := s.supersedeLocked()
	s.resetFailuresLocked()
	s.transitionLocked(TriggerSkip)
	s.touchLocked()

	selected, err := s.advanceLocked(ctx, gen, finished, false)
	s.mu.Unlock()
	if !selected {
		return err
	}
	return s.drive(ctx, gen)
}

// JumpTo plays the pending track at 1-based position pos. Every track ahead of pos moves
// to history, as does the current track once it has been heard.
func (s *Session) JumpTo(ctx context.Context, pos int) error {
	s.mu.Lock()
	if err := s.checkLocked(TriggerSkip); err != nil {
		s.mu.Unlock()
		return err
	}
	skipped, err := s.queue.SkipTo(pos)
	if err != nil {
		s.mu.Unlock()
		return err
	}

	if s.state == StateBuffering {
		s.nowPlaying = nil
	}
	gen := s.supersedeLocked()
	s.resetFailuresLocked()
	s.transitionLocked(TriggerSkip)
	s.retireLocked()
	for _, t := range skipped {
		s.queue.PushHistory(t)
	}
	next, _ := s.queue.Advance()
	s.nowPlaying = &next
	s.transitionLocked(TriggerAdvance)
	s.touchLocked()
	s.mu.Unlock()

	return s.drive(ctx, gen)
}

// Previous plays the most recent history entry and puts the current track back at the
// front of the queue. A track still buffering goes back to the queue, never to history.
func (s *Session) Previous(ctx context.Context) error {
	s.mu.Lock()
	if err := s.checkLocked(TriggerSkip); err != nil {
		s.mu.Unlock()
		return err
	}
	prev, ok := s.queue.PopHistory()
	if !ok {
		s.mu.Unlock()
		return ErrNoHistory
	}
	if s.nowPlaying != nil {
		if err := s.queue.EnqueueFront(*s.nowPlaying); err != nil {
			s.queue.PushHistory(prev)
			s.mu.Unlock()
			return err
		}
	}

	gen := s.supersedeLocked()
	s.resetFailuresLocked()
	s.transitionLocked(TriggerSkip)
	s.nowPlaying = &prev
	s.transitionLocked(TriggerAdvance)
	s.touchLocked()
	s.mu.Unlock()

	return s.drive(ctx, gen)
}

// Replay restarts the current track from the beginning.
func (s *Session) Replay(ctx context.Context) error {
	s.mu.Lock()
	if err := s.checkLocked(TriggerSkip); err != nil {
		s.mu.Unlock()
		return err
	}
	if s.nowPlaying == nil {
		s.mu.Unlock()
		return ErrNothingPlaying
	}

	gen := s.supersedeLocked()
	s.resetFailuresLocked()
	s.transitionLocked(TriggerSkip)
	s.transitionLocked(TriggerAdvance)
	s.touchLocked()
	s.mu.Unlock()

	return s.drive(ctx, gen)
}

// Seek is not supported by the stream backends.
func (s *Session) Seek(_ context.Context, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateDestroyed {
		return ErrSessionDestroyed
	}
	return ErrSeekUnsupported
}

// Pause is valid only while playing.
func (s *Session) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(TriggerPause); err != nil {
		return err
	}
	if err := s.sink.Pause(); err != nil {
		return fmt.Errorf("pause sink: %w", err)
	}
	s.transitionLocked(TriggerPause)
	s.touchLocked()
	return nil
}

// Resume is valid only while paused.
func (s *Session) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(TriggerResume); err != nil {
		return err
	}
	if err := s.sink.Resume(); err != nil {
		return fmt.Errorf("resume sink: %w", err)
	}
	s.transitionLocked(TriggerResume)
	s.touchLocked()
	return nil
}

// Stop cancels any in-flight resolution, releases the sink, clears the queue and
// returns to Disconnected.
func (s *Session) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(TriggerStop); err != nil {
		return err
	}
	s.stopLocked()
	s.transitionLocked(TriggerStop)
	s.touchLocked()
	return nil
}

// Destroy stops the session for good. Every later operation returns ErrSessionDestroyed.
func (s *Session) Destroy() error {
	s.mu.Lock()
	if s.state == StateDestroyed {
		s.mu.Unlock()
		return nil
	}
	s.stopLocked()
	s.transitionLocked(TriggerDestroy)
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Debug().Msg("session destroyed")
	return nil
}

// DestroyIfIdle destroys the session when it has been idle for longer than threshold
// with nothing queued or playing. The check and the destroy happen under one lock hold.
func (s *Session) DestroyIfIdle(now time.Time, threshold time.Duration) bool {
	s.mu.Lock()
	if _, idle := s.idleLocked(now); !idle || now.Sub(s.lastActivity) <= threshold {
		s.mu.Unlock()
		return false
	}
	s.stopLocked()
	s.transitionLocked(TriggerDestroy)
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
	return true
}

// IdleSince reports how long the session has been idle and whether it is reapable at all:
// a session with queued work or a current track never is.
func (s *Session) IdleSince(now time.Time) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.idleLocked(now)
}

func (s *Session) idleLocked(now time.Time) (time.Duration, bool) {
	if s.state == StateDestroyed || s.nowPlaying != nil || !s.queue.IsEmpty() {
		return 0, false
	}
	return now.Sub(s.lastActivity), true
}

// Queue operations

func (s *Session) Enqueue(track models.Track) error {
	return s.mutate(func() error { return s.queue.Enqueue(models.NewTrack(track)) })
}

func (s *Session) EnqueueFront(track models.Track) error {
	return s.mutate(func() error { return s.queue.EnqueueFront(models.NewTrack(track)) })
}

func (s *Session) Remove(pos int) (models.Track, error) {
	var removed models.Track
	err := s.mutate(func() (err error) {
		removed, err = s.queue.Remove(pos)
		return err
	})
	return removed, err
}

func (s *Session) Move(from, to int) (models.Track, error) {
	var moved models.Track
	err := s.mutate(func() (err error) {
		moved, err = s.queue.Move(from, to)
		return err
	})
	return moved, err
}

func (s *Session) Shuffle() error {
	return s.mutate(func() error { s.queue.Shuffle(); return nil })
}

// Clear empties the pending queue; the current track keeps playing.
func (s *Session) Clear() error {
	return s.mutate(func() error { s.queue.Clear(); return nil })
}

// Settings

func (s *Session) SetLoop(on bool) error {
	return s.mutate(func() error { s.loop = on; return nil })
}

func (s *Session) SetAutoplay(on bool) error {
	return s.mutate(func() error { s.autoplay = on; return nil })
}

// SetVolume sets the volume applied to the next resolved stream.
func (s *Session) SetVolume(pct int) error {
	if pct < 0 || pct > 100 {
		return fmt.Errorf("%w: %d", ErrInvalidVolume, pct)
	}
	return s.mutate(func() error { s.volume = pct; return nil })
}

// SetPlaybackRate sets the tempo applied to the next resolved stream.
func (s *Session) SetPlaybackRate(rate float64) error {
	if rate < MinPlaybackRate || rate > MaxPlaybackRate {
		return fmt.Errorf("%w: %.2f", ErrInvalidRate, rate)
	}
	return s.mutate(func() error { s.rate = rate; return nil })
}

// SetFilter selects the audio filter applied to the next resolved stream.
func (s *Session) SetFilter(name string) error {
	if !transcode.ValidFilter(name) {
		return fmt.Errorf("%w: %q", ErrUnknownFilter, name)
	}
	return s.mutate(func() error { s.filter = name; return nil })
}

// Snapshot returns a copy of the session's state.
func (s *Session) Snapshot() models.SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := models.SessionSnapshot{
		GuildID:             s.guildID,
		State:               string(s.state),
		Pending:             s.queue.Pending(),
		History:             s.queue.History(),
		Loop:                s.loop,
		Autoplay:            s.autoplay,
		VolumePercent:       s.volume,
		PlaybackRate:        s.rate,
		ActiveFilter:        s.filter,
		LastActivityAt:      s.lastActivity,
		ConsecutiveFailures: len(s.failures),
	}
	if s.nowPlaying != nil {
		t := *s.nowPlaying
		snap.NowPlaying = &t
	}
	return snap
}

func (s *Session) mutate(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateDestroyed {
		return ErrSessionDestroyed
	}
	if err := fn(); err != nil {
		return err
	}
	s.touchLocked()
	return nil
}

// drive resolves nowPlaying and binds it, advancing past failed tracks until something
// plays, the queue drains, the retry limit trips or gen is superseded.
func (s *Session) drive(ctx context.Context, gen uint64) error {
	var lastErr error
	for {
		s.mu.Lock()
		if s.gen != gen {
			s.mu.Unlock()
			return ErrSuperseded
		}
		track := *s.nowPlaying
		attemptCtx, cancel := context.WithCancel(ctx)
		s.cancelAttempt = cancel
		req := resolver.Request{
			Track:         track,
			Filter:        s.filter,
			Rate:          s.rate,
			VolumePercent: s.volume,
		}
		s.mu.Unlock()

		stream, err := s.resolver.Resolve(attemptCtx, req)
		cancel()

		s.mu.Lock()
		if s.gen != gen {
			s.mu.Unlock()
			if stream != nil {
				_ = stream.Close()
			}
			return ErrSuperseded
		}
		s.cancelAttempt = nil

		if err == nil {
			if err = s.sink.Bind(stream); err == nil {
				s.bindLocked(track, stream)
				s.mu.Unlock()
				return nil
			}
			_ = stream.Close()
			err = fmt.Errorf("bind stream: %w", err)
		}

		s.nowPlaying = nil
		s.transitionLocked(TriggerResolveFail)
		s.touchLocked()

		if ctx.Err() != nil {
			s.transitionLocked(TriggerHalt)
			s.mu.Unlock()
			return ctx.Err()
		}

		lastErr = err
		s.logger.Warn().Err(err).Str("track", track.Label()).Msg("track failed to resolve")
		s.publishLocked(events.EventTrackFailed, failurePayload(track, err))

		if limitErr := s.recordFailureLocked(track, err); limitErr != nil {
			s.transitionLocked(TriggerHalt)
			telemetry.RetryLimitTripsTotal.Inc()
			s.logger.Warn().Int("failures", len(limitErr.Failures)).Msg("retry limit reached, waiting for an explicit play or skip")
			s.publishLocked(events.EventRetryLimit, events.Payload{
				"failures": len(limitErr.Failures),
				"error":    limitErr.Error(),
			})
			s.mu.Unlock()
			return limitErr
		}

		selected, err := s.advanceLocked(ctx, gen, &track, false)
		s.mu.Unlock()
		if err != nil {
			return err
		}
		if !selected {
			return lastErr
		}
	}
}

// advanceLocked decides what plays after finished, from Idle. It runs with s.mu held and
// releases it only while asking the advisor. It reports whether a track was selected, in
// which case the session is Buffering and nowPlaying is that track.
//
//  1. loop: replay the current track unchanged
//  2. pending: retire the current track and take the head of the queue
//  3. autoplay: enqueue a suggestion seeded by finished, then as 2
//  4. otherwise drain to Disconnected and release the sink
func (s *Session) advanceLocked(ctx context.Context, gen uint64, finished *models.Track, allowLoop bool) (bool, error) {
	if allowLoop && s.loop && s.nowPlaying != nil {
		s.transitionLocked(TriggerAdvance)
		return true, nil
	}

	if s.takeNextLocked() {
		return true, nil
	}

	if s.autoplay && s.advisor != nil && finished != nil {
		seed := *finished
		s.mu.Unlock()
		suggestion, ok := s.advisor.Suggest(ctx, seed)
		s.mu.Lock()

		if s.gen != gen {
			return false, ErrSuperseded
		}
		if ok {
			if err := s.queue.Enqueue(suggestion); err != nil {
				s.logger.Debug().Err(err).Msg("dropping autoplay suggestion")
			}
			s.publishLocked(events.EventAutoplay, events.Payload{
				"seed":  seed,
				"track": suggestion,
			})
			if s.takeNextLocked() {
				return true, nil
			}
		}
	}

	s.drainLocked()
	return false, nil
}

func (s *Session) takeNextLocked() bool {
	next, ok := s.queue.Advance()
	if !ok {
		return false
	}
	s.retireLocked()
	s.nowPlaying = &next
	s.transitionLocked(TriggerAdvance)
	return true
}

func (s *Session) bindLocked(track models.Track, stream *resolver.Stream) {
	s.stream = stream
	s.resetFailuresLocked()
	s.transitionLocked(TriggerBound)
	s.touchLocked()
	s.logger.Info().Str("track", track.Label()).Str("backend", stream.Backend).Msg("now playing")
	s.publishLocked(events.EventNowPlaying, events.Payload{
		"track":   track,
		"backend": stream.Backend,
	})
}

// watch feeds sink events into the state machine until done is closed.
func (s *Session) watch(sink Sink, done <-chan struct{}) {
	defer s.wg.Done()
	ch := sink.Events()
	for {
		select {
		case <-done:
			return
		case ev, ok := <-ch:
			if !ok {
				s.handleSinkEvent(sink, SinkEvent{Type: SinkDisconnected})
				return
			}
			s.handleSinkEvent(sink, ev)
		}
	}
}

func (s *Session) handleSinkEvent(sink Sink, ev SinkEvent) {
	s.mu.Lock()
	if s.sink != sink {
		s.mu.Unlock()
		return
	}

	if ev.Type == SinkDisconnected {
		s.supersedeLocked()
		s.retireLocked()
		s.releaseLocked()
		s.transitionLocked(TriggerSinkLost)
		s.touchLocked()
		s.logger.Warn().Err(ev.Err).Msg("sink disconnected")
		s.mu.Unlock()
		return
	}

	if ev.Stream == nil || ev.Stream != s.stream {
		s.mu.Unlock()
		s.logger.Debug().Str("event", string(ev.Type)).Msg("ignoring event for stale stream")
		return
	}

	_ = s.stream.Close()
	s.stream = nil

	trigger := TriggerTrackEnded
	if ev.Type == SinkRuntimeError {
		trigger = TriggerRuntimeError
		if s.nowPlaying != nil {
			rerr := &RuntimeError{Track: *s.nowPlaying, Err: ev.Err}
			s.logger.Warn().Err(rerr).Msg("stream failed mid-playback")
			s.publishLocked(events.EventTrackFailed, failurePayload(rerr.Track, rerr))
		}
	}
	s.transitionLocked(trigger)
	s.gen++
	gen := s.gen
	s.touchLocked()

	selected, _ := s.advanceLocked(s.ctx, gen, s.nowPlaying, true)
	s.mu.Unlock()

	if !selected {
		return
	}
	if err := s.drive(s.ctx, gen); err != nil && !errors.Is(err, ErrSuperseded) && !errors.Is(err, context.Canceled) {
		s.logger.Warn().Err(err).Msg("automatic advance stopped")
	}
}

// supersedeLocked invalidates in-flight work and detaches the current stream.
func (s *Session) supersedeLocked() uint64 {
	s.gen++
	if s.cancelAttempt != nil {
		s.cancelAttempt()
		s.cancelAttempt = nil
	}
	if s.stream != nil {
		if s.sink != nil {
			_ = s.sink.Stop()
		}
		_ = s.stream.Close()
		s.stream = nil
	}
	return s.gen
}

func (s *Session) stopLocked() {
	s.supersedeLocked()
	s.releaseLocked()
	s.queue.Clear()
	s.nowPlaying = nil
}

// retireLocked moves nowPlaying into history.
func (s *Session) retireLocked() {
	if s.nowPlaying != nil {
		s.queue.PushHistory(*s.nowPlaying)
		s.nowPlaying = nil
	}
}

func (s *Session) releaseLocked() {
	if s.sink == nil {
		return
	}
	_ = s.sink.Close()
	close(s.watchDone)
	s.sink = nil
	s.watchDone = nil
}

func (s *Session) drainLocked() {
	s.retireLocked()
	s.releaseLocked()
	s.transitionLocked(TriggerDrained)
	s.logger.Info().Msg("queue drained, sink released")
}

func (s *Session) recordFailureLocked(track models.Track, err error) *RetryLimitError {
	// The window runs from the previous failure, not the first.
	now := s.now()
	if len(s.failures) > 0 && now.Sub(s.lastFailure) > s.cfg.FailureWindow {
		s.failures = nil
	}
	s.lastFailure = now
	s.failures = append(s.failures, TrackFailure{Track: track, Err: err})
	if len(s.failures) < s.cfg.MaxConsecutiveFailures {
		return nil
	}
	limitErr := &RetryLimitError{Failures: s.failures}
	s.failures = nil
	return limitErr
}

func (s *Session) resetFailuresLocked() {
	s.failures = nil
}

func (s *Session) checkLocked(trigger Trigger) error {
	if s.state == StateDestroyed {
		return ErrSessionDestroyed
	}
	_, err := next(s.state, trigger)
	return err
}

func (s *Session) transitionLocked(trigger Trigger) {
	to, err := next(s.state, trigger)
	if err != nil {
		s.logger.Error().Err(err).Msg("unexpected transition")
		return
	}
	from := s.state
	s.state = to
	if to == StateDestroyed {
		s.destroyed.Store(true)
	}
	if from == to {
		return
	}
	telemetry.SessionTransitionsTotal.WithLabelValues(string(from), string(to)).Inc()
	s.logger.Debug().Str("from", string(from)).Str("to", string(to)).Str("trigger", string(trigger)).Msg("state transition")
	s.publishLocked(events.EventSessionState, events.Payload{
		"from":    string(from),
		"to":      string(to),
		"trigger": string(trigger),
	})
}

func (s *Session) touchLocked() {
	s.lastActivity = s.now()
}

func (s *Session) publishLocked(eventType events.EventType, payload events.Payload) {
	payload["guild_id"] = s.guildID
	s.publisher.Publish(eventType, payload)
}

func failurePayload(track models.Track, err error) events.Payload {
	p := events.Payload{
		"track": track,
		"error": err.Error(),
	}
	var exhausted *resolver.ExhaustedError
	if errors.As(err, &exhausted) {
		p["attempts"] = exhausted.Attempts
	}
	return p
}

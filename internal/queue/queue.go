/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package queue holds the per-guild play order.
//
// A Queue is not safe for concurrent use; the owning session serializes access.
package queue

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/friendsincode/guildtune/internal/models"
)

const (
	DefaultHistoryCap = 50
	DefaultMaxSize    = 500
)

var (
	// ErrInvalidPosition is returned for 1-based positions outside the pending list.
	ErrInvalidPosition = errors.New("invalid queue position")
	// ErrQueueFull is returned when pending already holds the configured maximum.
	ErrQueueFull = errors.New("queue is full")
)

// Queue is the pending list plus bounded play history.
type Queue struct {
	pending    []models.Track
	history    []models.Track
	historyCap int
	maxSize    int
	rng        *rand.Rand
}

// Option configures a Queue.
type Option func(*Queue)

// WithHistoryCap bounds the history length.
func WithHistoryCap(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.historyCap = n
		}
	}
}

// WithMaxSize bounds the pending length.
func WithMaxSize(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.maxSize = n
		}
	}
}

// WithRand sets the shuffle source.
func WithRand(r *rand.Rand) Option {
	return func(q *Queue) {
		if r != nil {
			q.rng = r
		}
	}
}

// New creates an empty queue.
func New(opts ...Option) *Queue {
	q := &Queue{
		historyCap: DefaultHistoryCap,
		maxSize:    DefaultMaxSize,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue appends t to pending.
func (q *Queue) Enqueue(t models.Track) error {
	if len(q.pending) >= q.maxSize {
		return fmt.Errorf("%w: limit %d", ErrQueueFull, q.maxSize)
	}
	q.pending = append(q.pending, t)
	return nil
}

// EnqueueFront inserts t at the head of pending.
func (q *Queue) EnqueueFront(t models.Track) error {
	if len(q.pending) >= q.maxSize {
		return fmt.Errorf("%w: limit %d", ErrQueueFull, q.maxSize)
	}
	q.pending = append(q.pending, models.Track{})
	copy(q.pending[1:], q.pending)
	q.pending[0] = t
	return nil
}

// Advance pops the head of pending.
func (q *Queue) Advance() (models.Track, bool) {
	if len(q.pending) == 0 {
		return models.Track{}, false
	}
	t := q.pending[0]
	q.pending[0] = models.Track{}
	q.pending = q.pending[1:]
	return t, true
}

// Remove deletes and returns the track at the 1-based position.
func (q *Queue) Remove(position int) (models.Track, error) {
	if err := q.checkPosition(position); err != nil {
		return models.Track{}, err
	}
	idx := position - 1
	t := q.pending[idx]
	q.pending = append(q.pending[:idx], q.pending[idx+1:]...)
	return t, nil
}

// Move relocates the track at from to to, both 1-based.
func (q *Queue) Move(from, to int) (models.Track, error) {
	if err := q.checkPosition(from); err != nil {
		return models.Track{}, err
	}
	if err := q.checkPosition(to); err != nil {
		return models.Track{}, err
	}
	t := q.pending[from-1]
	if from == to {
		return t, nil
	}
	q.pending = append(q.pending[:from-1], q.pending[from:]...)
	idx := to - 1
	q.pending = append(q.pending, models.Track{})
	copy(q.pending[idx+1:], q.pending[idx:])
	q.pending[idx] = t
	return t, nil
}

// SkipTo drops the tracks ahead of position and returns them in order.
// The track at position becomes the head of pending.
func (q *Queue) SkipTo(position int) ([]models.Track, error) {
	if err := q.checkPosition(position); err != nil {
		return nil, err
	}
	skipped := append([]models.Track(nil), q.pending[:position-1]...)
	q.pending = append([]models.Track(nil), q.pending[position-1:]...)
	return skipped, nil
}

// Shuffle permutes pending uniformly (Fisher-Yates).
func (q *Queue) Shuffle() {
	if len(q.pending) < 2 {
		return
	}
	for i := len(q.pending) - 1; i > 0; i-- {
		j := q.rng.Intn(i + 1)
		q.pending[i], q.pending[j] = q.pending[j], q.pending[i]
	}
}

// Clear empties pending. History is kept.
func (q *Queue) Clear() {
	q.pending = nil
}

// Size returns the pending length.
func (q *Queue) Size() int {
	return len(q.pending)
}

// IsEmpty reports whether pending is empty.
func (q *Queue) IsEmpty() bool {
	return len(q.pending) == 0
}

// Pending returns a copy of the pending tracks.
func (q *Queue) Pending() []models.Track {
	return append([]models.Track(nil), q.pending...)
}

// PushHistory records a played track, evicting the oldest beyond the cap.
func (q *Queue) PushHistory(t models.Track) {
	q.history = append(q.history, t)
	if over := len(q.history) - q.historyCap; over > 0 {
		q.history = append([]models.Track(nil), q.history[over:]...)
	}
}

// PopHistory removes the most recently played track.
func (q *Queue) PopHistory() (models.Track, bool) {
	n := len(q.history)
	if n == 0 {
		return models.Track{}, false
	}
	t := q.history[n-1]
	q.history = q.history[:n-1]
	return t, true
}

// History returns a copy of the history, most recent last.
func (q *Queue) History() []models.Track {
	return append([]models.Track(nil), q.history...)
}

func (q *Queue) checkPosition(position int) error {
	if position < 1 || position > len(q.pending) {
		return fmt.Errorf("%w: %d not in [1, %d]", ErrInvalidPosition, position, len(q.pending))
	}
	return nil
}

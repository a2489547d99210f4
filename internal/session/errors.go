/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package session

import (
	"errors"
	"fmt"
	"strings"

	"github.com/friendsincode/guildtune/internal/models"
	"github.com/friendsincode/guildtune/internal/transcode"
)

var (
	// ErrInvalidState indicates the operation is not valid in the current state.
	ErrInvalidState = errors.New("invalid state for operation")

	ErrSeekUnsupported  = errors.New("seeking is not supported")
	ErrNoHistory        = errors.New("no previous track")
	ErrNothingPlaying   = errors.New("nothing is playing")
	ErrInvalidVolume    = errors.New("volume must be between 0 and 100")
	ErrInvalidRate      = errors.New("playback rate must be between 0.5 and 2.0")
	ErrSessionDestroyed = errors.New("session destroyed")

	// ErrSuperseded is returned to an operation whose work was replaced by a newer
	// Play, Skip or Stop before it could take effect.
	ErrSuperseded = errors.New("superseded by a newer operation")

	ErrUnknownFilter = transcode.ErrUnknownFilter
)

// ConnectionError reports a sink that failed to connect or bind.
type ConnectionError struct {
	GuildID string
	Err     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect sink for guild %s: %v", e.GuildID, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// RuntimeError is a mid-stream failure reported by the sink.
type RuntimeError struct {
	Track models.Track
	Err   error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("playback of %q failed: %v", e.Track.Label(), e.Err)
}

func (e *RuntimeError) Unwrap() error { return e.Err }

// TrackFailure is one failed resolution counted toward the retry limit.
type TrackFailure struct {
	Track models.Track
	Err   error
}

// RetryLimitError is returned when consecutive resolution failures stop automatic advancing.
type RetryLimitError struct {
	Failures []TrackFailure
}

func (e *RetryLimitError) Error() string {
	parts := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		parts[i] = fmt.Sprintf("%s: %v", f.Track.Label(), f.Err)
	}
	return fmt.Sprintf("%d consecutive tracks failed: %s", len(e.Failures), strings.Join(parts, "; "))
}

func (e *RetryLimitError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f.Err
	}
	return errs
}

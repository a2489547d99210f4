/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package session

import (
	"context"

	"github.com/friendsincode/guildtune/internal/models"
	"github.com/friendsincode/guildtune/internal/resolver"
)

// SinkEventType enumerates what an audio sink reports back.
type SinkEventType string

const (
	SinkTrackEnded   SinkEventType = "track_ended"
	SinkRuntimeError SinkEventType = "runtime_error"
	SinkDisconnected SinkEventType = "disconnected"
)

// SinkEvent is emitted by a sink. Stream identifies the bound stream the event concerns;
// events naming a stream that is no longer bound are ignored.
type SinkEvent struct {
	Type   SinkEventType
	Stream *resolver.Stream
	Err    error
}

// Sink is the audio output a session drives. The session owns bound streams and closes
// them; Stop only detaches the current one.
type Sink interface {
	Connect(ctx context.Context) error
	Bind(stream *resolver.Stream) error
	Pause() error
	Resume() error
	Stop() error
	Close() error
	Events() <-chan SinkEvent
}

// Resolver opens streams for tracks.
type Resolver interface {
	Resolve(ctx context.Context, req resolver.Request) (*resolver.Stream, error)
}

// Advisor suggests a continuation track.
type Advisor interface {
	Suggest(ctx context.Context, seed models.Track) (models.Track, bool)
}

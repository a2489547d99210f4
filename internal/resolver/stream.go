/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package resolver

import (
	"context"
	"io"
	"sync"

	"github.com/friendsincode/guildtune/internal/models"
)

// Request is what a backend needs to open a stream.
type Request struct {
	Track         models.Track
	URI           string // native URI, after any translation
	Filter        string
	Rate          float64
	VolumePercent int
}

// Backend turns a request into an audio stream.
// Implementations must honour ctx and release anything they opened when it ends.
type Backend interface {
	Name() string
	Resolve(ctx context.Context, req Request) (*Stream, error)
}

// Stream is a resolved PCM byte stream.
type Stream struct {
	Track    models.Track
	Backend  string
	URI      string
	Attempts []models.BackendAttempt

	rc   io.ReadCloser
	once sync.Once
	err  error
}

// NewStream wraps rc as the output of backend for uri.
func NewStream(track models.Track, backend, uri string, rc io.ReadCloser) *Stream {
	return &Stream{Track: track, Backend: backend, URI: uri, rc: rc}
}

func (s *Stream) Read(p []byte) (int, error) {
	return s.rc.Read(p)
}

// Close releases the underlying reader once.
func (s *Stream) Close() error {
	s.once.Do(func() {
		if s.rc != nil {
			s.err = s.rc.Close()
		}
	})
	return s.err
}

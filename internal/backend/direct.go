/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package backend

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/friendsincode/guildtune/internal/models"
	"github.com/friendsincode/guildtune/internal/resolver"
	"github.com/friendsincode/guildtune/internal/transcode"
)

const NameDirect = "direct"

// Direct hands the URI to ffmpeg unchanged. It covers radio streams and plain media links.
type Direct struct {
	opts   Options
	logger zerolog.Logger
}

func NewDirect(opts Options, logger zerolog.Logger) *Direct {
	return &Direct{opts: opts, logger: logger.With().Str("backend", NameDirect).Logger()}
}

func (b *Direct) Name() string { return NameDirect }

func (b *Direct) Resolve(ctx context.Context, req resolver.Request) (*resolver.Stream, error) {
	if !models.IsURL(req.URI) {
		return nil, fmt.Errorf("not a url: %q", req.URI)
	}
	proc, err := transcode.Start(req.URI, nil, b.opts.transcode(req))
	if err != nil {
		return nil, err
	}
	if err := proc.Prime(ctx); err != nil {
		return nil, err
	}
	return resolver.NewStream(req.Track, b.Name(), req.URI, proc), nil
}

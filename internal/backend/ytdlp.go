/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/lrstanley/go-ytdlp"
	"github.com/rs/zerolog"

	"github.com/friendsincode/guildtune/internal/resolver"
	"github.com/friendsincode/guildtune/internal/transcode"
)

const (
	NameYTDLPLink = "ytdlp-link"
	NameYTDLPPipe = "ytdlp-pipe"

	audioFormat = "bestaudio[ext=webm]/bestaudio[ext=m4a]/bestaudio/best"
)

func newYTDLP(proxy string) *ytdlp.Command {
	cmd := ytdlp.New().
		Quiet().
		NoWarnings().
		IgnoreConfig().
		NoPlaylist()
	if proxy != "" {
		cmd.Proxy(proxy)
	}
	return cmd
}

// YTDLPLink asks yt-dlp for the direct media URL and lets ffmpeg fetch it.
type YTDLPLink struct {
	opts   Options
	logger zerolog.Logger
}

func NewYTDLPLink(opts Options, logger zerolog.Logger) *YTDLPLink {
	return &YTDLPLink{opts: opts, logger: logger.With().Str("backend", NameYTDLPLink).Logger()}
}

func (b *YTDLPLink) Name() string { return NameYTDLPLink }

func (b *YTDLPLink) Resolve(ctx context.Context, req resolver.Request) (*resolver.Stream, error) {
	res, err := newYTDLP(b.opts.Proxy).
		Format(audioFormat).
		Print("%(url)s").
		Run(ctx, req.URI)
	if err != nil {
		if res != nil && res.Stderr != "" {
			return nil, fmt.Errorf("yt-dlp: %w: %s", err, lastLine(res.Stderr))
		}
		return nil, fmt.Errorf("yt-dlp: %w", err)
	}

	mediaURL := firstLine(res.Stdout)
	if mediaURL == "" {
		return nil, errors.New("yt-dlp returned no media url")
	}
	b.logger.Debug().Str("uri", req.URI).Msg("direct media url obtained")

	proc, err := transcode.Start(mediaURL, nil, b.opts.transcode(req))
	if err != nil {
		return nil, err
	}
	if err := proc.Prime(ctx); err != nil {
		return nil, err
	}
	return resolver.NewStream(req.Track, b.Name(), req.URI, proc), nil
}

// YTDLPPipe streams yt-dlp's download output straight into ffmpeg.
type YTDLPPipe struct {
	opts   Options
	logger zerolog.Logger
}

func NewYTDLPPipe(opts Options, logger zerolog.Logger) *YTDLPPipe {
	return &YTDLPPipe{opts: opts, logger: logger.With().Str("backend", NameYTDLPPipe).Logger()}
}

func (b *YTDLPPipe) Name() string { return NameYTDLPPipe }

func (b *YTDLPPipe) Resolve(ctx context.Context, req resolver.Request) (*resolver.Stream, error) {
	// The download outlives the resolution deadline, so it gets its own lifetime.
	streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	dl := newYTDLP(b.opts.Proxy).
		Format(audioFormat).
		Output("-").
		NoSimulate().
		NoPart().
		BuildCommand(streamCtx, req.URI)

	pr, pw := io.Pipe()
	dl.Stdout = pw
	stderr := &headBuffer{max: 2048}
	dl.Stderr = stderr

	if err := dl.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("start yt-dlp: %w", err)
	}
	go func() {
		err := dl.Wait()
		_ = pw.CloseWithError(err)
	}()

	proc, err := transcode.Start(transcode.PipeInput, pr, b.opts.transcode(req))
	if err != nil {
		cancel()
		_ = pr.Close()
		return nil, err
	}
	proc.OnClose(func() {
		cancel()
		_ = pr.Close()
	})

	if err := proc.Prime(ctx); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w (yt-dlp: %s)", err, lastLine(msg))
		}
		return nil, err
	}
	return resolver.NewStream(req.Track, b.Name(), req.URI, proc), nil
}

func firstLine(s string) string {
	for _, line := range strings.Split(strings.TrimSpace(s), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

// headBuffer keeps the first max bytes written to it.
type headBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func (h *headBuffer) Write(p []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if room := h.max - len(h.buf); room > 0 {
		if len(p) < room {
			room = len(p)
		}
		h.buf = append(h.buf, p[:room]...)
	}
	return len(p), nil
}

func (h *headBuffer) String() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return string(h.buf)
}

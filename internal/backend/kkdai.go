/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package backend

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/kkdai/youtube/v2"
	"github.com/rs/zerolog"
	"golang.org/x/net/proxy"

	"github.com/friendsincode/guildtune/internal/resolver"
	"github.com/friendsincode/guildtune/internal/transcode"
)

const NameKKDai = "kkdai"

// KKDai extracts audio with the native Go YouTube client.
type KKDai struct {
	opts   Options
	client *youtube.Client
	logger zerolog.Logger
}

func NewKKDai(opts Options, logger zerolog.Logger) (*KKDai, error) {
	httpClient, err := newHTTPClient(opts.Proxy)
	if err != nil {
		return nil, err
	}
	return &KKDai{
		opts:   opts,
		client: &youtube.Client{HTTPClient: httpClient},
		logger: logger.With().Str("backend", NameKKDai).Logger(),
	}, nil
}

func (b *KKDai) Name() string { return NameKKDai }

func (b *KKDai) Resolve(ctx context.Context, req resolver.Request) (*resolver.Stream, error) {
	video, err := b.client.GetVideoContext(ctx, req.URI)
	if err != nil {
		return nil, fmt.Errorf("fetch video: %w", err)
	}

	format, err := bestAudio(video.Formats)
	if err != nil {
		return nil, err
	}
	b.logger.Debug().
		Str("video_id", video.ID).
		Int("itag", format.ItagNo).
		Int("bitrate", format.Bitrate).
		Msg("selected audio format")

	// The body is read long after the resolution deadline.
	streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	body, _, err := b.client.GetStreamContext(streamCtx, video, format)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("open stream: %w", err)
	}

	proc, err := transcode.Start(transcode.PipeInput, body, b.opts.transcode(req))
	if err != nil {
		cancel()
		_ = body.Close()
		return nil, err
	}
	proc.OnClose(func() {
		cancel()
		_ = body.Close()
	})

	if err := proc.Prime(ctx); err != nil {
		return nil, err
	}
	return resolver.NewStream(req.Track, b.Name(), req.URI, proc), nil
}

// bestAudio picks the highest bitrate audio-only format.
func bestAudio(formats youtube.FormatList) (*youtube.Format, error) {
	var best *youtube.Format
	for i := range formats {
		f := &formats[i]
		if !strings.HasPrefix(f.MimeType, "audio/") || f.AudioChannels == 0 {
			continue
		}
		if best == nil || f.Bitrate > best.Bitrate {
			best = f
		}
	}
	if best == nil {
		return nil, errors.New("no audio-only format available")
	}
	return best, nil
}

// newHTTPClient builds a client that optionally routes through an HTTP or SOCKS proxy.
func newHTTPClient(proxyURL string) (*http.Client, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if proxyURL == "" {
		return &http.Client{Transport: transport}, nil
	}

	u, err := url.Parse(proxyURL)
	if err != nil {
		return nil, fmt.Errorf("parse proxy url: %w", err)
	}

	switch u.Scheme {
	case "http", "https":
		transport.Proxy = http.ProxyURL(u)
	default:
		dialer, err := proxy.FromURL(u, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("proxy dialer: %w", err)
		}
		transport.Proxy = nil
		if cd, ok := dialer.(proxy.ContextDialer); ok {
			transport.DialContext = cd.DialContext
		} else {
			transport.DialContext = func(_ context.Context, network, addr string) (net.Conn, error) {
				return dialer.Dial(network, addr)
			}
		}
	}
	return &http.Client{Transport: transport}, nil
}

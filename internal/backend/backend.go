/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package backend provides the extraction adapters used by the resolver cascade.
//
// Every adapter hands back 48 kHz stereo s16le PCM produced by ffmpeg, primed so that a
// successful Resolve means audio is actually flowing.
package backend

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/friendsincode/guildtune/internal/resolver"
	"github.com/friendsincode/guildtune/internal/transcode"
)

// Options are shared by all adapters.
type Options struct {
	FFmpegBin string
	Proxy     string // http(s):// or socks5:// proxy for extraction traffic
}

func (o Options) transcode(req resolver.Request) transcode.Options {
	return transcode.Options{
		Bin:           o.FFmpegBin,
		Filter:        req.Filter,
		Rate:          req.Rate,
		VolumePercent: req.VolumePercent,
	}
}

// Spec configures one cascade step.
type Spec struct {
	Name     string        `yaml:"name"`
	Timeout  time.Duration `yaml:"timeout"`
	Disabled bool          `yaml:"disabled"`
}

type chainFile struct {
	Backends []Spec `yaml:"backends"`
}

// DefaultChain is the cascade used when no chain file is configured.
func DefaultChain() []Spec {
	return []Spec{
		{Name: NameYTDLPLink, Timeout: 15 * time.Second},
		{Name: NameKKDai, Timeout: 8 * time.Second},
		{Name: NameYTDLPPipe, Timeout: 15 * time.Second},
		{Name: NameDirect, Timeout: 8 * time.Second},
	}
}

// LoadChain reads an ordered backend list from a YAML file:
//
//	backends:
//	  - name: ytdlp-link
//	    timeout: 15s
//	  - name: kkdai
//	    timeout: 8s
//	    disabled: true
//
// An empty path returns DefaultChain.
func LoadChain(path string) ([]Spec, error) {
	if path == "" {
		return DefaultChain(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read backend chain: %w", err)
	}
	return ParseChain(data)
}

// ParseChain decodes a YAML backend list.
func ParseChain(data []byte) ([]Spec, error) {
	var f chainFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse backend chain: %w", err)
	}
	if len(f.Backends) == 0 {
		return nil, errors.New("backend chain is empty")
	}
	return f.Backends, nil
}

// Build instantiates the enabled specs in order.
func Build(specs []Spec, opts Options, logger zerolog.Logger) ([]resolver.Entry, error) {
	entries := make([]resolver.Entry, 0, len(specs))
	for _, spec := range specs {
		if spec.Disabled {
			continue
		}
		var b resolver.Backend
		switch spec.Name {
		case NameYTDLPLink:
			b = NewYTDLPLink(opts, logger)
		case NameYTDLPPipe:
			b = NewYTDLPPipe(opts, logger)
		case NameKKDai:
			kk, err := NewKKDai(opts, logger)
			if err != nil {
				return nil, err
			}
			b = kk
		case NameDirect:
			b = NewDirect(opts, logger)
		default:
			return nil, fmt.Errorf("unknown backend %q", spec.Name)
		}
		entries = append(entries, resolver.Entry{Backend: b, Timeout: spec.Timeout})
	}
	if len(entries) == 0 {
		return nil, errors.New("no backends enabled")
	}
	return entries, nil
}

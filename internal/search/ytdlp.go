/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package search provides the metadata lookup used for cross-service translation and autoplay.
package search

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/lrstanley/go-ytdlp"
	"github.com/rs/zerolog"

	"github.com/friendsincode/guildtune/internal/models"
)

// Searcher returns up to limit native catalog candidates for query.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]models.Candidate, error)
}

const printTemplate = "%(url)s\t%(title)s\t%(uploader)s\t%(duration)s"

// YTDLP searches YouTube through yt-dlp's ytsearch extractor.
type YTDLP struct {
	proxy  string
	logger zerolog.Logger
}

func NewYTDLP(proxy string, logger zerolog.Logger) *YTDLP {
	return &YTDLP{proxy: proxy, logger: logger.With().Str("component", "search").Logger()}
}

func (s *YTDLP) Search(ctx context.Context, query string, limit int) ([]models.Candidate, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if limit < 1 {
		limit = 1
	}

	cmd := ytdlp.New().
		Quiet().
		NoWarnings().
		IgnoreConfig().
		FlatPlaylist().
		Print(printTemplate).
		PlaylistItems(fmt.Sprintf("1-%d", limit))
	if s.proxy != "" {
		cmd.Proxy(s.proxy)
	}

	res, err := cmd.Run(ctx, fmt.Sprintf("ytsearch%d:%s", limit, query))
	if err != nil {
		return nil, fmt.Errorf("yt-dlp search: %w", err)
	}

	candidates := parseSearchOutput(res.Stdout)
	s.logger.Debug().Str("query", query).Int("results", len(candidates)).Msg("search complete")
	return candidates, nil
}

// parseSearchOutput reads one tab separated candidate per line.
func parseSearchOutput(out string) []models.Candidate {
	var candidates []models.Candidate
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		parts := strings.Split(strings.TrimRight(line, "\r"), "\t")
		if len(parts) < 4 || !models.IsURL(parts[0]) {
			continue
		}
		c := models.Candidate{
			NativeURI: parts[0],
			Title:     na(parts[1]),
			Author:    na(parts[2]),
		}
		if secs, err := strconv.ParseFloat(parts[3], 64); err == nil && secs > 0 {
			c.DurationMillis = int64(secs * 1000)
		}
		candidates = append(candidates, c)
	}
	return candidates
}

func na(s string) string {
	if s == "NA" {
		return ""
	}
	return s
}

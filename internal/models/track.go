/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Origin describes how a track reference was obtained.
type Origin string

const (
	OriginDirectURL    Origin = "direct-url"
	OriginSearchResult Origin = "search-result"
	OriginCrossService Origin = "cross-service"
)

// nativeHosts are catalog hosts the extraction backends understand without translation.
var nativeHosts = []string{
	"youtube.com",
	"youtu.be",
	"music.youtube.com",
}

// Track is an immutable playable item.
type Track struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	Author         string `json:"author"`
	SourceURI      string `json:"source_uri"`
	DurationMillis int64  `json:"duration_ms"`
	ThumbnailURI   string `json:"thumbnail_uri,omitempty"`
	RequestedBy    string `json:"requested_by"`
	Origin         Origin `json:"origin"`
}

// NewTrack returns t with an ID assigned when it has none.
func NewTrack(t Track) Track {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Origin == "" {
		t.Origin = ClassifyOrigin(t.SourceURI)
	}
	return t
}

// Duration returns the track length, zero when unknown.
func (t Track) Duration() time.Duration {
	return time.Duration(t.DurationMillis) * time.Millisecond
}

// Label is a short human readable identifier used in logs.
func (t Track) Label() string {
	if t.Author == "" {
		return t.Title
	}
	return t.Author + " - " + t.Title
}

// SearchQuery builds the lookup query used when the source URI cannot be played directly.
func (t Track) SearchQuery() string {
	q := strings.TrimSpace(t.Title + " " + t.Author)
	if q == "" {
		return t.SourceURI
	}
	return q
}

// ClassifyOrigin inspects a raw user supplied reference.
func ClassifyOrigin(ref string) Origin {
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return OriginSearchResult
	}
	if IsNativeURI(ref) {
		return OriginDirectURL
	}
	return OriginCrossService
}

// IsNativeURI reports whether ref points at a host the backends can extract directly.
func IsNativeURI(ref string) bool {
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil || u.Host == "" {
		return false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	host = strings.TrimPrefix(host, "m.")
	for _, h := range nativeHosts {
		if host == h {
			return true
		}
	}
	return false
}

// IsURL reports whether ref is an absolute http(s) URL.
func IsURL(ref string) bool {
	u, err := url.Parse(strings.TrimSpace(ref))
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Candidate is a search provider result.
type Candidate struct {
	Title          string `json:"title"`
	Author         string `json:"author"`
	NativeURI      string `json:"native_uri"`
	DurationMillis int64  `json:"duration_ms"`
	ThumbnailURI   string `json:"thumbnail_uri,omitempty"`
}

// ToTrack converts a candidate into a queueable track.
func (c Candidate) ToTrack(requestedBy string) Track {
	return NewTrack(Track{
		Title:          c.Title,
		Author:         c.Author,
		SourceURI:      c.NativeURI,
		DurationMillis: c.DurationMillis,
		ThumbnailURI:   c.ThumbnailURI,
		RequestedBy:    requestedBy,
		Origin:         OriginSearchResult,
	})
}

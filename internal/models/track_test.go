package models

import "testing"

func TestClassifyOrigin(t *testing.T) {
	tests := []struct {
		ref  string
		want Origin
	}{
		{"https://www.youtube.com/watch?v=abc", OriginDirectURL},
		{"https://youtu.be/abc", OriginDirectURL},
		{"https://m.youtube.com/watch?v=abc", OriginDirectURL},
		{"https://music.youtube.com/watch?v=abc", OriginDirectURL},
		{"https://open.spotify.com/track/xyz", OriginCrossService},
		{"https://soundcloud.com/a/b", OriginCrossService},
		{"never gonna give you up", OriginSearchResult},
		{"ftp://youtube.com/x", OriginSearchResult},
	}
	for _, tt := range tests {
		if got := ClassifyOrigin(tt.ref); got != tt.want {
			t.Errorf("ClassifyOrigin(%q) = %s, want %s", tt.ref, got, tt.want)
		}
	}
}

func TestNewTrackAssignsIdentity(t *testing.T) {
	a := NewTrack(Track{Title: "x", SourceURI: "https://youtu.be/abc"})
	b := NewTrack(Track{Title: "x", SourceURI: "https://youtu.be/abc"})
	if a.ID == "" || a.ID == b.ID {
		t.Fatalf("expected distinct ids, got %q and %q", a.ID, b.ID)
	}
	if a.Origin != OriginDirectURL {
		t.Fatalf("origin = %s", a.Origin)
	}

	kept := NewTrack(Track{ID: "fixed", Origin: OriginSearchResult})
	if kept.ID != "fixed" || kept.Origin != OriginSearchResult {
		t.Fatalf("existing identity overwritten: %+v", kept)
	}
}

func TestSearchQueryAndLabel(t *testing.T) {
	tr := Track{Title: "Song", Author: "Band", SourceURI: "https://open.spotify.com/track/1"}
	if tr.SearchQuery() != "Song Band" || tr.Label() != "Band - Song" {
		t.Fatalf("query %q label %q", tr.SearchQuery(), tr.Label())
	}
	bare := Track{SourceURI: "https://example.com/x"}
	if bare.SearchQuery() != "https://example.com/x" {
		t.Fatalf("empty metadata should fall back to the uri, got %q", bare.SearchQuery())
	}
}

func TestGuildPreferenceFallsBack(t *testing.T) {
	defaults := Preferences{DefaultVolume: 50, Filter: "normal"}
	got := GuildPreference{DefaultVolume: 0, Autoplay: true}.Preferences(defaults)
	if got.DefaultVolume != 50 || !got.Autoplay || got.Filter != "normal" {
		t.Fatalf("unexpected %+v", got)
	}
	got = GuildPreference{DefaultVolume: 80, Filter: "bassboost"}.Preferences(defaults)
	if got.DefaultVolume != 80 || got.Filter != "bassboost" {
		t.Fatalf("unexpected %+v", got)
	}
}

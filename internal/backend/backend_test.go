package backend

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kkdai/youtube/v2"
	"github.com/rs/zerolog"
)

func TestParseChain(t *testing.T) {
	data := []byte(`
backends:
  - name: kkdai
    timeout: 5s
  - name: ytdlp-link
    timeout: 12s
    disabled: true
  - name: direct
    timeout: 3s
`)
	specs, err := ParseChain(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(specs) != 3 {
		t.Fatalf("expected 3 specs, got %d", len(specs))
	}
	if specs[0].Name != NameKKDai || specs[0].Timeout != 5*time.Second {
		t.Errorf("unexpected first spec: %+v", specs[0])
	}
	if !specs[1].Disabled {
		t.Error("expected ytdlp-link disabled")
	}

	entries, err := Build(specs, Options{}, zerolog.Nop())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 enabled entries, got %d", len(entries))
	}
	if entries[0].Backend.Name() != NameKKDai || entries[1].Backend.Name() != NameDirect {
		t.Errorf("order not preserved: %s, %s", entries[0].Backend.Name(), entries[1].Backend.Name())
	}
}

func TestParseChainRejectsEmpty(t *testing.T) {
	if _, err := ParseChain([]byte("backends: []")); err == nil {
		t.Fatal("expected error for empty chain")
	}
}

func TestBuildRejectsUnknownBackend(t *testing.T) {
	if _, err := Build([]Spec{{Name: "soundcloud"}}, Options{}, zerolog.Nop()); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestLoadChainDefaultsAndFile(t *testing.T) {
	specs, err := LoadChain("")
	if err != nil {
		t.Fatalf("default chain: %v", err)
	}
	if len(specs) != len(DefaultChain()) || specs[0].Name != NameYTDLPLink {
		t.Fatalf("unexpected default chain: %+v", specs)
	}

	path := filepath.Join(t.TempDir(), "backends.yaml")
	if err := os.WriteFile(path, []byte("backends:\n  - name: direct\n    timeout: 2s\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	specs, err = LoadChain(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(specs) != 1 || specs[0].Name != NameDirect {
		t.Fatalf("unexpected chain: %+v", specs)
	}
}

func TestBestAudio(t *testing.T) {
	formats := youtube.FormatList{
		{ItagNo: 18, MimeType: `video/mp4; codecs="avc1.42001E, mp4a.40.2"`, Bitrate: 500000, AudioChannels: 2},
		{ItagNo: 140, MimeType: `audio/mp4; codecs="mp4a.40.2"`, Bitrate: 130000, AudioChannels: 2},
		{ItagNo: 251, MimeType: `audio/webm; codecs="opus"`, Bitrate: 160000, AudioChannels: 2},
	}
	best, err := bestAudio(formats)
	if err != nil {
		t.Fatalf("best audio: %v", err)
	}
	if best.ItagNo != 251 {
		t.Fatalf("expected itag 251, got %d", best.ItagNo)
	}

	if _, err := bestAudio(formats[:1]); err == nil {
		t.Fatal("expected error without audio-only formats")
	}
}

func TestNewHTTPClientProxy(t *testing.T) {
	tests := []struct {
		name    string
		proxy   string
		wantErr bool
	}{
		{"none", "", false},
		{"http", "http://127.0.0.1:8080", false},
		{"socks5", "socks5://127.0.0.1:1080", false},
		{"unsupported", "gopher://127.0.0.1:70", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := newHTTPClient(tt.proxy)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			tr, ok := c.Transport.(*http.Transport)
			if !ok {
				t.Fatalf("unexpected transport %T", c.Transport)
			}
			if tt.name == "socks5" && tr.DialContext == nil {
				t.Error("socks proxy must install a dialer")
			}
		})
	}
}

func TestLineHelpers(t *testing.T) {
	if got := firstLine("\n  https://a/b \nsecond\n"); got != "https://a/b" {
		t.Errorf("firstLine = %q", got)
	}
	if got := lastLine("one\ntwo\nERROR: blocked\n"); got != "ERROR: blocked" {
		t.Errorf("lastLine = %q", got)
	}

	h := &headBuffer{max: 4}
	_, _ = h.Write([]byte("abcdef"))
	_, _ = h.Write([]byte("gh"))
	if h.String() != "abcd" {
		t.Errorf("headBuffer = %q", h.String())
	}
}

package transcode

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestFilterChain(t *testing.T) {
	tests := []struct {
		name    string
		filter  string
		rate    float64
		volume  int
		want    string
		wantErr bool
	}{
		{"defaults", "", 1.0, 100, "", false},
		{"normal", FilterNormal, 1.0, 100, "", false},
		{"volume only", "", 1.0, 50, "volume=0.5", false},
		{"rate only", "", 1.5, 100, "atempo=1.5", false},
		{"bassboost", "bassboost", 1.0, 100, "bass=g=20,dynaudnorm=f=200", false},
		{"combined", "8d", 0.75, 80, "apulsator=hz=0.08,atempo=0.75,volume=0.8", false},
		{"case insensitive", "NightCore", 1.0, 100, "asetrate=48000*1.25,aresample=48000,atempo=1.06", false},
		{"unknown", "robot", 1.0, 100, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FilterChain(tt.filter, tt.rate, tt.volume)
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownFilter) {
					t.Fatalf("expected ErrUnknownFilter, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("chain = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestArgsForPipeInput(t *testing.T) {
	args, err := Args(PipeInput, Options{Filter: "soft", Rate: 1, VolumePercent: 100})
	if err != nil {
		t.Fatalf("args: %v", err)
	}
	joined := strings.Join(args, " ")
	if strings.Contains(joined, "-nostdin") {
		t.Errorf("pipe input must read stdin: %s", joined)
	}
	if strings.Contains(joined, "-reconnect") {
		t.Errorf("pipe input must not carry reconnect flags: %s", joined)
	}
	want := []string{"-f", "s16le", "-ar", "48000", "-ac", "2", "pipe:1"}
	if tail := args[len(args)-len(want):]; !reflect.DeepEqual(tail, want) {
		t.Errorf("output args = %v, want %v", tail, want)
	}
	if !strings.Contains(joined, "-af equalizer=f=1000:width_type=h:width=200:g=-5") {
		t.Errorf("missing filter chain: %s", joined)
	}
}

func TestArgsForURLInput(t *testing.T) {
	args, err := Args("https://example.com/stream.mp3", Options{Rate: 1, VolumePercent: 100})
	if err != nil {
		t.Fatalf("args: %v", err)
	}
	joined := strings.Join(args, " ")
	for _, want := range []string{"-nostdin", "-reconnect 1", "-i https://example.com/stream.mp3"} {
		if !strings.Contains(joined, want) {
			t.Errorf("expected %q in %s", want, joined)
		}
	}
	if strings.Contains(joined, "-af") {
		t.Errorf("unexpected filter flag: %s", joined)
	}
}

func TestValidFilter(t *testing.T) {
	for _, name := range FilterNames() {
		if !ValidFilter(name) {
			t.Errorf("%s should be valid", name)
		}
	}
	if !ValidFilter("") {
		t.Error("empty filter should be valid")
	}
	if ValidFilter("chipmunk") {
		t.Error("chipmunk should be invalid")
	}
}

func TestTailBufferKeepsSuffix(t *testing.T) {
	b := newTailBuffer(5)
	_, _ = b.Write([]byte("hello "))
	_, _ = b.Write([]byte("world"))
	if got := b.String(); got != "world" {
		t.Fatalf("tail = %q", got)
	}
}

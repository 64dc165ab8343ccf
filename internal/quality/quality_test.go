package quality

import (
	"reflect"
	"strings"
	"testing"
)

func videoFormats(heights ...int) []Format {
	var out []Format
	for _, h := range heights {
		out = append(out, Format{ID: Label(h), Ext: "mp4", Height: h, VCodec: "avc1", ACodec: "none"})
	}
	return out
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"default", Default},
		{"highest", Highest},
		{"HIGHEST", Highest},
		{"720p", "720p"},
		{" 1080p ", "1080p"},
		{"2160p", "2160p"},
		{"72p", Default},
		{"720", Default},
		{"12345p", Default},
		{"4k", Default},
		{"", Default},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := Normalize(tt.input); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name      string
		requested string
		formats   []Format
		want      string
	}{
		{"exact match", "720p", videoFormats(1080, 720, 480), "720p"},
		{"nearest below in window", "720p", videoFormats(1080, 480), "480p"},
		{"below outside window", "1080p", videoFormats(1440, 360), "360p"},
		{"nothing below uses best", "240p", videoFormats(1080, 720), "1080p"},
		{"default picks highest", Default, videoFormats(480, 1080, 720), "1080p"},
		{"highest picks highest", Highest, videoFormats(360, 720), "720p"},
		{"no video formats", "720p", []Format{{ID: "140", Ext: "m4a", VCodec: "none", ACodec: "mp4a"}}, Highest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel := Resolve(tt.requested, tt.formats)
			if sel.Resolved != tt.want {
				t.Errorf("Resolve(%q).Resolved = %q, want %q", tt.requested, sel.Resolved, tt.want)
			}
			if sel.Expression == "" {
				t.Error("empty expression")
			}
		})
	}
}

func TestResolveNeverUpgradesWhenLowerExists(t *testing.T) {
	sets := [][]int{
		{1080, 720, 480, 360, 240},
		{2160, 1440, 240},
		{1080, 144},
		{720, 360},
	}
	for _, heights := range sets {
		for _, req := range Ladder {
			formats := videoFormats(heights...)
			hasLower := false
			for _, h := range heights {
				if h <= req {
					hasLower = true
				}
			}
			sel := Resolve(Label(req), formats)
			if hasLower && sel.Height > req {
				t.Errorf("heights %v request %dp resolved to %dp", heights, req, sel.Height)
			}
		}
	}
}

func TestExpression(t *testing.T) {
	expr := Expression("720p")
	for _, want := range []string{
		"bestvideo[height=720]+bestaudio",
		"bestvideo[height<=720][height>=480]+bestaudio",
		"best[height<=720]",
	} {
		if !strings.Contains(expr, want) {
			t.Errorf("expression %q missing %q", expr, want)
		}
	}
	if !strings.HasSuffix(expr, "/best/bestvideo+bestaudio") {
		t.Errorf("expression %q should end with the unconditional fallbacks", expr)
	}

	if got := Expression("240p"); !strings.Contains(got, "[height>=0]") {
		t.Errorf("window must clamp at zero, got %q", got)
	}
	if got := Expression("bogus"); got != "bestvideo+bestaudio/best" {
		t.Errorf("Expression(bogus) = %q", got)
	}
}

func TestAvailable(t *testing.T) {
	tests := []struct {
		name    string
		formats []Format
		want    []string
	}{
		{"canonical subset", videoFormats(1080, 720, 480), []string{"1080p", "720p", "480p"}},
		{"ordered by ladder", videoFormats(240, 1080), []string{"1080p", "240p"}},
		{"non canonical dropped", videoFormats(1440, 144, 720), []string{"720p"}},
		{"nothing canonical", videoFormats(2160, 144), []string{Highest}},
		{"empty", nil, []string{Highest}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Available(tt.formats); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Available() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFallbackHeight(t *testing.T) {
	formats := []Format{
		{Ext: "mp4", Height: 360, VCodec: "avc1", ACodec: "mp4a"},
		{Ext: "webm", Height: 720, VCodec: "vp9", ACodec: "opus"},
		{Ext: "mp4", Height: 1080, VCodec: "avc1", ACodec: "none"},
	}
	if got := FallbackHeight(formats); got != 360 {
		t.Errorf("FallbackHeight() = %d, want 360", got)
	}
	if got := FallbackHeight(videoFormats(720)); got != 0 {
		t.Errorf("FallbackHeight() without combined streams = %d, want 0", got)
	}
}

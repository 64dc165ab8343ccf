package ui

import (
	"errors"
	"strings"
	"testing"
	"time"

	"mediagrab/internal/media"
)

func TestNumbered(t *testing.T) {
	got := numbered([]string{"a", "b"})
	if got != "0\ta\n1\tb\n" {
		t.Errorf("numbered() = %q", got)
	}
}

func TestParseSelection(t *testing.T) {
	tests := []struct {
		name    string
		out     string
		want    int
		wantErr bool
	}{
		{"first", "0\tClip\n", 0, false},
		{"last", "2\tOther\n", 2, false},
		{"empty", "\n", -1, true},
		{"out of range", "3\tNope\n", -1, true},
		{"garbage", "x\tNope\n", -1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseSelection(tt.out, 3)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseSelection() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("parseSelection() = %d, want %d", got, tt.want)
			}
		})
	}

	if _, err := parseSelection("", 1); !errors.Is(err, ErrCancelled) {
		t.Errorf("empty output should be a cancellation, got %v", err)
	}
}

func TestArtifactLine(t *testing.T) {
	line := ArtifactLine(media.Artifact{
		Title:     "Clip\twith\ttabs",
		Platform:  media.Instagram,
		Kind:      media.Image,
		CreatedAt: time.Now(),
	})
	if strings.Contains(line, "\t") {
		t.Errorf("line contains a tab: %q", line)
	}
	if !strings.HasPrefix(line, "Clip with tabs  [instagram image, ") {
		t.Errorf("unexpected line %q", line)
	}

	if got := ArtifactLine(media.Artifact{SourceURL: "https://x.com/a/status/1"}); !strings.HasPrefix(got, "https://x.com/a/status/1") {
		t.Errorf("untitled artifact should show its URL, got %q", got)
	}
}

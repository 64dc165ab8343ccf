package cmd

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"mediagrab/internal/media"
	"mediagrab/internal/quota"
)

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   uint64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{5 << 30, "5.0 GiB"},
		{3 << 40, "3.0 TiB"},
	}
	for _, tt := range tests {
		if got := formatBytes(tt.in); got != tt.want {
			t.Errorf("formatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseLimit(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"1000", 1000, false},
		{"unlimited", quota.Unlimited, false},
		{"-1", quota.Unlimited, false},
		{"-2", 0, true},
		{"5GB", 0, true},
	}
	for _, tt := range tests {
		got, err := parseLimit(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseLimit(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("parseLimit(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestPrintResponsePlain(t *testing.T) {
	var buf bytes.Buffer
	p := &printer{w: &buf}

	ref := "art_01.mp4"
	p.response("/data", &media.Response{
		ID:                 "art_01",
		Title:              "Clip",
		Platform:           media.YouTube,
		Kind:               media.Video,
		DownloadRef:        &ref,
		Filename:           "Clip.mp4",
		ResolvedQuality:    "480p",
		RequestedQuality:   "720p",
		AvailableQualities: []string{"480p", "360p"},
		SizeBytes:          2048,
	})

	out := buf.String()
	for _, want := range []string{"Clip fetched", "480p (asked 720p)", "2.0 KiB", "/data/art_01.mp4", "Clip.mp4", "480p 360p"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\x1b[") {
		t.Errorf("plain output contains escape codes:\n%s", out)
	}
}

func TestPrintInstructions(t *testing.T) {
	var buf bytes.Buffer
	p := &printer{w: &buf}

	p.response("/data", &media.Response{
		SourceURL:        "https://www.fshare.vn/file/ABC",
		Kind:             media.Instructions,
		Instructions:     "Open the link in a browser.",
		ProcessingReason: "SERVICE_NOT_CONFIGURED",
	})

	out := buf.String()
	if !strings.Contains(out, "SERVICE_NOT_CONFIGURED") || !strings.Contains(out, "Open the link in a browser.") {
		t.Errorf("unexpected instructions output:\n%s", out)
	}
}

func TestPrintHistoryPlain(t *testing.T) {
	var buf bytes.Buffer
	p := &printer{w: &buf}

	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	p.history([]media.Artifact{{
		ID: "art_01", Title: "Clip", Platform: media.TikTok, Kind: media.Video,
		SizeBytes: 10, Status: media.Completed, CreatedAt: created,
	}})

	want := "art_01\t2026-01-02T03:04:05Z\ttiktok\tvideo\t10\tcompleted\tClip\n"
	if buf.String() != want {
		t.Errorf("history = %q, want %q", buf.String(), want)
	}

	buf.Reset()
	p.history(nil)
	if !strings.Contains(buf.String(), "No downloads") {
		t.Errorf("empty history = %q", buf.String())
	}
}

func TestDescribeQuotaError(t *testing.T) {
	err := describe(&media.QuotaError{Identity: "alice", Limit: 1 << 20, Usage: 512 << 10, Candidate: 1 << 20})
	if !strings.Contains(err.Error(), "alice is using 512.0 KiB of 1.0 MiB") {
		t.Errorf("describe() = %v", err)
	}
}

package extract

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"mediagrab/internal/download"
	"mediagrab/internal/media"
	"mediagrab/internal/quality"
)

// Tool extracts through the yt-dlp wrapper: one metadata probe, then one
// fetch at the negotiated format, retried once with the fallback format.
type Tool struct {
	tool          *download.Tool
	watermarkFree bool
	audioBitrates []string
	log           zerolog.Logger
}

// NewTool creates the tool-backed strategy.
func NewTool(t *download.Tool, watermarkFree bool, audioBitrates []string, log zerolog.Logger) *Tool {
	if len(audioBitrates) == 0 {
		audioBitrates = []string{"320K"}
	}
	return &Tool{
		tool:          t,
		watermarkFree: watermarkFree,
		audioBitrates: audioBitrates,
		log:           log.With().Str("strategy", "ytdlp").Logger(),
	}
}

func (t *Tool) Name() string        { return "ytdlp" }
func (t *Tool) WatermarkFree() bool { return t.watermarkFree }

func (t *Tool) Attempt(ctx context.Context, req Request) (*Result, error) {
	info, err := t.tool.Probe(ctx, req.URL, req.Password)
	if err != nil {
		return nil, err
	}

	if req.AudioOnly {
		return t.audio(ctx, req, info)
	}

	sel := quality.Resolve(req.Quality, info.Formats)
	resolved := sel.Resolved

	out, err := t.tool.Fetch(ctx, req.URL, sel.Expression, req.Password)
	if err != nil {
		t.log.Warn().Err(err).Str("format", sel.Expression).Msg("negotiated format failed, retrying with fallback")
		var retryErr error
		out, retryErr = t.tool.Fetch(ctx, req.URL, quality.Fallback, req.Password)
		if retryErr != nil {
			return nil, fmt.Errorf("negotiated format: %v; fallback format: %w", err, retryErr)
		}
		resolved = quality.Label(quality.FallbackHeight(info.Formats))
	}

	kind := media.KindForMIME(out.MIME)
	if kind == media.FileGeneric {
		kind = media.Video
	}

	return &Result{
		Title:              info.Title,
		Kind:               kind,
		Files:              []File{{Path: out.Path, MIME: out.MIME, Size: out.Size, Label: resolved}},
		ResolvedQuality:    resolved,
		AvailableQualities: quality.Available(info.Formats),
		WatermarkFree:      t.watermarkFree,
	}, nil
}

// audio produces one MP3 per configured bitrate. The first bitrate is
// required; the others are best effort alternates.
func (t *Tool) audio(ctx context.Context, req Request, info *download.Info) (*Result, error) {
	res := &Result{
		Title:           info.Title,
		Kind:            media.Audio,
		ResolvedQuality: t.audioBitrates[0],
		WatermarkFree:   t.watermarkFree,
	}

	for i, bitrate := range t.audioBitrates {
		out, err := t.tool.FetchAudio(ctx, req.URL, bitrate, req.Password)
		if err != nil {
			if i == 0 {
				return nil, err
			}
			t.log.Warn().Err(err).Str("bitrate", bitrate).Msg("skipping audio alternate")
			continue
		}
		f := File{Path: out.Path, MIME: out.MIME, Size: out.Size, Label: bitrate}
		if i > 0 {
			f.Purpose = media.PurposeAudioBitrate
		}
		res.Files = append(res.Files, f)
	}
	return res, nil
}

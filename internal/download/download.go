// Package download drives the yt-dlp extraction tool through the process
// runner. Every invocation uses an explicit argument slice and writes only
// into the managed directory under a fresh random file stem.
package download

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"

	"mediagrab/internal/httputil"
	"mediagrab/internal/media"
	"mediagrab/internal/quality"
	"mediagrab/internal/runner"
)

// Info is the subset of the tool's JSON description we consume.
type Info struct {
	ID        string           `json:"id"`
	Title     string           `json:"title"`
	Extractor string           `json:"extractor"`
	Duration  float64          `json:"duration"`
	Formats   []quality.Format `json:"formats"`
}

// Output is a file produced by a fetch.
type Output struct {
	Path string
	MIME string
	Size int64
}

// Options configures the tool wrapper.
type Options struct {
	Binary       string
	Dir          string
	FetchTimeout time.Duration
	ProbeTimeout time.Duration
	CacheSize    int
	CacheTTL     time.Duration
}

// Tool wraps the extraction binary.
type Tool struct {
	run    runner.Runner
	opts   Options
	probes *expirable.LRU[string, *Info]
	log    zerolog.Logger
}

// New creates a Tool. Probe results are cached for CacheTTL so a probe
// followed by a fetch, or a quick retry, does not re-run the probe.
func New(r runner.Runner, opts Options, log zerolog.Logger) *Tool {
	if opts.Binary == "" {
		opts.Binary = "yt-dlp"
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = runner.DefaultTimeout
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = runner.ProbeTimeout
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 256
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 10 * time.Minute
	}
	return &Tool{
		run:    r,
		opts:   opts,
		probes: expirable.NewLRU[string, *Info](opts.CacheSize, nil, opts.CacheTTL),
		log:    log.With().Str("component", "ytdlp").Logger(),
	}
}

// Probe fetches metadata only, including the advertised formats.
func (t *Tool) Probe(ctx context.Context, url, password string) (*Info, error) {
	key := url + "\x00" + password
	if info, ok := t.probes.Get(key); ok {
		return info, nil
	}

	args := []string{"--dump-single-json", "--skip-download", "--no-playlist", "--no-warnings"}
	args = append(args, passwordArgs(password)...)
	args = append(args, "--", url)

	res, err := t.run.Run(ctx, runner.Command{Path: t.opts.Binary, Args: args}, t.opts.ProbeTimeout)
	if err != nil {
		return nil, fmt.Errorf("probing %s: %w", url, err)
	}

	var info Info
	if err := json.Unmarshal(res.Stdout, &info); err != nil {
		return nil, fmt.Errorf("parsing probe output: %w", err)
	}

	t.probes.Add(key, &info)
	t.log.Debug().Str("url", url).Int("formats", len(info.Formats)).Msg("probed")
	return &info, nil
}

// Fetch downloads url using the given format expression.
func (t *Tool) Fetch(ctx context.Context, url, format, password string) (*Output, error) {
	args := []string{"-f", format, "--merge-output-format", "mp4"}
	args = append(args, passwordArgs(password)...)
	return t.fetch(ctx, url, args)
}

// FetchAudio extracts the audio track as MP3 at the given bitrate.
func (t *Tool) FetchAudio(ctx context.Context, url, bitrate, password string) (*Output, error) {
	args := []string{"-f", "bestaudio/best", "-x", "--audio-format", "mp3", "--audio-quality", bitrate}
	args = append(args, passwordArgs(password)...)
	return t.fetch(ctx, url, args)
}

func (t *Tool) fetch(ctx context.Context, url string, args []string) (*Output, error) {
	if err := os.MkdirAll(t.opts.Dir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	stem := uuid.NewString()
	template, err := httputil.SafeDownloadPath(t.opts.Dir, stem+".%(ext)s")
	if err != nil {
		return nil, fmt.Errorf("invalid output path: %w", err)
	}

	args = append(args, "-o", template, "--no-playlist", "--no-warnings", "--", url)

	if _, err := t.run.Run(ctx, runner.Command{Path: t.opts.Binary, Args: args}, t.opts.FetchTimeout); err != nil {
		removeStem(t.opts.Dir, stem)
		return nil, fmt.Errorf("fetching %s: %w", url, err)
	}

	path, err := findOutput(t.opts.Dir, stem)
	if err != nil {
		removeStem(t.opts.Dir, stem)
		return nil, err
	}

	st, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat output: %w", err)
	}

	return &Output{Path: path, MIME: httputil.DetectMIME(path), Size: st.Size()}, nil
}

func passwordArgs(password string) []string {
	if password == "" {
		return nil
	}
	return []string{"--video-password", password}
}

// intermediate suffixes the tool leaves behind while working.
var intermediate = []string{".part", ".ytdl", ".temp"}

func findOutput(dir, stem string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, stem+".*"))
	if err != nil {
		return "", fmt.Errorf("locating output: %w", err)
	}
	for _, m := range matches {
		skip := false
		for _, suffix := range intermediate {
			if strings.HasSuffix(m, suffix) {
				skip = true
				break
			}
		}
		if !skip {
			return m, nil
		}
	}
	return "", fmt.Errorf("tool produced no output file: %w", media.ErrNoContent)
}

func removeStem(dir, stem string) {
	matches, _ := filepath.Glob(filepath.Join(dir, stem+".*"))
	for _, m := range matches {
		os.Remove(m)
	}
}

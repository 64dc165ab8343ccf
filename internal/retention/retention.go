// Package retention evicts files older than the retention window from the
// managed directory and reconciles the artifact store.
package retention

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"mediagrab/internal/metrics"
)

// Defaults applied by New.
const (
	DefaultMaxAge   = 7 * 24 * time.Hour
	DefaultInterval = 6 * time.Hour
)

// Reconciler is told about every removed file.
type Reconciler interface {
	MarkFileDeleted(name string) (int, error)
}

// Report summarizes one sweep.
type Report struct {
	DeletedCount int    `json:"deletedCount"`
	FreedBytes   uint64 `json:"freedBytes"`
}

// Options configures a Sweeper.
type Options struct {
	MaxAge   time.Duration
	Interval time.Duration
	// Keep lists file names (and their temp-file prefixes) that are never
	// swept, such as the index documents.
	Keep    []string
	Now     func() time.Time
	Log     zerolog.Logger
	Metrics metrics.Recorder
}

// Sweeper removes aged files. Sweeps never overlap.
type Sweeper struct {
	dir  string
	rec  Reconciler
	opts Options
	log  zerolog.Logger

	mu sync.Mutex
}

// New creates a sweeper over dir.
func New(dir string, rec Reconciler, opts Options) *Sweeper {
	if opts.MaxAge <= 0 {
		opts.MaxAge = DefaultMaxAge
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Noop{}
	}
	return &Sweeper{
		dir:  dir,
		rec:  rec,
		opts: opts,
		log:  opts.Log.With().Str("component", "retention").Logger(),
	}
}

// Sweep deletes every file older than MaxAge and demotes the records that
// reference it. A file that cannot be removed is logged and skipped.
func (s *Sweeper) Sweep() (Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return Report{}, nil
		}
		return Report{}, fmt.Errorf("reading %s: %w", s.dir, err)
	}

	cutoff := s.opts.Now().Add(-s.opts.MaxAge)
	var rep Report
	for _, e := range entries {
		if e.IsDir() || s.kept(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}

		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil && !os.IsNotExist(err) {
			s.log.Warn().Err(err).Str("file", e.Name()).Msg("removing aged file")
			continue
		}
		rep.DeletedCount++
		rep.FreedBytes += uint64(info.Size())

		if _, err := s.rec.MarkFileDeleted(e.Name()); err != nil {
			s.log.Warn().Err(err).Str("file", e.Name()).Msg("reconciling history")
		}
	}

	s.opts.Metrics.AddSwept(rep.DeletedCount, rep.FreedBytes)
	if rep.DeletedCount > 0 {
		s.log.Info().Int("files", rep.DeletedCount).Uint64("bytes", rep.FreedBytes).Msg("swept aged files")
	}
	return rep, nil
}

// Run sweeps once immediately and then every Interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for {
		if _, err := s.Sweep(); err != nil {
			s.log.Error().Err(err).Msg("sweep failed")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Sweeper) kept(name string) bool {
	for _, k := range s.opts.Keep {
		if name == k || strings.HasPrefix(name, k+"-") {
			return true
		}
	}
	return false
}

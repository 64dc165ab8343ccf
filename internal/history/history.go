// Package history is the artifact store: per-identity download history
// with a secondary index by source URL and mode. The whole index is persisted as
// JSON after every mutation, using atomic writes (temp+rename).
package history

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"mediagrab/internal/httputil"
	"mediagrab/internal/jsonfile"
	"mediagrab/internal/media"
)

// FileName is the index document inside the managed directory.
const FileName = "download-history.json"

// Defaults applied by Open.
const (
	DefaultMaxPerIdentity = 100
	DefaultRetention      = 7 * 24 * time.Hour
)

// ErrNotOwner is returned when an identity tries to delete another
// identity's artifact.
var ErrNotOwner = errors.New("artifact belongs to another identity")

// Options configures a Store.
type Options struct {
	MaxPerIdentity int
	Retention      time.Duration
	Now            func() time.Time
	Log            zerolog.Logger
}

// Store owns the identity → artifacts mapping. All access goes through its
// methods; a single mutex guards both the maps and the file.
type Store struct {
	dir  string
	path string
	opts Options

	mu         sync.Mutex
	byIdentity map[string][]*media.Artifact
	byURL      map[urlKey]*media.Artifact
}

// urlKey separates audio extractions from full downloads of the same URL.
type urlKey struct {
	url   string
	audio bool
}

func keyOf(a *media.Artifact) urlKey {
	return urlKey{url: a.SourceURL, audio: a.Kind == media.Audio}
}

// Open loads the index from dir, creating the directory if needed.
func Open(dir string, opts Options) (*Store, error) {
	if opts.MaxPerIdentity <= 0 {
		opts.MaxPerIdentity = DefaultMaxPerIdentity
	}
	if opts.Retention <= 0 {
		opts.Retention = DefaultRetention
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	opts.Log = opts.Log.With().Str("component", "history").Logger()

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}

	s := &Store{
		dir:        dir,
		path:       filepath.Join(dir, FileName),
		opts:       opts,
		byIdentity: make(map[string][]*media.Artifact),
		byURL:      make(map[urlKey]*media.Artifact),
	}
	if _, err := jsonfile.Load(s.path, &s.byIdentity); err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}
	if s.byIdentity == nil {
		s.byIdentity = make(map[string][]*media.Artifact)
	}
	for _, list := range s.byIdentity {
		for _, a := range list {
			s.index(a)
		}
	}
	return s, nil
}

// Dir returns the managed directory.
func (s *Store) Dir() string { return s.dir }

// Lookup returns the newest completed artifact recorded for url in the
// given mode: audio-only extractions when audio is set, everything else
// otherwise. A record whose file has disappeared is demoted to deleted and
// the next newest one is tried.
func (s *Store) Lookup(url string, audio bool) (*media.Artifact, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dirty := false
	defer func() {
		if dirty {
			s.flush()
		}
	}()

	for {
		a, ok := s.byURL[urlKey{url: url, audio: audio}]
		if !ok {
			return nil, false
		}
		if s.observe(a) {
			dirty = true
			continue
		}
		a.LastAccessedAt = s.opts.Now()
		dirty = true
		return clone(a), true
	}
}

// Record inserts a at the head of its owner's history and truncates the
// list to the configured capacity. Truncated entries keep their files.
// Nothing changes in memory unless the index is persisted.
func (s *Store) Record(a *media.Artifact) error {
	if a.OwnerIdentity == "" {
		return errors.New("artifact has no owner")
	}
	if a.Status == media.Completed && !httputil.WithinDir(s.dir, a.PrimaryFile.Path) {
		return fmt.Errorf("primary file %q is outside the managed directory", a.PrimaryFile.Path)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.opts.Now()
	rec := clone(a)
	if rec.ID == "" {
		rec.ID = media.NewID()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.LastAccessedAt.IsZero() {
		rec.LastAccessedAt = rec.CreatedAt
	}
	rec.ExpiresAt = rec.CreatedAt.Add(s.opts.Retention)
	if rec.Status == "" {
		rec.Status = media.Completed
	}

	list := append([]*media.Artifact{rec}, s.byIdentity[rec.OwnerIdentity]...)
	var dropped []*media.Artifact
	if len(list) > s.opts.MaxPerIdentity {
		dropped = list[s.opts.MaxPerIdentity:]
		list = list[:s.opts.MaxPerIdentity]
	}

	next := make(map[string][]*media.Artifact, len(s.byIdentity)+1)
	for id, l := range s.byIdentity {
		next[id] = l
	}
	next[rec.OwnerIdentity] = list
	if err := s.saveIndex(next); err != nil {
		return err
	}

	s.byIdentity = next
	for _, d := range dropped {
		s.reindex(d.SourceURL)
	}
	s.index(rec)
	*a = *clone(rec)
	return nil
}

// Delete removes the artifact's files and marks it deleted. Only the owner
// may delete.
func (s *Store) Delete(id, identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a := s.find(id)
	if a == nil {
		return fmt.Errorf("%s: %w", id, media.ErrArtifactNotFound)
	}
	if a.OwnerIdentity != identity {
		return fmt.Errorf("%s: %w", id, ErrNotOwner)
	}

	for _, p := range a.Files() {
		if httputil.WithinDir(s.dir, p) {
			if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
				s.opts.Log.Warn().Err(err).Str("path", p).Msg("removing artifact file")
			}
		}
	}
	a.Status = media.Deleted
	s.reindex(a.SourceURL)
	return s.save()
}

// List returns identity's history, newest first.
func (s *Store) List(identity string) []media.Artifact {
	s.mu.Lock()
	defer s.mu.Unlock()

	dirty := false
	list := s.byIdentity[identity]
	out := make([]media.Artifact, 0, len(list))
	for _, a := range list {
		if s.observe(a) {
			dirty = true
		}
		out = append(out, *clone(a))
	}
	if dirty {
		s.flush()
	}
	return out
}

// Identities returns every identity with recorded history.
func (s *Store) Identities() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.byIdentity))
	for id := range s.byIdentity {
		ids = append(ids, id)
	}
	return ids
}

// Get returns the artifact with the given id.
func (s *Store) Get(id string) (*media.Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a := s.find(id)
	if a == nil {
		return nil, fmt.Errorf("%s: %w", id, media.ErrArtifactNotFound)
	}
	if s.observe(a) {
		s.flush()
	}
	return clone(a), nil
}

// Usage sums the size of identity's completed artifacts whose files still
// exist. It is computed on every call.
func (s *Store) Usage(identity string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	var total uint64
	dirty := false
	for _, a := range s.byIdentity[identity] {
		if s.observe(a) {
			dirty = true
		}
		if a.Status == media.Completed {
			total += a.SizeBytes
		}
	}
	if dirty {
		s.flush()
	}
	return total
}

// MarkFileDeleted demotes every record referencing the named file and
// returns how many were changed.
func (s *Store) MarkFileDeleted(name string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := 0
	for _, list := range s.byIdentity {
		for _, a := range list {
			if a.Status == media.Deleted {
				continue
			}
			for _, p := range a.Files() {
				if filepath.Base(p) == name {
					a.Status = media.Deleted
					s.reindex(a.SourceURL)
					changed++
					break
				}
			}
		}
	}
	if changed == 0 {
		return 0, nil
	}
	return changed, s.save()
}

// observe demotes a completed record whose primary file is gone. It
// reports whether the record changed.
func (s *Store) observe(a *media.Artifact) bool {
	if a.Status != media.Completed {
		return false
	}
	if _, err := os.Stat(a.PrimaryFile.Path); err == nil {
		return false
	}
	s.opts.Log.Debug().Str("id", a.ID).Str("path", a.PrimaryFile.Path).Msg("backing file missing, marking deleted")
	a.Status = media.Deleted
	s.reindex(a.SourceURL)
	return true
}

// index makes a the entry for its URL and mode if it is completed and
// newer than the current one.
func (s *Store) index(a *media.Artifact) {
	if a.Status != media.Completed {
		return
	}
	k := keyOf(a)
	if cur, ok := s.byURL[k]; ok && cur.CreatedAt.After(a.CreatedAt) {
		return
	}
	s.byURL[k] = a
}

// reindex recomputes both entries for url from the records still in the
// index.
func (s *Store) reindex(url string) {
	delete(s.byURL, urlKey{url: url})
	delete(s.byURL, urlKey{url: url, audio: true})
	for _, list := range s.byIdentity {
		for _, a := range list {
			if a.SourceURL == url {
				s.index(a)
			}
		}
	}
}

func (s *Store) find(id string) *media.Artifact {
	for _, list := range s.byIdentity {
		for _, a := range list {
			if a.ID == id {
				return a
			}
		}
	}
	return nil
}

func (s *Store) save() error {
	return s.saveIndex(s.byIdentity)
}

func (s *Store) saveIndex(idx map[string][]*media.Artifact) error {
	if err := jsonfile.Save(s.path, idx); err != nil {
		return fmt.Errorf("saving history: %w", err)
	}
	return nil
}

// flush saves on read paths, where a failed write only loses the
// reconciliation and is logged.
func (s *Store) flush() {
	if err := s.save(); err != nil {
		s.opts.Log.Warn().Err(err).Msg("flushing history")
	}
}

func clone(a *media.Artifact) *media.Artifact {
	c := *a
	c.AlternateFiles = append([]media.AltFile(nil), a.AlternateFiles...)
	return &c
}

package retention

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingReconciler struct {
	mu    sync.Mutex
	names []string
}

func (r *recordingReconciler) MarkFileDeleted(name string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names = append(r.names, name)
	return 1, nil
}

func (r *recordingReconciler) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.names...)
}

func writeAged(t *testing.T, dir, name string, size int, age time.Duration) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0600))
	mt := time.Now().Add(-age)
	require.NoError(t, os.Chtimes(path, mt, mt))
}

func TestSweep(t *testing.T) {
	dir := t.TempDir()
	writeAged(t, dir, "old.mp4", 100, 8*24*time.Hour)
	writeAged(t, dir, "old.mp3", 20, 30*24*time.Hour)
	writeAged(t, dir, "fresh.mp4", 50, time.Hour)
	writeAged(t, dir, "download-history.json", 10, 30*24*time.Hour)
	writeAged(t, dir, "download-history.json-123.tmp", 10, 30*24*time.Hour)
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0700))

	rec := &recordingReconciler{}
	s := New(dir, rec, Options{Keep: []string{"download-history.json"}, Log: zerolog.Nop()})

	rep, err := s.Sweep()
	require.NoError(t, err)
	assert.Equal(t, 2, rep.DeletedCount)
	assert.Equal(t, uint64(120), rep.FreedBytes)
	assert.ElementsMatch(t, []string{"old.mp4", "old.mp3"}, rec.seen())

	left, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range left {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"fresh.mp4", "download-history.json", "download-history.json-123.tmp", "sub"}, names)
}

func TestSweepMissingDir(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "nope"), &recordingReconciler{}, Options{})
	rep, err := s.Sweep()
	require.NoError(t, err)
	assert.Zero(t, rep.DeletedCount)
}

func TestRunSweepsUntilCancelled(t *testing.T) {
	dir := t.TempDir()
	writeAged(t, dir, "old.mp4", 1, 8*24*time.Hour)

	rec := &recordingReconciler{}
	s := New(dir, rec, Options{Interval: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return len(rec.seen()) == 1 }, time.Second, 5*time.Millisecond)

	writeAged(t, dir, "later.mp4", 1, 8*24*time.Hour)
	require.Eventually(t, func() bool { return len(rec.seen()) == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

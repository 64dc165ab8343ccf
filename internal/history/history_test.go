package history

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"mediagrab/internal/media"
)

func openStore(t *testing.T, opts Options) *Store {
	t.Helper()
	s, err := Open(t.TempDir(), opts)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	return s
}

func artifact(t *testing.T, s *Store, url, owner string, size int) *media.Artifact {
	t.Helper()
	path := filepath.Join(s.Dir(), fmt.Sprintf("%s.mp4", media.NewID()))
	if err := os.WriteFile(path, make([]byte, size), 0600); err != nil {
		t.Fatal(err)
	}
	return &media.Artifact{
		Title:         "clip",
		SourceURL:     url,
		Platform:      media.YouTube,
		Kind:          media.Video,
		PrimaryFile:   media.FileRef{Path: path, MIME: "video/mp4"},
		SizeBytes:     uint64(size),
		OwnerIdentity: owner,
		Status:        media.Completed,
	}
}

func TestRecordAndLookup(t *testing.T) {
	s := openStore(t, Options{})
	a := artifact(t, s, "https://youtube.com/watch?v=abc", "alice", 10)

	if err := s.Record(a); err != nil {
		t.Fatalf("Record() error: %v", err)
	}
	if a.ID == "" || a.ExpiresAt.IsZero() {
		t.Fatalf("Record() did not fill id and expiry: %+v", a)
	}

	got, ok := s.Lookup("https://youtube.com/watch?v=abc", false)
	if !ok {
		t.Fatal("Lookup() missed a recorded artifact")
	}
	if got.ID != a.ID {
		t.Errorf("Lookup() id = %q, want %q", got.ID, a.ID)
	}

	if _, ok := s.Lookup("https://youtube.com/watch?v=abc&t=1", false); ok {
		t.Error("Lookup() must match the raw URL exactly")
	}
}

func TestLookupSeparatesAudio(t *testing.T) {
	s := openStore(t, Options{})
	url := "https://youtube.com/watch?v=abc"

	video := artifact(t, s, url, "alice", 10)
	if err := s.Record(video); err != nil {
		t.Fatal(err)
	}
	audio := artifact(t, s, url, "alice", 5)
	audio.Kind = media.Audio
	audio.CreatedAt = video.CreatedAt.Add(time.Second)
	if err := s.Record(audio); err != nil {
		t.Fatal(err)
	}

	got, ok := s.Lookup(url, false)
	if !ok || got.ID != video.ID {
		t.Fatalf("Lookup(video) = %v, %v; want %s", got, ok, video.ID)
	}
	got, ok = s.Lookup(url, true)
	if !ok || got.ID != audio.ID {
		t.Fatalf("Lookup(audio) = %v, %v; want %s", got, ok, audio.ID)
	}

	os.Remove(audio.PrimaryFile.Path)
	if _, ok := s.Lookup(url, true); ok {
		t.Error("Lookup(audio) returned an artifact whose file is gone")
	}
	if got, ok := s.Lookup(url, false); !ok || got.ID != video.ID {
		t.Error("losing the audio file must not hide the video")
	}
}

func TestRecordKeepsMemoryOnSaveFailure(t *testing.T) {
	s := openStore(t, Options{MaxPerIdentity: 1})
	url := "https://youtube.com/watch?v=abc"
	kept := artifact(t, s, url, "alice", 10)
	if err := s.Record(kept); err != nil {
		t.Fatal(err)
	}

	// A directory in place of the index makes the rename fail.
	path := filepath.Join(s.Dir(), FileName)
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(path, 0700); err != nil {
		t.Fatal(err)
	}

	failed := artifact(t, s, "https://youtube.com/watch?v=other", "alice", 10)
	if err := s.Record(failed); err == nil {
		t.Fatal("Record() succeeded without persisting the index")
	}
	if failed.ID != "" {
		t.Errorf("failed Record() assigned id %q", failed.ID)
	}

	list := s.List("alice")
	if len(list) != 1 || list[0].ID != kept.ID {
		t.Fatalf("List() = %+v, want only %s", list, kept.ID)
	}
	if _, ok := s.Lookup(failed.SourceURL, false); ok {
		t.Error("failed record is indexed by URL")
	}
	if got, ok := s.Lookup(url, false); !ok || got.ID != kept.ID {
		t.Error("entry that would have been truncated fell out of the URL index")
	}
}

func TestLookupDemotesMissingFile(t *testing.T) {
	s := openStore(t, Options{})
	a := artifact(t, s, "https://youtube.com/watch?v=abc", "alice", 10)
	if err := s.Record(a); err != nil {
		t.Fatal(err)
	}

	os.Remove(a.PrimaryFile.Path)

	if _, ok := s.Lookup(a.SourceURL, false); ok {
		t.Fatal("Lookup() returned an artifact whose file is gone")
	}
	got, err := s.Get(a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != media.Deleted {
		t.Errorf("status = %q, want deleted", got.Status)
	}
}

func TestLookupTouchesAccessTime(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := openStore(t, Options{Now: func() time.Time { return now }})
	a := artifact(t, s, "https://youtube.com/watch?v=abc", "alice", 10)
	s.Record(a)

	now = now.Add(time.Hour)
	got, _ := s.Lookup(a.SourceURL, false)
	if !got.LastAccessedAt.Equal(now) {
		t.Errorf("LastAccessedAt = %v, want %v", got.LastAccessedAt, now)
	}
	if !got.ExpiresAt.Equal(a.CreatedAt.Add(DefaultRetention)) {
		t.Errorf("ExpiresAt = %v, want createdAt + retention", got.ExpiresAt)
	}
}

func TestRecordTruncates(t *testing.T) {
	s := openStore(t, Options{MaxPerIdentity: 3})

	var first *media.Artifact
	for i := 0; i < 5; i++ {
		a := artifact(t, s, fmt.Sprintf("https://youtube.com/watch?v=%d", i), "alice", 1)
		if err := s.Record(a); err != nil {
			t.Fatal(err)
		}
		if i == 0 {
			first = a
		}
	}

	list := s.List("alice")
	if len(list) != 3 {
		t.Fatalf("List() len = %d, want 3", len(list))
	}
	if list[0].SourceURL != "https://youtube.com/watch?v=4" {
		t.Errorf("newest entry = %q, want v=4", list[0].SourceURL)
	}
	if _, ok := s.Lookup(first.SourceURL, false); ok {
		t.Error("truncated entry is still indexed by URL")
	}
	if _, err := os.Stat(first.PrimaryFile.Path); err != nil {
		t.Error("truncation must not remove files")
	}
}

func TestRecordRejectsOutsideFile(t *testing.T) {
	s := openStore(t, Options{})
	a := &media.Artifact{
		SourceURL:     "https://youtube.com/watch?v=abc",
		PrimaryFile:   media.FileRef{Path: "/etc/passwd"},
		OwnerIdentity: "alice",
		Status:        media.Completed,
	}
	if err := s.Record(a); err == nil {
		t.Error("expected error for file outside the managed directory")
	}
}

func TestDelete(t *testing.T) {
	s := openStore(t, Options{})
	a := artifact(t, s, "https://youtube.com/watch?v=abc", "alice", 10)
	s.Record(a)

	if err := s.Delete(a.ID, "bob"); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("Delete() by another identity = %v, want ErrNotOwner", err)
	}
	if err := s.Delete("art_missing", "alice"); !errors.Is(err, media.ErrArtifactNotFound) {
		t.Fatalf("Delete() unknown id = %v, want ErrArtifactNotFound", err)
	}
	if err := s.Delete(a.ID, "alice"); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}

	if _, err := os.Stat(a.PrimaryFile.Path); !os.IsNotExist(err) {
		t.Error("Delete() left the backing file")
	}
	if _, ok := s.Lookup(a.SourceURL, false); ok {
		t.Error("deleted artifact is still served")
	}
}

func TestUsage(t *testing.T) {
	s := openStore(t, Options{})
	a := artifact(t, s, "https://youtube.com/watch?v=a", "alice", 100)
	b := artifact(t, s, "https://youtube.com/watch?v=b", "alice", 50)
	c := artifact(t, s, "https://youtube.com/watch?v=c", "bob", 70)
	for _, x := range []*media.Artifact{a, b, c} {
		s.Record(x)
	}

	if got := s.Usage("alice"); got != 150 {
		t.Errorf("Usage(alice) = %d, want 150", got)
	}

	os.Remove(b.PrimaryFile.Path)
	if got := s.Usage("alice"); got != 100 {
		t.Errorf("Usage(alice) after file loss = %d, want 100", got)
	}
}

func TestMarkFileDeleted(t *testing.T) {
	s := openStore(t, Options{})
	a := artifact(t, s, "https://youtube.com/watch?v=a", "alice", 1)
	s.Record(a)

	n, err := s.MarkFileDeleted(filepath.Base(a.PrimaryFile.Path))
	if err != nil || n != 1 {
		t.Fatalf("MarkFileDeleted() = %d, %v", n, err)
	}
	got, _ := s.Get(a.ID)
	if got.Status != media.Deleted {
		t.Errorf("status = %q, want deleted", got.Status)
	}
}

func TestPersistence(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, Options{})
	if err != nil {
		t.Fatal(err)
	}
	a := artifact(t, s, "https://youtube.com/watch?v=abc", "alice", 10)
	a.AlternateFiles = []media.AltFile{{Label: "128K", Path: filepath.Join(dir, "x.mp3"), Purpose: media.PurposeAudioBitrate}}
	if err := s.Record(a); err != nil {
		t.Fatal(err)
	}

	reopened, err := Open(dir, Options{})
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	got, ok := reopened.Lookup(a.SourceURL, false)
	if !ok {
		t.Fatal("history lost across restart")
	}
	if len(got.AlternateFiles) != 1 || got.AlternateFiles[0].Purpose != media.PurposeAudioBitrate {
		t.Errorf("alternate files = %+v", got.AlternateFiles)
	}
	if _, err := os.Stat(filepath.Join(dir, FileName)); err != nil {
		t.Errorf("index file missing: %v", err)
	}
}

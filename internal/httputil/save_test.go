package httputil

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

func TestSaveToDir(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Referer") != "https://example.com/" {
			http.Error(w, "missing referer", http.StatusForbidden)
			return
		}
		w.Write(pngBytes)
	}))
	defer srv.Close()

	dir := t.TempDir()
	saved, err := SaveToDir(context.Background(), srv.Client(), srv.URL+"/img", dir, 1<<20, Header{"Referer": "https://example.com/"})
	if err != nil {
		t.Fatalf("SaveToDir() error: %v", err)
	}
	if saved.MIME != "image/png" {
		t.Errorf("MIME = %q, want image/png", saved.MIME)
	}
	if filepath.Ext(saved.Path) != ".png" {
		t.Errorf("path %q should carry a .png extension", saved.Path)
	}
	if !WithinDir(dir, saved.Path) {
		t.Errorf("path %q escapes %q", saved.Path, dir)
	}
	if saved.Size != int64(len(pngBytes)) {
		t.Errorf("size = %d, want %d", saved.Size, len(pngBytes))
	}
}

func TestSaveToDirTooLarge(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("x", 4096)))
	}))
	defer srv.Close()

	dir := t.TempDir()
	_, err := SaveToDir(context.Background(), srv.Client(), srv.URL, dir, 1024, nil)
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("partial file left behind: %d entries", len(entries))
	}
}

func TestSaveToDirBadStatus(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	if _, err := SaveToDir(context.Background(), srv.Client(), srv.URL, t.TempDir(), 0, nil); err == nil {
		t.Fatal("expected error on 404")
	}
}

func TestSaveToDirRejectsHTTP(t *testing.T) {
	if _, err := SaveToDir(context.Background(), http.DefaultClient, "http://example.com/a.png", t.TempDir(), 0, nil); err == nil {
		t.Fatal("expected plain HTTP to be rejected")
	}
}

package jsonfile

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "doc.json")

	in := map[string][]int{"a": {1, 2}, "b": nil}
	if err := Save(path, in); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	var out map[string][]int
	ok, err := Load(path, &out)
	if err != nil || !ok {
		t.Fatalf("Load() = %v, %v", ok, err)
	}
	if len(out["a"]) != 2 || out["a"][1] != 2 {
		t.Errorf("Load() = %v, want %v", out, in)
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("expected only the document in the directory, got %d entries", len(entries))
	}
}

func TestLoadMissing(t *testing.T) {
	var v map[string]string
	ok, err := Load(filepath.Join(t.TempDir(), "missing.json"), &v)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if ok {
		t.Error("Load() reported a missing file as present")
	}
}

func TestLoadCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.json")
	os.WriteFile(path, []byte("{not json"), 0600)

	var v map[string]string
	if _, err := Load(path, &v); err == nil {
		t.Error("expected error for corrupt document")
	}
}

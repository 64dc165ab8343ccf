package httputil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// ErrTooLarge is returned when a remote file exceeds the size cap.
var ErrTooLarge = errors.New("remote file exceeds size limit")

// Saved describes a file written into the managed directory.
type Saved struct {
	Path string
	MIME string
	Size int64
}

// SaveToDir streams url into dir under a fresh random name, sniffs the
// content type and renames the file to carry the matching extension.
// Partial files are removed on any failure.
func SaveToDir(ctx context.Context, client *http.Client, url, dir string, maxBytes int64, h Header) (*Saved, error) {
	resp, err := Get(ctx, client, url, h)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d for %s", resp.StatusCode, url)
	}
	if maxBytes > 0 && resp.ContentLength > maxBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, resp.ContentLength)
	}

	stem := uuid.NewString()
	partPath, err := SafeDownloadPath(dir, stem+".part")
	if err != nil {
		return nil, err
	}

	f, err := os.Create(partPath)
	if err != nil {
		return nil, fmt.Errorf("creating file: %w", err)
	}

	src := io.Reader(resp.Body)
	if maxBytes > 0 {
		src = io.LimitReader(resp.Body, maxBytes+1)
	}
	n, err := io.Copy(f, src)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(partPath)
		return nil, fmt.Errorf("writing file: %w", err)
	}
	if maxBytes > 0 && n > maxBytes {
		os.Remove(partPath)
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, maxBytes)
	}
	if n == 0 {
		os.Remove(partPath)
		return nil, fmt.Errorf("empty response body from %s", url)
	}

	mt, err := mimetype.DetectFile(partPath)
	if err != nil {
		os.Remove(partPath)
		return nil, fmt.Errorf("detecting content type: %w", err)
	}

	ext := mt.Extension()
	if ext == "" {
		ext = ".bin"
	}
	finalPath := filepath.Join(filepath.Dir(partPath), stem+ext)
	if err := os.Rename(partPath, finalPath); err != nil {
		os.Remove(partPath)
		return nil, fmt.Errorf("renaming download: %w", err)
	}

	return &Saved{Path: finalPath, MIME: mt.String(), Size: n}, nil
}

// DetectMIME sniffs the content type of a file on disk.
func DetectMIME(path string) string {
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return "application/octet-stream"
	}
	return mt.String()
}

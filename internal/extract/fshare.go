package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"mediagrab/internal/fshare"
	"mediagrab/internal/httputil"
	"mediagrab/internal/media"
)

// Fshare resolves a file link through the authenticated API and downloads
// it from the signed location.
type Fshare struct {
	Client *fshare.Client
	Remote *Remote
}

func (f *Fshare) Name() string        { return "fshare" }
func (f *Fshare) WatermarkFree() bool { return true }

func (f *Fshare) Attempt(ctx context.Context, req Request) (*Result, error) {
	if f.Client == nil || !f.Client.Configured() {
		return nil, &fshare.Error{Code: fshare.ReasonNotConfigured, Err: media.ErrUpstreamUnavailable}
	}

	info, err := f.Client.FileInfo(ctx, req.URL)
	if err != nil {
		return nil, err
	}
	if info.Protected() && req.Password == "" {
		return nil, &fshare.Error{Code: fshare.ReasonPasswordRequired, Err: errors.New("file is password protected")}
	}
	if size := info.SizeBytes(); f.Remote.MaxBytes > 0 && size > f.Remote.MaxBytes {
		return nil, fmt.Errorf("%s is %d bytes: %w", req.URL, size, httputil.ErrTooLarge)
	}

	link, err := f.Client.DownloadLink(ctx, req.URL, req.Password)
	if err != nil {
		return nil, err
	}

	files, err := f.Remote.save(ctx, []string{link}, nil)
	if err != nil {
		return nil, &fshare.Error{Code: fshare.ReasonUpstream, Err: err}
	}

	title := strings.TrimSpace(info.Name)
	if title != "" {
		files[0].Label = httputil.SanitizeFilename(title)
	}
	return &Result{Title: title, Kind: kindOf(files), Files: files, WatermarkFree: true}, nil
}

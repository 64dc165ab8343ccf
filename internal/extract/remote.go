package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"mediagrab/internal/httputil"
	"mediagrab/internal/media"
)

// Remote carries what scraping strategies need: a short-timeout client for
// pages and APIs, and a client plus deadline for media transfers.
type Remote struct {
	Page            *http.Client
	Transfer        *http.Client
	Dir             string
	MaxBytes        int64
	TransferTimeout time.Duration
}

// save downloads urls into the managed directory. The first URL is the
// primary file and must succeed; later ones become alt-item alternates
// and are skipped on failure.
func (r *Remote) save(ctx context.Context, urls []string, h httputil.Header) ([]File, error) {
	if len(urls) == 0 {
		return nil, media.ErrNoContent
	}

	timeout := r.TransferTimeout
	if timeout <= 0 {
		timeout = 180 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var files []File
	for i, u := range urls {
		saved, err := httputil.SaveToDir(ctx, r.Transfer, u, r.Dir, r.MaxBytes, h)
		if err != nil {
			if i == 0 {
				return nil, fmt.Errorf("saving media: %w", err)
			}
			continue
		}
		f := File{Path: saved.Path, MIME: saved.MIME, Size: saved.Size, Label: fmt.Sprintf("item %d", i+1)}
		if i > 0 {
			f.Purpose = media.PurposeAltItem
		}
		files = append(files, f)
	}
	return files, nil
}

// getJSON fetches endpoint and decodes the body into out.
func (r *Remote) getJSON(ctx context.Context, endpoint string, h httputil.Header, out any) error {
	body, err := httputil.GetJSON(ctx, r.Page, endpoint, h)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	return nil
}

// withQuery appends the source URL as the url query parameter.
func withQuery(base, source string, extra ...string) string {
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	q := url.Values{}
	q.Set("url", source)
	for i := 0; i+1 < len(extra); i += 2 {
		q.Set(extra[i], extra[i+1])
	}
	return base + sep + q.Encode()
}

// absolute resolves ref against base; APIs sometimes return paths.
func absolute(base, ref string) string {
	if ref == "" {
		return ""
	}
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func kindOf(files []File) media.Kind {
	if len(files) == 0 {
		return media.FileGeneric
	}
	return media.KindForMIME(files[0].MIME)
}

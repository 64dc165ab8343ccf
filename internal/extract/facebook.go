package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"mediagrab/internal/httputil"
	"mediagrab/internal/media"
)

// PhotoTemplates are the guessed CDN locations of a full-size photo, each
// taking the numeric photo id.
var PhotoTemplates = []string{
	"https://graph.facebook.com/%s/picture?type=large",
	"https://www.facebook.com/photo/download/?fbid=%s",
	"https://m.facebook.com/photo/view_full_size/?fbid=%s",
}

const crawlerUA = "facebookexternalhit/1.1 (+http://www.facebook.com/externalhit_uatext.php)"

// IsFacebookPhoto reports whether a Facebook URL points at a photo rather
// than a video. Only the path and the fbid query key are considered.
func IsFacebookPhoto(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return strings.Contains(strings.ToLower(u.Path), "/photo") || u.Query().Has("fbid")
}

var photoPathRe = regexp.MustCompile(`/photos?/(?:[^/?]+/)*?([0-9]{5,})`)

// PhotoID returns the numeric photo identifier of a Facebook photo URL.
func PhotoID(rawURL string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}
	if id := u.Query().Get("fbid"); httputil.ValidateNumericID(id) == nil {
		return id, true
	}
	if m := photoPathRe.FindStringSubmatch(u.Path); m != nil {
		return m[1], true
	}
	return "", false
}

// PhotoCDN guesses a direct CDN URL for a photo from one template.
type PhotoCDN struct {
	Template string
	Index    int
	Remote   *Remote
}

func (p *PhotoCDN) Name() string        { return fmt.Sprintf("fb-cdn-%d", p.Index+1) }
func (p *PhotoCDN) WatermarkFree() bool { return true }

func (p *PhotoCDN) Attempt(ctx context.Context, req Request) (*Result, error) {
	id, ok := PhotoID(req.URL)
	if !ok {
		return nil, fmt.Errorf("no photo id in %s: %w", req.URL, media.ErrNoContent)
	}

	files, err := p.Remote.save(ctx, []string{fmt.Sprintf(p.Template, id)}, nil)
	if err != nil {
		return nil, err
	}
	if err := imageOnly(files); err != nil {
		return nil, err
	}
	return &Result{Kind: media.Image, Files: files, WatermarkFree: true}, nil
}

// imageOnly removes files and fails unless the primary file is an image.
// Facebook answers unauthenticated requests with a login page.
func imageOnly(files []File) error {
	if strings.HasPrefix(files[0].MIME, "image/") {
		return nil
	}
	for _, f := range files {
		os.Remove(f.Path)
	}
	return fmt.Errorf("expected an image, got %s: %w", files[0].MIME, media.ErrNoContent)
}

var pageImageRe = regexp.MustCompile(`"image":\{"uri":"((?:[^"\\]|\\.)+)"`)

// PhotoPage scrapes the photo page for the embedded image URI.
type PhotoPage struct {
	Remote *Remote
}

func (p *PhotoPage) Name() string        { return "fb-page" }
func (p *PhotoPage) WatermarkFree() bool { return true }

func (p *PhotoPage) Attempt(ctx context.Context, req Request) (*Result, error) {
	body, err := httputil.GetHTML(ctx, p.Remote.Page, req.URL, nil)
	if err != nil {
		return nil, err
	}

	src, err := pageImage(body)
	if err != nil {
		return nil, err
	}

	files, err := p.Remote.save(ctx, []string{src}, httputil.Header{"Referer": "https://www.facebook.com/"})
	if err != nil {
		return nil, err
	}
	if err := imageOnly(files); err != nil {
		return nil, err
	}
	return &Result{Kind: media.Image, Files: files, WatermarkFree: true}, nil
}

// pageImage returns the first embedded image URI, JSON-unescaped.
func pageImage(body []byte) (string, error) {
	m := pageImageRe.FindSubmatch(body)
	if m == nil {
		return "", fmt.Errorf("no embedded image: %w", media.ErrNoContent)
	}
	var src string
	if err := json.Unmarshal([]byte(`"`+string(m[1])+`"`), &src); err != nil {
		return "", fmt.Errorf("decoding image uri: %w", err)
	}
	return src, nil
}

// OpenGraph reads the og:image meta tag as served to link-preview
// crawlers, optionally through a fetch proxy.
type OpenGraph struct {
	// Proxy, when set, is called with the page URL as its url parameter.
	Proxy  string
	Remote *Remote
}

func (o *OpenGraph) Name() string        { return "og-image" }
func (o *OpenGraph) WatermarkFree() bool { return false }

func (o *OpenGraph) Attempt(ctx context.Context, req Request) (*Result, error) {
	target := req.URL
	if o.Proxy != "" {
		target = withQuery(o.Proxy, req.URL)
	}

	body, err := httputil.GetHTML(ctx, o.Remote.Page, target, httputil.Header{"User-Agent": crawlerUA})
	if err != nil {
		return nil, err
	}

	title, src, err := openGraph(body)
	if err != nil {
		return nil, err
	}

	files, err := o.Remote.save(ctx, []string{absolute(req.URL, src)}, nil)
	if err != nil {
		return nil, err
	}
	if err := imageOnly(files); err != nil {
		return nil, err
	}
	return &Result{Title: title, Kind: media.Image, Files: files}, nil
}

func openGraph(body []byte) (title, image string, err error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", "", fmt.Errorf("parsing page: %w", err)
	}

	image, _ = doc.Find(`meta[property="og:image"]`).First().Attr("content")
	if image == "" {
		return "", "", fmt.Errorf("no og:image: %w", media.ErrNoContent)
	}
	title, _ = doc.Find(`meta[property="og:title"]`).First().Attr("content")
	return strings.TrimSpace(title), strings.TrimSpace(image), nil
}

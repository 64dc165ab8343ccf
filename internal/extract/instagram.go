package extract

import (
	"context"
	"fmt"
	"regexp"

	"mediagrab/internal/httputil"
	"mediagrab/internal/media"
)

var shortcodeRe = regexp.MustCompile(`/(?:p|reel|reels|tv)/([A-Za-z0-9_-]+)`)

// Shortcode extracts the post identifier from an Instagram URL.
func Shortcode(rawURL string) (string, bool) {
	m := shortcodeRe.FindStringSubmatch(rawURL)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// InstagramAPI reads the post's JSON representation. Only the public
// media URLs are used; nothing here needs a logged-in session.
type InstagramAPI struct {
	// Endpoint is a format string taking the shortcode.
	Endpoint string
	Remote   *Remote
}

func (i *InstagramAPI) Name() string        { return "instagram-api" }
func (i *InstagramAPI) WatermarkFree() bool { return true }

type igCandidate struct {
	URL string `json:"url"`
}

type igItem struct {
	MediaType     int           `json:"media_type"`
	VideoVersions []igCandidate `json:"video_versions"`
	ImageVersions struct {
		Candidates []igCandidate `json:"candidates"`
	} `json:"image_versions2"`
	Caption *struct {
		Text string `json:"text"`
	} `json:"caption"`
	CarouselMedia []igItem `json:"carousel_media"`
}

type igNode struct {
	IsVideo    bool   `json:"is_video"`
	VideoURL   string `json:"video_url"`
	DisplayURL string `json:"display_url"`
	Caption    struct {
		Edges []struct {
			Node struct {
				Text string `json:"text"`
			} `json:"node"`
		} `json:"edges"`
	} `json:"edge_media_to_caption"`
	Sidecar struct {
		Edges []struct {
			Node igNode `json:"node"`
		} `json:"edges"`
	} `json:"edge_sidecar_to_children"`
}

type igResponse struct {
	GraphQL struct {
		Media *igNode `json:"shortcode_media"`
	} `json:"graphql"`
	Items []igItem `json:"items"`
}

func (i *InstagramAPI) Attempt(ctx context.Context, req Request) (*Result, error) {
	code, ok := Shortcode(req.URL)
	if !ok {
		return nil, fmt.Errorf("no shortcode in %s: %w", req.URL, media.ErrNoContent)
	}
	if err := httputil.ValidateID(code); err != nil {
		return nil, err
	}

	var resp igResponse
	h := httputil.Header{"X-IG-App-ID": "936619743392459"}
	if err := i.Remote.getJSON(ctx, fmt.Sprintf(i.Endpoint, code), h, &resp); err != nil {
		return nil, err
	}

	title, urls := parseInstagram(&resp)
	if len(urls) == 0 {
		return nil, media.ErrNoContent
	}

	files, err := i.Remote.save(ctx, urls, nil)
	if err != nil {
		return nil, err
	}
	return &Result{
		Title:         title,
		Kind:          kindOf(files),
		Files:         files,
		WatermarkFree: true,
	}, nil
}

// parseInstagram handles both the graphql and the items response shapes.
// Carousel children are returned in post order.
func parseInstagram(resp *igResponse) (string, []string) {
	if n := resp.GraphQL.Media; n != nil {
		var title string
		if len(n.Caption.Edges) > 0 {
			title = n.Caption.Edges[0].Node.Text
		}
		if len(n.Sidecar.Edges) > 0 {
			var urls []string
			for _, e := range n.Sidecar.Edges {
				if u := nodeURL(&e.Node); u != "" {
					urls = append(urls, u)
				}
			}
			return title, urls
		}
		if u := nodeURL(n); u != "" {
			return title, []string{u}
		}
		return title, nil
	}

	if len(resp.Items) == 0 {
		return "", nil
	}
	item := resp.Items[0]
	var title string
	if item.Caption != nil {
		title = item.Caption.Text
	}
	if len(item.CarouselMedia) > 0 {
		var urls []string
		for _, c := range item.CarouselMedia {
			if u := itemURL(&c); u != "" {
				urls = append(urls, u)
			}
		}
		return title, urls
	}
	if u := itemURL(&item); u != "" {
		return title, []string{u}
	}
	return title, nil
}

func nodeURL(n *igNode) string {
	if n.IsVideo && n.VideoURL != "" {
		return n.VideoURL
	}
	return n.DisplayURL
}

func itemURL(it *igItem) string {
	if len(it.VideoVersions) > 0 && it.VideoVersions[0].URL != "" {
		return it.VideoVersions[0].URL
	}
	if len(it.ImageVersions.Candidates) > 0 {
		return it.ImageVersions.Candidates[0].URL
	}
	return ""
}

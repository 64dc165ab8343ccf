package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"mediagrab/internal/httputil"
	"mediagrab/internal/media"
)

var tiktokHeaders = httputil.Header{"Referer": "https://www.tiktok.com/"}

// TikWM queries the tikwm.com API. Its response carries both a clean and a
// watermarked stream; the result reports which one was used.
type TikWM struct {
	Endpoint string
	Remote   *Remote
}

func (t *TikWM) Name() string        { return "tikwm" }
func (t *TikWM) WatermarkFree() bool { return true }

type tikwmResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		Title  string   `json:"title"`
		Play   string   `json:"play"`
		HDPlay string   `json:"hdplay"`
		WMPlay string   `json:"wmplay"`
		Images []string `json:"images"`
	} `json:"data"`
}

func (t *TikWM) Attempt(ctx context.Context, req Request) (*Result, error) {
	var resp tikwmResponse
	if err := t.Remote.getJSON(ctx, withQuery(t.Endpoint, req.URL, "hd", "1"), nil, &resp); err != nil {
		return nil, err
	}
	if resp.Code != 0 {
		return nil, fmt.Errorf("tikwm: %s", resp.Msg)
	}

	urls, clean := parseTikWM(&resp, t.Endpoint)
	if len(urls) == 0 {
		return nil, media.ErrNoContent
	}

	files, err := t.Remote.save(ctx, urls, tiktokHeaders)
	if err != nil {
		return nil, err
	}
	return &Result{
		Title:         resp.Data.Title,
		Kind:          kindOf(files),
		Files:         files,
		WatermarkFree: clean,
	}, nil
}

// parseTikWM returns the media URLs to save and whether they are free of
// the platform watermark.
func parseTikWM(resp *tikwmResponse, base string) ([]string, bool) {
	if len(resp.Data.Images) > 0 {
		urls := make([]string, 0, len(resp.Data.Images))
		for _, img := range resp.Data.Images {
			urls = append(urls, absolute(base, img))
		}
		return urls, true
	}
	if clean := firstNonEmpty(resp.Data.HDPlay, resp.Data.Play); clean != "" {
		return []string{absolute(base, clean)}, true
	}
	if resp.Data.WMPlay != "" {
		return []string{absolute(base, resp.Data.WMPlay)}, false
	}
	return nil, false
}

// Tiklydown queries the tiklydown API, which uses a different response
// shape from tikwm.
type Tiklydown struct {
	Endpoint string
	Remote   *Remote
}

func (t *Tiklydown) Name() string        { return "tiklydown" }
func (t *Tiklydown) WatermarkFree() bool { return true }

type tiklydownResponse struct {
	Title string `json:"title"`
	Video struct {
		NoWatermark string `json:"noWatermark"`
		Watermark   string `json:"watermark"`
	} `json:"video"`
	Images []struct {
		URL string `json:"url"`
	} `json:"images"`
}

func (t *Tiklydown) Attempt(ctx context.Context, req Request) (*Result, error) {
	var resp tiklydownResponse
	if err := t.Remote.getJSON(ctx, withQuery(t.Endpoint, req.URL), nil, &resp); err != nil {
		return nil, err
	}

	urls, clean := parseTiklydown(&resp)
	if len(urls) == 0 {
		return nil, media.ErrNoContent
	}

	files, err := t.Remote.save(ctx, urls, tiktokHeaders)
	if err != nil {
		return nil, err
	}
	return &Result{
		Title:         resp.Title,
		Kind:          kindOf(files),
		Files:         files,
		WatermarkFree: clean,
	}, nil
}

func parseTiklydown(resp *tiklydownResponse) ([]string, bool) {
	if len(resp.Images) > 0 {
		var urls []string
		for _, img := range resp.Images {
			if img.URL != "" {
				urls = append(urls, img.URL)
			}
		}
		return urls, true
	}
	if resp.Video.NoWatermark != "" {
		return []string{resp.Video.NoWatermark}, true
	}
	if resp.Video.Watermark != "" {
		return []string{resp.Video.Watermark}, false
	}
	return nil, false
}

// TikTokPage scrapes the rehydration JSON embedded in the video page. The
// download address it exposes carries the watermark.
type TikTokPage struct {
	Remote *Remote
}

func (t *TikTokPage) Name() string        { return "tiktok-page" }
func (t *TikTokPage) WatermarkFree() bool { return false }

type tiktokItem struct {
	Desc  string `json:"desc"`
	Video struct {
		PlayAddr     string `json:"playAddr"`
		DownloadAddr string `json:"downloadAddr"`
	} `json:"video"`
	ImagePost struct {
		Images []struct {
			ImageURL struct {
				URLList []string `json:"urlList"`
			} `json:"imageURL"`
		} `json:"images"`
	} `json:"imagePost"`
}

func (t *TikTokPage) Attempt(ctx context.Context, req Request) (*Result, error) {
	body, err := httputil.GetHTML(ctx, t.Remote.Page, req.URL, tiktokHeaders)
	if err != nil {
		return nil, err
	}

	item, err := parseTikTokPage(body)
	if err != nil {
		return nil, err
	}

	var urls []string
	for _, img := range item.ImagePost.Images {
		if len(img.ImageURL.URLList) > 0 {
			urls = append(urls, img.ImageURL.URLList[0])
		}
	}
	if len(urls) == 0 {
		if u := firstNonEmpty(item.Video.DownloadAddr, item.Video.PlayAddr); u != "" {
			urls = []string{u}
		}
	}
	if len(urls) == 0 {
		return nil, media.ErrNoContent
	}

	files, err := t.Remote.save(ctx, urls, tiktokHeaders)
	if err != nil {
		return nil, err
	}
	return &Result{
		Title:         item.Desc,
		Kind:          kindOf(files),
		Files:         files,
		WatermarkFree: false,
	}, nil
}

// parseTikTokPage extracts the video item from the page's rehydration
// script.
func parseTikTokPage(body []byte) (*tiktokItem, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parsing page: %w", err)
	}

	raw := strings.TrimSpace(doc.Find("script#__UNIVERSAL_DATA_FOR_REHYDRATION__").First().Text())
	if raw == "" {
		return nil, fmt.Errorf("rehydration data missing: %w", media.ErrNoContent)
	}

	var data struct {
		Scope map[string]json.RawMessage `json:"__DEFAULT_SCOPE__"`
	}
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, fmt.Errorf("parsing rehydration data: %w", err)
	}

	detail, ok := data.Scope["webapp.video-detail"]
	if !ok {
		return nil, errors.New("rehydration data has no video detail")
	}

	var vd struct {
		ItemInfo struct {
			ItemStruct tiktokItem `json:"itemStruct"`
		} `json:"itemInfo"`
	}
	if err := json.Unmarshal(detail, &vd); err != nil {
		return nil, fmt.Errorf("parsing video detail: %w", err)
	}
	return &vd.ItemInfo.ItemStruct, nil
}

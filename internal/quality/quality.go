// Package quality negotiates a requested quality token against the formats
// a source advertises and builds the extraction tool's format expression.
package quality

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

const (
	Default = "default"
	Highest = "highest"

	// Fallback is the lowest-common-denominator expression retried once
	// when the negotiated expression fails.
	Fallback = "best[ext=mp4]/best"

	// window is how far below an explicit height a format may be and still
	// count as the nearest match.
	window = 240
)

// Ladder is the canonical set of quality tokens surfaced to callers.
var Ladder = []int{1080, 720, 480, 360, 240}

var tokenPattern = regexp.MustCompile(`^[0-9]{3,4}p$`)

// Format is one entry of the tool's format listing.
type Format struct {
	ID       string  `json:"format_id"`
	Ext      string  `json:"ext"`
	Height   int     `json:"height"`
	VCodec   string  `json:"vcodec"`
	ACodec   string  `json:"acodec"`
	ABR      float64 `json:"abr"`
	TBR      float64 `json:"tbr"`
	Filesize int64   `json:"filesize"`
}

// HasVideo reports whether the format carries a video stream.
func (f Format) HasVideo() bool {
	return f.Height > 0 && f.VCodec != "none"
}

// Combined reports whether the format carries both audio and video.
func (f Format) Combined() bool {
	return f.HasVideo() && f.ACodec != "" && f.ACodec != "none"
}

// Selection is the outcome of a negotiation.
type Selection struct {
	Expression string // tool format expression
	Resolved   string // predicted quality label of the produced file
	Height     int    // predicted height, 0 when unknown
}

// Normalize maps any token outside the accepted grammar to Default.
func Normalize(token string) string {
	token = strings.ToLower(strings.TrimSpace(token))
	switch {
	case token == Default, token == Highest:
		return token
	case tokenPattern.MatchString(token):
		return token
	default:
		return Default
	}
}

// Height returns the explicit height of a token such as "720p".
func Height(token string) (int, bool) {
	token = Normalize(token)
	if token == Default || token == Highest {
		return 0, false
	}
	h, err := strconv.Atoi(strings.TrimSuffix(token, "p"))
	if err != nil || h <= 0 {
		return 0, false
	}
	return h, true
}

// Label formats a height as a quality token.
func Label(height int) string {
	if height <= 0 {
		return Highest
	}
	return fmt.Sprintf("%dp", height)
}

// Expression builds the format expression for a requested token. The
// alternatives are tried by the tool left to right:
// exact height with best audio, nearest height within the window below,
// best below requested in any container, best combined stream, absolute best.
func Expression(requested string) string {
	h, ok := Height(requested)
	if !ok {
		return "bestvideo+bestaudio/best"
	}
	low := h - window
	if low < 0 {
		low = 0
	}
	return strings.Join([]string{
		fmt.Sprintf("bestvideo[height=%d][ext=mp4]+bestaudio[ext=m4a]", h),
		fmt.Sprintf("bestvideo[height=%d]+bestaudio", h),
		fmt.Sprintf("bestvideo[height<=%d][height>=%d]+bestaudio", h, low),
		fmt.Sprintf("bestvideo[height<=%d]+bestaudio", h),
		fmt.Sprintf("best[height<=%d]", h),
		"best",
		"bestvideo+bestaudio",
	}, "/")
}

// Resolve negotiates requested against formats.
func Resolve(requested string, formats []Format) Selection {
	sel := Selection{Expression: Expression(requested)}
	sel.Height = predict(requested, formats)
	sel.Resolved = Label(sel.Height)
	return sel
}

// predict mirrors the expression ladder over the advertised heights.
func predict(requested string, formats []Format) int {
	var all, combined []int
	for _, f := range formats {
		if !f.HasVideo() {
			continue
		}
		all = append(all, f.Height)
		if f.Combined() {
			combined = append(combined, f.Height)
		}
	}
	if len(all) == 0 {
		return 0
	}

	h, explicit := Height(requested)
	if !explicit {
		return maxOf(all)
	}

	best := 0
	for _, v := range all {
		if v == h {
			return h
		}
		if v < h && v > best {
			best = v
		}
	}
	if best > 0 {
		return best
	}
	// Nothing at or below the request: the tool falls through to the best
	// combined stream, then to the absolute best.
	if len(combined) > 0 {
		return maxOf(combined)
	}
	return maxOf(all)
}

// FallbackHeight predicts the height produced by the Fallback expression.
func FallbackHeight(formats []Format) int {
	var mp4, combined []int
	for _, f := range formats {
		if !f.Combined() {
			continue
		}
		combined = append(combined, f.Height)
		if f.Ext == "mp4" {
			mp4 = append(mp4, f.Height)
		}
	}
	if len(mp4) > 0 {
		return maxOf(mp4)
	}
	if len(combined) > 0 {
		return maxOf(combined)
	}
	return 0
}

// Available filters the canonical ladder to what formats advertise. When
// none of the canonical heights is present it degrades to Highest.
func Available(formats []Format) []string {
	seen := make(map[int]bool)
	for _, f := range formats {
		if f.HasVideo() {
			seen[f.Height] = true
		}
	}
	var out []string
	for _, h := range Ladder {
		if seen[h] {
			out = append(out, Label(h))
		}
	}
	if len(out) == 0 {
		return []string{Highest}
	}
	return out
}

func maxOf(values []int) int {
	sorted := append([]int(nil), values...)
	sort.Ints(sorted)
	return sorted[len(sorted)-1]
}

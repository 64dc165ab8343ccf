package extract

import (
	"fmt"
	"strings"

	"mediagrab/internal/fshare"
	"mediagrab/internal/media"
)

// ReasonExhausted is reported when no attempt carried a specific reason.
const ReasonExhausted = "EXTRACTION_FAILED"

// Manual is a degraded result: human-readable guidance instead of a file.
type Manual struct {
	Reason string
	Text   string
}

// ManualFallback reports whether an exhausted chain for url should degrade
// to manual instructions instead of failing.
func ManualFallback(p media.Platform, url string) bool {
	switch p {
	case media.Fshare:
		return true
	case media.Facebook:
		return IsFacebookPhoto(url)
	default:
		return false
	}
}

// Instructions builds the manual guidance for an exhausted chain. The
// reason is the code of the last attempt that carried one.
func Instructions(p media.Platform, url string, attempts []media.Attempt) Manual {
	reason := ReasonExhausted
	for i := len(attempts) - 1; i >= 0; i-- {
		if attempts[i].Reason != "" {
			reason = attempts[i].Reason
			break
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Automatic download is not available for this %s link (%s).\n", p, reason)
	b.WriteString("To save it manually:\n")

	switch p {
	case media.Fshare:
		fmt.Fprintf(&b, "  1. Open %s in a browser and sign in to your Fshare account.\n", url)
		if reason == fshare.ReasonPasswordRequired {
			b.WriteString("  2. Enter the file password when prompted.\n")
		} else {
			b.WriteString("  2. Wait for the download button to become active.\n")
		}
		b.WriteString("  3. Click Download and keep the file name offered by the site.\n")
	case media.Facebook:
		fmt.Fprintf(&b, "  1. Open %s in a browser while logged in.\n", url)
		b.WriteString("  2. Open the photo menu and choose Download, or open the image in a new tab.\n")
		b.WriteString("  3. Save the image from the new tab.\n")
	default:
		fmt.Fprintf(&b, "  1. Open %s in a browser.\n", url)
		b.WriteString("  2. Use the site's own download or share option.\n")
	}

	if len(attempts) > 0 {
		b.WriteString("Tried:")
		for _, a := range attempts {
			fmt.Fprintf(&b, " %s (%s)", a.Strategy, a.Outcome)
		}
		b.WriteString("\n")
	}

	return Manual{Reason: reason, Text: strings.TrimRight(b.String(), "\n")}
}

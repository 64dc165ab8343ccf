// Package platform classifies source URLs by hostname.
// Classification is a pure function: no network access, no side effects.
package platform

import (
	"net/url"
	"strings"

	"mediagrab/internal/media"
)

type rule struct {
	platform media.Platform
	match    func(host string) bool
}

func contains(sub string) func(string) bool {
	return func(host string) bool { return strings.Contains(host, sub) }
}

// domain matches the exact host or any of its subdomains. Used for short
// names like x.com that would otherwise match unrelated hosts.
func domain(name string) func(string) bool {
	return func(host string) bool { return host == name || strings.HasSuffix(host, "."+name) }
}

// Order matters only for hosts matching several rules, which none of the
// known platforms do today.
var rules = []rule{
	{media.YouTube, contains("youtube.com")},
	{media.YouTube, contains("youtu.be")},
	{media.TikTok, contains("tiktok.com")},
	{media.Instagram, contains("instagram.com")},
	{media.Facebook, contains("facebook.com")},
	{media.Facebook, contains("fb.watch")},
	{media.Facebook, domain("fb.com")},
	{media.Twitter, contains("twitter.com")},
	{media.Twitter, domain("x.com")},
	{media.Fshare, contains("fshare.vn")},
}

// Classify maps a URL to its platform. Malformed URLs and URLs without a
// host classify as media.Unknown.
func Classify(rawURL string) media.Platform {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return media.Unknown
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return media.Unknown
	}
	for _, r := range rules {
		if r.match(host) {
			return r.platform
		}
	}
	return media.Unknown
}

// Supported reports whether p is a platform with an extraction chain.
func Supported(p media.Platform) bool {
	switch p {
	case media.YouTube, media.TikTok, media.Instagram, media.Facebook, media.Twitter, media.Fshare:
		return true
	default:
		return false
	}
}

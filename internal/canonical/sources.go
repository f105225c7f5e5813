package canonical

import (
	"regexp"
	"strings"
)

// Source describes one supported link origin.
type Source struct {
	Name string
	// Pattern matches the link shape inside free text.
	Pattern *regexp.Regexp
	// KeepQuery lists query keys that survive normalization.
	KeepQuery []string
	// Hosts are the bare (www-stripped) hosts that belong to the source.
	Hosts []string
}

// DefaultSources are the link shapes the bot engages on.
var DefaultSources = []Source{
	{
		Name:    "tiktok",
		Pattern: regexp.MustCompile(`https?://(?:[\w-]+\.)*tiktok\.com/[^\s<>"]+`),
		Hosts:   []string{"tiktok.com", "vm.tiktok.com", "vt.tiktok.com", "m.tiktok.com"},
	},
	{
		Name:    "instagram",
		Pattern: regexp.MustCompile(`https?://(?:www\.)?instagram\.com/(?:p|reel|reels)/[^\s<>"]+`),
		Hosts:   []string{"instagram.com"},
	},
	{
		Name:    "youtube_shorts",
		Pattern: regexp.MustCompile(`https?://(?:www\.|m\.)?youtube\.com/shorts/[^\s<>"]+`),
		Hosts:   []string{"youtube.com", "m.youtube.com"},
	},
	{
		Name:      "youtube_music",
		Pattern:   regexp.MustCompile(`https?://music\.youtube\.com/[^\s<>"]+`),
		KeepQuery: []string{"v", "list"},
		Hosts:     []string{"music.youtube.com"},
	},
}

// sourceForHost returns the source owning host, if any.
func sourceForHost(sources []Source, host string) (Source, bool) {
	host = strings.TrimPrefix(strings.ToLower(host), "www.")
	for _, src := range sources {
		for _, h := range src.Hosts {
			if host == h {
				return src, true
			}
		}
	}
	return Source{}, false
}

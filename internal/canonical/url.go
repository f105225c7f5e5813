package canonical

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/JakeFAU/linkloader/internal/media"
)

// Normalize strips tracking noise so equivalent links share one cache key.
// It lowercases the scheme and host, drops "www.", default ports, the fragment,
// a trailing slash, and every query key the owning source does not keep.
// Hosts outside every source keep their full query in sorted key order.
func Normalize(rawURL string, sources []Source) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("url %q has no host", rawURL)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	if u.Scheme == "http" && strings.HasSuffix(u.Host, ":80") {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" && strings.HasSuffix(u.Host, ":443") {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}
	u.Fragment = ""
	u.RawFragment = ""
	if len(u.Path) > 1 {
		u.Path = strings.TrimRight(u.Path, "/")
		u.RawPath = ""
	}

	q := u.Query()
	src, ok := sourceForHost(sources, u.Hostname())
	if !ok {
		// Hosts no source claims keep their query; only its order is fixed.
		u.RawQuery = q.Encode()
		return u.String(), nil
	}
	filtered := url.Values{}
	for _, key := range src.KeepQuery {
		if v, ok := q[key]; ok {
			filtered[key] = v
		}
	}
	u.RawQuery = filtered.Encode()

	return u.String(), nil
}

// Classify derives the content kind from a canonical URL. It is pure: the
// same string always yields the same kind.
func Classify(canonicalURL string) media.ContentKind {
	u, err := url.Parse(canonicalURL)
	if err != nil {
		return media.KindVideo
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	path := strings.ToLower(u.Path)

	switch {
	case strings.Contains(path, "/photo/"):
		return media.KindPhotoGallery
	case host == "instagram.com" && strings.HasPrefix(path, "/p/"):
		return media.KindPhotoGallery
	case host == "music.youtube.com":
		return media.KindAudioOnly
	default:
		return media.KindVideo
	}
}

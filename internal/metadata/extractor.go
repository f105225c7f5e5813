// Package metadata normalizes extraction sidecar records into MediaMetadata
// and renders captions from it.
package metadata

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/JakeFAU/linkloader/internal/media"
)

// Literal fallbacks used when the sidecar has nothing better.
const (
	DefaultAuthor      = "User"
	DefaultTrackTitle  = "Original Audio"
	DefaultTrackArtist = "Bot"

	maxDescriptionRunes = 800
	ellipsis            = "..."
)

// Defaults is the metadata used when a sidecar is missing, malformed or empty.
func Defaults() media.MediaMetadata {
	return media.MediaMetadata{
		Author:      DefaultAuthor,
		TrackTitle:  DefaultTrackTitle,
		TrackArtist: DefaultTrackArtist,
	}
}

// Parse builds MediaMetadata from one sidecar document. It never fails:
// unreadable input degrades to Defaults.
func Parse(data []byte) media.MediaMetadata {
	fields, ok := decodeRecord(data)
	if !ok || len(fields) == 0 {
		return Defaults()
	}

	author := resolveAuthor(fields)
	music := parseMusic(fields["music"])
	track := parseTrack(fields["track"])

	trackArtist := firstNonEmpty(music.Artist, music.AuthorName, music.Author, track.Artist)
	if trackArtist == "" && track.Shape == Named {
		trackArtist = str(fields, "artist")
	}

	return media.MediaMetadata{
		Author:      author,
		Description: resolveDescription(fields),
		TrackTitle:  firstNonEmpty(music.Title, track.Name, DefaultTrackTitle),
		TrackArtist: firstNonEmpty(trackArtist, author),
	}
}

// FromFile parses the sidecar at path. A missing or unreadable file yields
// Defaults.
func FromFile(path string) media.MediaMetadata {
	if path == "" {
		return Defaults()
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Defaults()
	}
	return Parse(data)
}

// FindSidecar returns the first .json file (by name) among paths, or "".
func FindSidecar(paths []string) string {
	var candidates []string
	for _, p := range paths {
		if strings.EqualFold(filepath.Ext(p), ".json") {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		return ""
	}
	sort.Strings(candidates)
	return candidates[0]
}

// Caption renders the rich-text caption. Every interpolated value is escaped.
func Caption(meta media.MediaMetadata) string {
	author := html.EscapeString(firstNonEmpty(meta.Author, DefaultAuthor))
	if meta.Description == "" {
		return fmt.Sprintf("<b>%s</b>", author)
	}
	return fmt.Sprintf("<blockquote expandable><b>%s</b>\n\n%s</blockquote>",
		author, html.EscapeString(meta.Description))
}

// decodeRecord accepts an object or an array whose first element is an object.
func decodeRecord(data []byte) (map[string]json.RawMessage, bool) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, false
	}
	if data[0] == '[' {
		var list []json.RawMessage
		if err := json.Unmarshal(data, &list); err != nil || len(list) == 0 {
			return nil, false
		}
		data = bytes.TrimSpace(list[0])
	}
	if len(data) == 0 || data[0] != '{' {
		return nil, false
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, false
	}
	return fields, true
}

func resolveAuthor(fields map[string]json.RawMessage) string {
	user := parseAuthor(fields["user"])
	var fromUser string
	switch user.Shape {
	case Nested:
		fromUser = firstNonEmpty(user.Nickname, user.UniqueID, user.Name)
	case Named:
		fromUser = user.Name
	case Absent:
	}

	author := parseAuthor(fields["author"])
	return firstNonEmpty(
		fromUser,
		str(fields, "username"),
		firstNonEmpty(author.Nickname, author.Name),
		str(fields, "nick"),
		str(fields, "uploader"),
		DefaultAuthor,
	)
}

func resolveDescription(fields map[string]json.RawMessage) string {
	desc := firstNonEmpty(
		str(fields, "title"),
		str(fields, "desc"),
		str(fields, "description"),
		str(fields, "caption"),
		str(fields, "text"),
	)
	return truncate(desc, maxDescriptionRunes)
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + ellipsis
}

func str(fields map[string]json.RawMessage, key string) string {
	raw, ok := fields[key]
	if !ok {
		return ""
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return ""
	}
	return scalar(v)
}

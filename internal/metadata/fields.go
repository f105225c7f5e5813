package metadata

import (
	"encoding/json"
	"strings"
)

// FieldShape tags how a loosely typed sidecar field was encoded.
type FieldShape int

// Shapes a sidecar field may take.
const (
	Absent FieldShape = iota
	Named
	Nested
)

// AuthorField is the parsed form of "user" (or "author"): a plain string, a
// nested user object, or nothing.
type AuthorField struct {
	Shape    FieldShape
	Name     string
	Nickname string
	UniqueID string
}

// TrackField is the parsed form of "track": a title string, a nested object
// with name and artist, or nothing.
type TrackField struct {
	Shape  FieldShape
	Name   string
	Artist string
}

// MusicField is the nested "music" object. A null or non-object value is
// Absent.
type MusicField struct {
	Shape      FieldShape
	Title      string
	Artist     string
	AuthorName string
	Author     string
}

func parseAuthor(raw json.RawMessage) AuthorField {
	if s, ok := asString(raw); ok {
		if s == "" {
			return AuthorField{}
		}
		return AuthorField{Shape: Named, Name: s}
	}
	var obj struct {
		Nickname any `json:"nickname"`
		UniqueID any `json:"unique_id"`
		Name     any `json:"name"`
	}
	if !asObject(raw, &obj) {
		return AuthorField{}
	}
	return AuthorField{
		Shape:    Nested,
		Nickname: scalar(obj.Nickname),
		UniqueID: scalar(obj.UniqueID),
		Name:     scalar(obj.Name),
	}
}

func parseTrack(raw json.RawMessage) TrackField {
	if s, ok := asString(raw); ok {
		if s == "" {
			return TrackField{}
		}
		return TrackField{Shape: Named, Name: s}
	}
	var obj struct {
		Name   any `json:"name"`
		Artist any `json:"artist"`
	}
	if !asObject(raw, &obj) {
		return TrackField{}
	}
	return TrackField{Shape: Nested, Name: scalar(obj.Name), Artist: scalar(obj.Artist)}
}

func parseMusic(raw json.RawMessage) MusicField {
	var obj struct {
		Title      any `json:"title"`
		Artist     any `json:"artist"`
		AuthorName any `json:"authorName"`
		Author     any `json:"author"`
	}
	if !asObject(raw, &obj) {
		return MusicField{}
	}
	return MusicField{
		Shape:      Nested,
		Title:      scalar(obj.Title),
		Artist:     scalar(obj.Artist),
		AuthorName: scalar(obj.AuthorName),
		Author:     scalar(obj.Author),
	}
}

func asString(raw json.RawMessage) (string, bool) {
	var s string
	if len(raw) == 0 || raw[0] != '"' {
		return "", false
	}
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return strings.TrimSpace(s), true
}

func asObject(raw json.RawMessage, dst any) bool {
	if len(raw) == 0 || raw[0] != '{' {
		return false
	}
	return json.Unmarshal(raw, dst) == nil
}

// scalar renders strings and numbers; every other shape is empty.
func scalar(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		b, _ := json.Marshal(t)
		return string(b)
	default:
		return ""
	}
}

// firstNonEmpty is the fallback combinator used by every chain.
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

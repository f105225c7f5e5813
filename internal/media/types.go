// Package media defines core types shared across the link-to-artifact pipeline.
package media

import (
	"time"
)

// ContentKind classifies a canonical URL and selects the pipeline branch.
type ContentKind string

// Content kinds derived from the canonical URL shape.
const (
	KindVideo        ContentKind = "video"
	KindPhotoGallery ContentKind = "photo_gallery"
	KindAudioOnly    ContentKind = "audio_only"
)

// CanonicalRequest is created once per incoming link and never mutated.
type CanonicalRequest struct {
	RawURL       string      `json:"raw_url"`
	CanonicalURL string      `json:"canonical_url"`
	Kind         ContentKind `json:"content_kind"`
	RequesterID  string      `json:"requester_id"`
}

// UserPreferences are the per-requester delivery toggles.
type UserPreferences struct {
	IncludeAudio        bool `json:"audio"`
	IncludeDescription  bool `json:"desc"`
	DescriptionSeparate bool `json:"sep_desc"`
	IncludeSourceButton bool `json:"link_btn"`
}

// DefaultPreferences returns the preferences applied to unknown requesters.
func DefaultPreferences() UserPreferences {
	return UserPreferences{
		IncludeAudio:        true,
		IncludeDescription:  true,
		DescriptionSeparate: false,
		IncludeSourceButton: true,
	}
}

// PreferenceFlag names a single toggle in UserPreferences.
type PreferenceFlag string

// Toggle names accepted by PreferenceStore.Toggle.
const (
	FlagAudio     PreferenceFlag = "audio"
	FlagDesc      PreferenceFlag = "desc"
	FlagSeparate  PreferenceFlag = "sep"
	FlagSourceBtn PreferenceFlag = "link"
)

// Toggle flips one flag and reports whether the flag was recognized.
func (p UserPreferences) Toggle(flag PreferenceFlag) (UserPreferences, bool) {
	switch flag {
	case FlagAudio:
		p.IncludeAudio = !p.IncludeAudio
	case FlagDesc:
		p.IncludeDescription = !p.IncludeDescription
	case FlagSeparate:
		p.DescriptionSeparate = !p.DescriptionSeparate
	case FlagSourceBtn:
		p.IncludeSourceButton = !p.IncludeSourceButton
	default:
		return p, false
	}
	return p, true
}

// CacheEntry is one row of the artifact cache. Every field except the key and
// LastWriteTime may be absent independently.
type CacheEntry struct {
	CanonicalURL  string    `json:"canonical_url"`
	VideoRef      *string   `json:"video_ref,omitempty"`
	AudioRef      *string   `json:"audio_ref,omitempty"`
	PhotoRefs     []string  `json:"photo_refs,omitempty"`
	Caption       *string   `json:"caption,omitempty"`
	LastWriteTime time.Time `json:"last_write_time"`
}

// DefaultRetention is how long a cache entry stays live after its last write.
const DefaultRetention = 72 * time.Hour

// Stale reports whether the entry is older than retention at now.
func (e CacheEntry) Stale(now time.Time, retention time.Duration) bool {
	return now.Sub(e.LastWriteTime) > retention
}

// CacheUpdate is a partial write. Nil fields are left untouched.
type CacheUpdate struct {
	VideoRef  *string
	AudioRef  *string
	PhotoRefs []string
	Caption   *string
}

// Empty reports whether the update carries no fields.
func (u CacheUpdate) Empty() bool {
	return u.VideoRef == nil && u.AudioRef == nil && len(u.PhotoRefs) == 0 && u.Caption == nil
}

// Apply merges the update into entry and stamps the write time.
func (u CacheUpdate) Apply(entry CacheEntry, at time.Time) CacheEntry {
	if u.VideoRef != nil {
		entry.VideoRef = StringPtr(*u.VideoRef)
	}
	if u.AudioRef != nil {
		entry.AudioRef = StringPtr(*u.AudioRef)
	}
	if len(u.PhotoRefs) > 0 {
		entry.PhotoRefs = append([]string(nil), u.PhotoRefs...)
	}
	if u.Caption != nil {
		entry.Caption = StringPtr(*u.Caption)
	}
	entry.LastWriteTime = at
	return entry
}

// MediaMetadata is the normalized view of a sidecar metadata record.
type MediaMetadata struct {
	Author      string
	Description string
	TrackTitle  string
	TrackArtist string
}

// JobKind is the extraction mode of a single FetchJob.
type JobKind string

// Extraction modes understood by the Extractor.
const (
	JobVideo   JobKind = "video"
	JobAudio   JobKind = "audio"
	JobGallery JobKind = "gallery"
)

// Outcome is the terminal result of one FetchJob.
type Outcome struct {
	Paths []string
	Err   error
}

// Succeeded reports whether the job produced at least one file without error.
func (o Outcome) Succeeded() bool {
	return o.Err == nil && len(o.Paths) > 0
}

// FetchJob is one extraction within a request. It lives until the parent
// workspace is removed.
type FetchJob struct {
	ID        string
	Kind      JobKind
	Workspace string
	Outcome   Outcome
	Duration  time.Duration
}

// ExtractRequest is the contract passed to an external extraction process.
type ExtractRequest struct {
	URL       string
	OutputDir string
	Mode      JobKind
}

// Target addresses a chat and the message being replied to.
type Target struct {
	ChatID  string `json:"chat_id"`
	ReplyTo string `json:"reply_to,omitempty"`
}

// Button is an inline link button.
type Button struct {
	Text string `json:"text"`
	URL  string `json:"url"`
}

// UnitKind selects how a DeliveryUnit is sent.
type UnitKind string

// Delivery unit kinds.
const (
	UnitPhotoGroup UnitKind = "photo_group"
	UnitVideo      UnitKind = "video"
	UnitAudio      UnitKind = "audio"
	UnitText       UnitKind = "text"
)

// Asset is either a local file to upload or a previously returned reference.
type Asset struct {
	Path    string `json:"path,omitempty"`
	Ref     string `json:"ref,omitempty"`
	Caption string `json:"caption,omitempty"`
}

// IsRef reports whether the asset re-delivers an existing artifact.
func (a Asset) IsRef() bool {
	return a.Ref != ""
}

// DeliveryUnit is one transport call.
type DeliveryUnit struct {
	Kind      UnitKind `json:"kind"`
	Assets    []Asset  `json:"assets,omitempty"`
	Text      string   `json:"text,omitempty"`
	Buttons   []Button `json:"buttons,omitempty"`
	Title     string   `json:"title,omitempty"`
	Performer string   `json:"performer,omitempty"`
}

// MessageRef identifies a sent status message.
type MessageRef string

// StringPtr returns a pointer to a copy of s.
func StringPtr(s string) *string {
	return &s
}

// Deref returns the pointed-to string or "".
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

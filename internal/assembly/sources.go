package assembly

import (
	"github.com/JakeFAU/linkloader/internal/media"
)

// Usable reports whether a cache entry can serve the kind without a fetch.
func Usable(kind media.ContentKind, entry *media.CacheEntry) bool {
	if entry == nil {
		return false
	}
	switch kind {
	case media.KindPhotoGallery:
		return len(entry.PhotoRefs) > 0 || media.Deref(entry.VideoRef) != ""
	case media.KindAudioOnly:
		return media.Deref(entry.AudioRef) != ""
	default:
		return media.Deref(entry.VideoRef) != ""
	}
}

// FromCache builds planner input from stored references.
func FromCache(req media.CanonicalRequest, entry media.CacheEntry) Input {
	in := Input{
		CanonicalURL: req.CanonicalURL,
		Kind:         req.Kind,
		Caption:      media.Deref(entry.Caption),
	}
	for _, ref := range entry.PhotoRefs {
		in.Photos = append(in.Photos, media.Asset{Ref: ref})
	}
	if ref := media.Deref(entry.VideoRef); ref != "" {
		in.Video = &media.Asset{Ref: ref}
	}
	if ref := media.Deref(entry.AudioRef); ref != "" {
		in.Audio = &media.Asset{Ref: ref}
	}
	return in
}

// FromFiles builds planner input from local files. The first video is used;
// photos keep the order given.
func FromFiles(req media.CanonicalRequest, meta media.MediaMetadata, caption string, photos, videos []string, audio string) Input {
	in := Input{
		CanonicalURL: req.CanonicalURL,
		Kind:         req.Kind,
		Caption:      caption,
		TrackTitle:   meta.TrackTitle,
		TrackArtist:  meta.TrackArtist,
	}
	if req.Kind != media.KindAudioOnly {
		for _, p := range photos {
			in.Photos = append(in.Photos, media.Asset{Path: p})
		}
		if len(videos) > 0 {
			in.Video = &media.Asset{Path: videos[0]}
		}
	}
	if audio != "" {
		in.Audio = &media.Asset{Path: audio}
	}
	return in
}

package assembly

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/linkloader/internal/media"
)

const testURL = "https://tiktok.com/@user/photo/1?a=1&b=2"

func photos(n int) []media.Asset {
	out := make([]media.Asset, n)
	for i := range out {
		out[i] = media.Asset{Path: fmt.Sprintf("/w/gallery/%02d.jpg", i+1)}
	}
	return out
}

func galleryInput(n int) Input {
	return Input{
		CanonicalURL: testURL,
		Kind:         media.KindPhotoGallery,
		Caption:      "<b>alice</b>",
		TrackTitle:   "Song",
		TrackArtist:  "Band",
		Photos:       photos(n),
		Audio:        &media.Asset{Path: "/w/audio/a.m4a"},
	}
}

func countCaptions(plan Plan) int {
	n := 0
	for _, u := range plan.Units {
		if u.Kind == media.UnitText && u.Text != "" {
			n++
		}
		for _, a := range u.Assets {
			if a.Caption != "" {
				n++
			}
		}
	}
	return n
}

func TestBuildGalleryBatches(t *testing.T) {
	t.Parallel()

	plan := Build(galleryInput(23), media.DefaultPreferences())
	require.Len(t, plan.Units, 4)
	assert.Len(t, plan.Units[0].Assets, 10)
	assert.Len(t, plan.Units[1].Assets, 10)
	assert.Len(t, plan.Units[2].Assets, 3)
	assert.Equal(t, "<b>alice</b>", plan.Units[0].Assets[0].Caption)
	assert.Equal(t, "/w/gallery/01.jpg", plan.Units[0].Assets[0].Path)
	assert.Equal(t, "/w/gallery/23.jpg", plan.Units[2].Assets[2].Path)
	assert.Equal(t, 1, countCaptions(plan))

	last := plan.Units[3]
	assert.Equal(t, media.UnitAudio, last.Kind)
	assert.Equal(t, "Song", last.Title)
	assert.Equal(t, "Band", last.Performer)
	assert.Equal(t, "<b>alice</b>", plan.Caption)

	for _, u := range plan.Units {
		assert.LessOrEqual(t, len(u.Assets), MaxBatch)
	}
}

func TestBuildGallerySeparateDescription(t *testing.T) {
	t.Parallel()

	prefs := media.DefaultPreferences()
	prefs.DescriptionSeparate = true
	plan := Build(galleryInput(12), prefs)

	require.Len(t, plan.Units, 4)
	assert.Equal(t, media.UnitPhotoGroup, plan.Units[0].Kind)
	assert.Equal(t, media.UnitPhotoGroup, plan.Units[1].Kind)
	text := plan.Units[2]
	assert.Equal(t, media.UnitText, text.Kind)
	assert.Equal(t, "<b>alice</b>", text.Text)
	require.Len(t, text.Buttons, 1)
	assert.Equal(t, SourceButtonText, text.Buttons[0].Text)
	assert.Equal(t, testURL, text.Buttons[0].URL)
	assert.Equal(t, media.UnitAudio, plan.Units[3].Kind)
	assert.Equal(t, 1, countCaptions(plan))
}

func TestBuildNoDescription(t *testing.T) {
	t.Parallel()

	prefs := media.DefaultPreferences()
	prefs.IncludeDescription = false
	prefs.DescriptionSeparate = true
	plan := Build(galleryInput(3), prefs)

	assert.Equal(t, 0, countCaptions(plan))
	for _, u := range plan.Units {
		assert.NotEqual(t, media.UnitText, u.Kind)
	}
	assert.Equal(t, "<b>alice</b>", plan.Caption)
}

func TestBuildNoSourceButtonAppendsLink(t *testing.T) {
	t.Parallel()

	prefs := media.DefaultPreferences()
	prefs.IncludeSourceButton = false
	in := Input{
		CanonicalURL: testURL,
		Kind:         media.KindVideo,
		Caption:      "<b>bob</b>",
		Video:        &media.Asset{Path: "/w/video/v.mp4"},
	}
	plan := Build(in, prefs)

	require.Len(t, plan.Units, 1)
	u := plan.Units[0]
	assert.Empty(t, u.Buttons)
	assert.Equal(t, "<b>bob</b>\n\nhttps://tiktok.com/@user/photo/1?a=1&amp;b=2", u.Assets[0].Caption)
}

func TestBuildVideoWithAudio(t *testing.T) {
	t.Parallel()

	in := Input{
		CanonicalURL: testURL,
		Kind:         media.KindVideo,
		Caption:      "<b>bob</b>",
		Video:        &media.Asset{Path: "/w/video/v.mp4"},
		Audio:        &media.Asset{Path: "/w/audio/a.mp3"},
	}
	plan := Build(in, media.DefaultPreferences())

	require.Len(t, plan.Units, 2)
	assert.Equal(t, media.UnitVideo, plan.Units[0].Kind)
	assert.Equal(t, "<b>bob</b>", plan.Units[0].Assets[0].Caption)
	require.Len(t, plan.Units[0].Buttons, 1)
	assert.Equal(t, media.UnitAudio, plan.Units[1].Kind)
	assert.Empty(t, plan.Units[1].Assets[0].Caption)

	prefs := media.DefaultPreferences()
	prefs.IncludeAudio = false
	plan = Build(in, prefs)
	require.Len(t, plan.Units, 1)
}

func TestBuildVideoSeparate(t *testing.T) {
	t.Parallel()

	prefs := media.DefaultPreferences()
	prefs.DescriptionSeparate = true
	in := Input{
		CanonicalURL: testURL,
		Kind:         media.KindVideo,
		Caption:      "<b>bob</b>",
		Video:        &media.Asset{Ref: "video-ref"},
	}
	plan := Build(in, prefs)

	require.Len(t, plan.Units, 2)
	assert.Empty(t, plan.Units[0].Assets[0].Caption)
	assert.Empty(t, plan.Units[0].Buttons)
	assert.Equal(t, media.UnitText, plan.Units[1].Kind)
	assert.Len(t, plan.Units[1].Buttons, 1)
}

func TestBuildAudioOnly(t *testing.T) {
	t.Parallel()

	in := Input{
		CanonicalURL: "https://music.youtube.com/watch?v=1",
		Kind:         media.KindAudioOnly,
		Caption:      "<b>artist</b>",
		TrackTitle:   "Track",
		TrackArtist:  "Artist",
		Audio:        &media.Asset{Path: "/w/audio/a.m4a"},
	}
	plan := Build(in, media.DefaultPreferences())
	require.Len(t, plan.Units, 1)
	assert.Equal(t, media.UnitAudio, plan.Units[0].Kind)
	assert.Equal(t, "<b>artist</b>", plan.Units[0].Assets[0].Caption)
	assert.Equal(t, "Track", plan.Units[0].Title)
	assert.Len(t, plan.Units[0].Buttons, 1)

	// Audio-only ignores the audio preference.
	prefs := media.DefaultPreferences()
	prefs.IncludeAudio = false
	require.Len(t, Build(in, prefs).Units, 1)

	in.Audio = nil
	assert.True(t, Build(in, media.DefaultPreferences()).Empty())
}

func TestBuildGalleryWithOnlyAudio(t *testing.T) {
	t.Parallel()

	in := Input{
		CanonicalURL: "https://tiktok.com/@dan/photo/7",
		Kind:         media.KindPhotoGallery,
		Caption:      "<b>dan</b>",
		TrackTitle:   "Song",
		Audio:        &media.Asset{Path: "/w/gallery/sound.mp3"},
	}
	prefs := media.DefaultPreferences()
	prefs.IncludeAudio = false
	plan := Build(in, prefs)
	require.Len(t, plan.Units, 1)
	assert.Equal(t, media.UnitAudio, plan.Units[0].Kind)
	assert.Equal(t, "<b>dan</b>", plan.Units[0].Assets[0].Caption)
	assert.Equal(t, "Song", plan.Units[0].Title)
	assert.Len(t, plan.Units[0].Buttons, 1)
}

func TestBuildGalleryVideoPost(t *testing.T) {
	t.Parallel()

	in := Input{
		CanonicalURL: "https://instagram.com/p/abc",
		Kind:         media.KindPhotoGallery,
		Caption:      "<b>carol</b>",
		Video:        &media.Asset{Path: "/w/gallery/clip.mp4"},
	}
	plan := Build(in, media.DefaultPreferences())
	require.Len(t, plan.Units, 1)
	assert.Equal(t, media.UnitVideo, plan.Units[0].Kind)
	assert.Equal(t, "<b>carol</b>", plan.Units[0].Assets[0].Caption)
}

func TestUsableAndFromCache(t *testing.T) {
	t.Parallel()

	assert.False(t, Usable(media.KindVideo, nil))
	assert.False(t, Usable(media.KindVideo, &media.CacheEntry{AudioRef: media.StringPtr("a")}))
	assert.True(t, Usable(media.KindVideo, &media.CacheEntry{VideoRef: media.StringPtr("v")}))
	assert.True(t, Usable(media.KindPhotoGallery, &media.CacheEntry{PhotoRefs: []string{"p"}}))
	assert.False(t, Usable(media.KindPhotoGallery, &media.CacheEntry{AudioRef: media.StringPtr("a")}))
	assert.True(t, Usable(media.KindAudioOnly, &media.CacheEntry{AudioRef: media.StringPtr("a")}))
	assert.False(t, Usable(media.KindAudioOnly, &media.CacheEntry{VideoRef: media.StringPtr("v")}))

	req := media.CanonicalRequest{CanonicalURL: testURL, Kind: media.KindPhotoGallery}
	entry := media.CacheEntry{
		PhotoRefs: []string{"p1", "p2"},
		AudioRef:  media.StringPtr("a1"),
		Caption:   media.StringPtr("<b>x</b>"),
	}
	in := FromCache(req, entry)
	require.Len(t, in.Photos, 2)
	assert.Equal(t, "p1", in.Photos[0].Ref)
	assert.Equal(t, "a1", in.Audio.Ref)
	assert.Nil(t, in.Video)
	assert.Equal(t, "<b>x</b>", in.Caption)
}

func TestFromFiles(t *testing.T) {
	t.Parallel()

	meta := media.MediaMetadata{TrackTitle: "T", TrackArtist: "A"}
	req := media.CanonicalRequest{CanonicalURL: testURL, Kind: media.KindVideo}
	in := FromFiles(req, meta, "cap", nil, []string{"/v1.mp4", "/v2.mp4"}, "/a.mp3")
	assert.Equal(t, "/v1.mp4", in.Video.Path)
	assert.Equal(t, "/a.mp3", in.Audio.Path)
	assert.Equal(t, "T", in.TrackTitle)

	req.Kind = media.KindAudioOnly
	in = FromFiles(req, meta, "cap", []string{"/p.jpg"}, []string{"/v.mp4"}, "/a.mp3")
	assert.Nil(t, in.Video)
	assert.Empty(t, in.Photos)
	assert.Equal(t, "/a.mp3", in.Audio.Path)
}

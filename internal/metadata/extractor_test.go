package metadata

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/linkloader/internal/media"
)

func TestParseFallbackChains(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		doc  string
		want media.MediaMetadata
	}{
		{
			name: "nested user and null music",
			doc:  `{"user":{"nickname":"Nick","unique_id":"nick1"},"music":null,"track":{"name":"X","artist":"Y"},"desc":"hello"}`,
			want: media.MediaMetadata{Author: "Nick", Description: "hello", TrackTitle: "X", TrackArtist: "Y"},
		},
		{
			name: "string user and string track",
			doc:  `{"user":"plain","track":"Song","artist":"Band","title":"t"}`,
			want: media.MediaMetadata{Author: "plain", Description: "t", TrackTitle: "Song", TrackArtist: "Band"},
		},
		{
			name: "music object wins",
			doc:  `{"uploader":"up","music":{"title":"M","authorName":"A"},"track":{"name":"X","artist":"Y"}}`,
			want: media.MediaMetadata{Author: "up", TrackTitle: "M", TrackArtist: "A"},
		},
		{
			name: "author object and artist falls back to author",
			doc:  `{"author":{"name":"Ann"},"caption":"  cap  "}`,
			want: media.MediaMetadata{Author: "Ann", Description: "cap", TrackTitle: "Original Audio", TrackArtist: "Ann"},
		},
		{
			name: "unique id when nickname empty",
			doc:  `{"user":{"nickname":"","unique_id":"uid"}}`,
			want: media.MediaMetadata{Author: "uid", TrackTitle: "Original Audio", TrackArtist: "uid"},
		},
		{
			name: "array of one",
			doc:  `[{"username":"u","text":"body"}]`,
			want: media.MediaMetadata{Author: "u", Description: "body", TrackTitle: "Original Audio", TrackArtist: "u"},
		},
		{
			name: "fields present but useless",
			doc:  `{"user":null,"track":5}`,
			want: media.MediaMetadata{Author: "User", TrackTitle: "Original Audio", TrackArtist: "User"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, Parse([]byte(tc.doc)))
		})
	}
}

func TestParseDefaults(t *testing.T) {
	t.Parallel()

	for _, doc := range []string{``, `{}`, `[]`, `not json`, `"str"`, `[1]`} {
		got := Parse([]byte(doc))
		assert.Equal(t, Defaults(), got, doc)
	}
	assert.Equal(t, "Original Audio", Defaults().TrackTitle)
	assert.Equal(t, "Bot", Defaults().TrackArtist)
	assert.Equal(t, "User", Defaults().Author)
}

func TestParseTruncatesDescription(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("é", 900)
	got := Parse([]byte(`{"desc":"` + long + `"}`))
	require.Equal(t, 803, len([]rune(got.Description)))
	require.True(t, strings.HasSuffix(got.Description, "..."))

	exact := strings.Repeat("a", 800)
	got = Parse([]byte(`{"desc":"` + exact + `"}`))
	require.Equal(t, exact, got.Description)
}

func TestFromFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "video.info.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"uploader":"someone"}`), 0o600))

	require.Equal(t, "someone", FromFile(path).Author)
	require.Equal(t, Defaults(), FromFile(filepath.Join(dir, "missing.json")))
	require.Equal(t, Defaults(), FromFile(""))
}

func TestFindSidecar(t *testing.T) {
	t.Parallel()

	got := FindSidecar([]string{"/w/b.info.json", "/w/video.mp4", "/w/a.JSON"})
	require.Equal(t, "/w/a.JSON", got)
	require.Empty(t, FindSidecar([]string{"/w/1.jpg"}))
}

func TestCaption(t *testing.T) {
	t.Parallel()

	withDesc := Caption(media.MediaMetadata{Author: "<Ann>", Description: "a & b"})
	require.Equal(t, "<blockquote expandable><b>&lt;Ann&gt;</b>\n\na &amp; b</blockquote>", withDesc)

	noDesc := Caption(media.MediaMetadata{Author: "Ann"})
	require.Equal(t, "<b>Ann</b>", noDesc)
}

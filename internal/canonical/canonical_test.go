package canonical

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/linkloader/internal/media"
)

func TestExtract(t *testing.T) {
	t.Parallel()

	c := New(Config{}, nil, zap.NewNop())
	cases := []struct {
		name string
		text string
		want string
		ok   bool
	}{
		{"tiktok short", "look https://vm.tiktok.com/ZMabc123/ lol", "https://vm.tiktok.com/ZMabc123/", true},
		{"instagram reel", "https://www.instagram.com/reel/Cxyz/?igsh=abc", "https://www.instagram.com/reel/Cxyz/?igsh=abc", true},
		{"shorts", "see https://youtube.com/shorts/abcd?si=1", "https://youtube.com/shorts/abcd?si=1", true},
		{"music", "https://music.youtube.com/watch?v=123&si=x", "https://music.youtube.com/watch?v=123&si=x", true},
		{"first wins", "https://youtube.com/shorts/a then https://vm.tiktok.com/b", "https://youtube.com/shorts/a", true},
		{"unsupported", "https://example.com/video/1", "", false},
		{"plain youtube", "https://youtube.com/watch?v=1", "", false},
		{"no link", "hello there", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, ok := c.Extract(tc.text)
			require.Equal(t, tc.ok, ok)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"https://www.tiktok.com/@user/video/123?_r=1&_t=abc#top": "https://tiktok.com/@user/video/123",
		"https://www.instagram.com/p/Cxyz/?igsh=abc":             "https://instagram.com/p/Cxyz",
		"https://music.youtube.com/watch?v=123&si=x&list=PL1":    "https://music.youtube.com/watch?list=PL1&v=123",
		"HTTPS://YouTube.com:443/shorts/abcd?si=1&feature=share": "https://youtube.com/shorts/abcd",
		"https://example.com/":                                   "https://example.com/",
		"https://consent.example.com/Path/?z=2&continue=a#x":     "https://consent.example.com/Path?continue=a&z=2",
	}
	for in, want := range cases {
		got, err := Normalize(in, DefaultSources)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}

	_, err := Normalize("not a url", DefaultSources)
	require.Error(t, err)
}

func TestClassify(t *testing.T) {
	t.Parallel()

	require.Equal(t, media.KindPhotoGallery, Classify("https://tiktok.com/@user/photo/123"))
	require.Equal(t, media.KindPhotoGallery, Classify("https://instagram.com/p/Cxyz"))
	require.Equal(t, media.KindVideo, Classify("https://instagram.com/reel/Cxyz"))
	require.Equal(t, media.KindAudioOnly, Classify("https://music.youtube.com/watch?v=1"))
	require.Equal(t, media.KindVideo, Classify("https://tiktok.com/@user/video/1"))
	require.Equal(t, media.KindVideo, Classify("https://youtube.com/shorts/abcd"))
	// Pure: repeated calls agree.
	require.Equal(t, Classify("https://tiktok.com/@u/photo/9"), Classify("https://tiktok.com/@u/photo/9"))
}

func TestCanonicalizeFollowsRedirects(t *testing.T) {
	t.Parallel()

	seen := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/short":
			http.Redirect(w, r, "/@user/photo/777?_r=1", http.StatusFound)
		default:
			seen <- r.Method + " " + r.Header.Get("User-Agent")
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer srv.Close()

	c := New(Config{UserAgent: "linkloader-test"}, srv.Client(), zap.NewNop())
	req, err := c.Canonicalize(context.Background(), srv.URL+"/short", "42")
	require.NoError(t, err)
	// The test server's host belongs to no source, so its query survives.
	require.Equal(t, srv.URL+"/@user/photo/777?_r=1", req.CanonicalURL)
	require.Equal(t, srv.URL+"/short", req.RawURL)
	require.Equal(t, media.KindPhotoGallery, req.Kind)
	require.Equal(t, "42", req.RequesterID)
	require.Equal(t, "HEAD linkloader-test", <-seen)
}

func TestResolveFallsBackOnTimeout(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(block)

	c := New(Config{ProbeTimeout: 50 * time.Millisecond}, srv.Client(), zap.NewNop())
	raw := srv.URL + "/video/1"
	got, err := c.Resolve(context.Background(), raw)
	require.Error(t, err)
	require.True(t, errors.Is(err, media.ErrResolutionDegraded))
	require.Equal(t, raw, got)

	req, err := c.Canonicalize(context.Background(), raw, "1")
	require.NoError(t, err)
	require.Equal(t, raw, req.CanonicalURL)
	require.Equal(t, media.KindVideo, req.Kind)
}

package extract

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/linkloader/internal/media"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestRunnerWritesIntoOutputDir(t *testing.T) {
	t.Parallel()
	requireShell(t)

	dir := filepath.Join(t.TempDir(), "video")
	r := NewRunner(map[media.JobKind]Command{
		media.JobVideo: {Binary: "sh", Args: []string{"-c", `printf '%s' "$1" > "$2/video.mp4"`, "sh", "{url}", "{dir}"}},
	}, time.Second, zap.NewNop())

	err := r.Extract(context.Background(), media.ExtractRequest{
		URL: "https://tiktok.com/@u/video/1", OutputDir: dir, Mode: media.JobVideo,
	})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "video.mp4"))
	require.NoError(t, err)
	require.Equal(t, "https://tiktok.com/@u/video/1", string(data))
}

func TestRunnerNonZeroExit(t *testing.T) {
	t.Parallel()
	requireShell(t)

	r := NewRunner(map[media.JobKind]Command{
		media.JobAudio: {Binary: "sh", Args: []string{"-c", "echo boom >&2; exit 3"}},
	}, time.Second, nil)

	err := r.Extract(context.Background(), media.ExtractRequest{OutputDir: t.TempDir(), Mode: media.JobAudio})
	require.Error(t, err)
	require.True(t, errors.Is(err, media.ErrExtractionFailed))
	require.Contains(t, err.Error(), "boom")
}

func TestRunnerTimeout(t *testing.T) {
	t.Parallel()
	requireShell(t)

	r := NewRunner(map[media.JobKind]Command{
		media.JobAudio: {Binary: "sh", Args: []string{"-c", "exec sleep 5"}},
	}, 100*time.Millisecond, nil)

	start := time.Now()
	err := r.Extract(context.Background(), media.ExtractRequest{OutputDir: t.TempDir(), Mode: media.JobAudio})
	require.Error(t, err)
	require.True(t, errors.Is(err, media.ErrExtractionFailed))
	require.Contains(t, err.Error(), "timed out")
	require.Less(t, time.Since(start), 4*time.Second)
}

func TestRunnerDefaultsFillMissingModes(t *testing.T) {
	t.Parallel()

	r := NewRunner(map[media.JobKind]Command{media.JobVideo: {Binary: "custom"}}, 0, nil)
	require.Equal(t, "custom", r.commands[media.JobVideo].Binary)
	require.Equal(t, "yt-dlp", r.commands[media.JobAudio].Binary)
	require.Equal(t, "gallery-dl", r.commands[media.JobGallery].Binary)
	require.Equal(t, defaultTimeout, r.timeout)

	err := (&Runner{commands: map[media.JobKind]Command{}}).Extract(context.Background(),
		media.ExtractRequest{OutputDir: t.TempDir(), Mode: media.JobGallery})
	require.True(t, errors.Is(err, media.ErrExtractionFailed))
}

func TestExpandPlaceholders(t *testing.T) {
	t.Parallel()

	got := expand([]string{"-o", "{dir}/x.%(ext)s", "{url}"}, media.ExtractRequest{URL: "u", OutputDir: "/d"})
	require.Equal(t, []string{"-o", "/d/x.%(ext)s", "u"}, got)
}

func TestListFilesAndClassify(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	for _, name := range []string{"b.jpg", "a.PNG", "clip.mp4", "song.mp3", "info.json", "video.mp4.part"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o600))
	}
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "c.webp"), []byte("x"), 0o600))

	files, err := ListFiles(dir)
	require.NoError(t, err)
	require.Len(t, files, 6)
	require.Equal(t, filepath.Join(dir, "a.PNG"), files[0])

	require.Equal(t, ClassPhoto, Classify("a.PNG"))
	require.Equal(t, ClassVideo, Classify("clip.mp4"))
	require.Equal(t, ClassAudio, Classify("song.mp3"))
	require.Equal(t, ClassSidecar, Classify("info.json"))
	require.Equal(t, ClassOther, Classify("notes.txt"))
	require.True(t, ClassAudio.IsMedia())
	require.False(t, ClassSidecar.IsMedia())

	_, err = ListFiles(filepath.Join(dir, "missing"))
	require.Error(t, err)
}

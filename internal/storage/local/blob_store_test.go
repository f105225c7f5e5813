package local_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/linkloader/internal/storage/local"
)

func TestNewCreatesBaseDir(t *testing.T) {
	t.Parallel()

	base := filepath.Join(t.TempDir(), "artifacts", "nested")
	store, err := local.New(local.Config{BaseDir: base})
	require.NoError(t, err)
	require.NotNil(t, store)
	require.DirExists(t, base)

	entries, err := os.ReadDir(base)
	require.NoError(t, err)
	require.Empty(t, entries, "probe file is removed")
}

func TestNewRejectsBadBaseDir(t *testing.T) {
	t.Parallel()

	_, err := local.New(local.Config{})
	require.Error(t, err)

	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
	_, err = local.New(local.Config{BaseDir: file})
	require.Error(t, err)
}

func TestPutObject(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	store, err := local.New(local.Config{BaseDir: base})
	require.NoError(t, err)

	cases := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{name: "flat", path: "req-1/01-video.mp4"},
		{name: "nested", path: "chats/42/abc/02-photo_03.jpg"},
		{name: "overwrite", path: "req-1/01-video.mp4"},
		{name: "traversal", path: "../escape.mp4", wantErr: true},
		{name: "empty", path: " ", wantErr: true},
	}
	for _, tc := range cases {
		uri, err := store.PutObject(context.Background(), tc.path, "video/mp4", strings.NewReader(tc.name))
		if tc.wantErr {
			require.ErrorIs(t, err, local.ErrInvalidPath, tc.name)
			continue
		}
		require.NoError(t, err, tc.name)
		full := filepath.Join(base, tc.path)
		require.Equal(t, "file://"+full, uri, tc.name)
		// #nosec G304 -- test reads from the controlled temp directory.
		got, err := os.ReadFile(full)
		require.NoError(t, err)
		require.Equal(t, tc.name, string(got), tc.name)
	}

	matches, err := filepath.Glob(filepath.Join(base, "req-1", ".*part-*"))
	require.NoError(t, err)
	require.Empty(t, matches, "temp files are cleaned up")
}

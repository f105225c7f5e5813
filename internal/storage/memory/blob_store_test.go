package memory

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBlobStorePutObjectCopiesData(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	payload := []byte("content")
	uri, err := store.PutObject(context.Background(), "req-1/photo_01.jpg", "image/jpeg", bytes.NewReader(payload))
	require.NoError(t, err)
	require.Equal(t, "memory://req-1/photo_01.jpg", uri)

	payload[0] = 'C'
	stored, contentType, ok := store.Object("req-1/photo_01.jpg")
	require.True(t, ok)
	require.Equal(t, "content", string(stored))
	require.Equal(t, "image/jpeg", contentType)
	require.Equal(t, []string{"req-1/photo_01.jpg"}, store.Paths())

	_, _, ok = store.Object("missing")
	require.False(t, ok)
}

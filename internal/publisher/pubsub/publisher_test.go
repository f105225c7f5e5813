package pubsub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/linkloader/internal/media"
)

func TestAttributes(t *testing.T) {
	t.Parallel()

	got := attributes(media.DeliveryEvent{Kind: media.KindVideo, Outcome: "complete", CacheHit: true})
	require.Equal(t, map[string]string{"content_kind": "video", "outcome": "complete", "cache_hit": "true"}, got)
	require.Nil(t, attributes("plain"))
}

func TestPublishWithoutClient(t *testing.T) {
	t.Parallel()

	_, err := New(nil).Publish(context.Background(), "t", media.DeliveryEvent{})
	require.Error(t, err)
}

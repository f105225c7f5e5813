package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/linkloader/internal/media"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestCacheStoreLookupMissAndHit(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1700000000, 0).UTC()}
	store := NewCacheStore(clock, 0)
	ctx := context.Background()

	got, err := store.Lookup(ctx, "https://tiktok.com/@u/video/1")
	require.NoError(t, err)
	require.Nil(t, got)

	require.NoError(t, store.Upsert(ctx, "https://tiktok.com/@u/video/1", media.CacheUpdate{
		VideoRef: media.StringPtr("vid-1"),
		Caption:  media.StringPtr("<b>u</b>"),
	}))
	got, err = store.Lookup(ctx, "https://tiktok.com/@u/video/1")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "vid-1", media.Deref(got.VideoRef))
	require.Nil(t, got.AudioRef)
	require.Equal(t, clock.Now(), got.LastWriteTime)
}

func TestCacheStoreNeverReturnsStale(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1700000000, 0).UTC()}
	store := NewCacheStore(clock, 72*time.Hour)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, "a", media.CacheUpdate{VideoRef: media.StringPtr("v")}))
	require.NoError(t, store.Upsert(ctx, "b", media.CacheUpdate{VideoRef: media.StringPtr("v")}))

	clock.Advance(72 * time.Hour)
	got, err := store.Lookup(ctx, "a")
	require.NoError(t, err)
	require.NotNil(t, got, "exactly at retention is still live")

	clock.Advance(time.Second)
	got, err = store.Lookup(ctx, "a")
	require.NoError(t, err)
	require.Nil(t, got)
	require.Equal(t, 0, store.Len(), "lookup sweeps every stale row")
}

func TestCacheStoreUpsertReplacesStaleRow(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1700000000, 0).UTC()}
	store := NewCacheStore(clock, time.Hour)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, "a", media.CacheUpdate{VideoRef: media.StringPtr("old")}))
	clock.Advance(2 * time.Hour)
	require.NoError(t, store.Upsert(ctx, "a", media.CacheUpdate{AudioRef: media.StringPtr("aud")}))

	got, err := store.Lookup(ctx, "a")
	require.NoError(t, err)
	require.Nil(t, got.VideoRef)
	require.Equal(t, "aud", media.Deref(got.AudioRef))
}

func TestCacheStoreConcurrentDistinctFieldsCommute(t *testing.T) {
	t.Parallel()

	store := NewCacheStore(nil, 0)
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		assert.NoError(t, store.Upsert(ctx, "k", media.CacheUpdate{VideoRef: media.StringPtr("v")}))
	}()
	go func() {
		defer wg.Done()
		assert.NoError(t, store.Upsert(ctx, "k", media.CacheUpdate{AudioRef: media.StringPtr("a")}))
	}()
	wg.Wait()

	got, err := store.Lookup(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "v", media.Deref(got.VideoRef))
	require.Equal(t, "a", media.Deref(got.AudioRef))
}

func TestCacheStoreReturnsCopies(t *testing.T) {
	t.Parallel()

	store := NewCacheStore(nil, 0)
	ctx := context.Background()
	require.NoError(t, store.Upsert(ctx, "g", media.CacheUpdate{PhotoRefs: []string{"p1", "p2"}}))

	got, err := store.Lookup(ctx, "g")
	require.NoError(t, err)
	got.PhotoRefs[0] = "mutated"

	again, err := store.Lookup(ctx, "g")
	require.NoError(t, err)
	require.Equal(t, []string{"p1", "p2"}, again.PhotoRefs)
	require.NoError(t, store.Upsert(ctx, "g", media.CacheUpdate{}))
}

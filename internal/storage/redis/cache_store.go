// Package redis provides a Redis-backed artifact cache. Each canonical URL is
// one hash whose TTL is reset on every write.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/JakeFAU/linkloader/internal/media"
)

const (
	defaultPrefix = "linkloader:cache:"

	fieldVideo     = "video_ref"
	fieldAudio     = "audio_ref"
	fieldPhotos    = "photo_refs"
	fieldCaption   = "caption"
	fieldWriteTime = "last_write_time"

	maxWatchAttempts = 3
)

// Config selects the Redis endpoint.
type Config struct {
	Addr      string
	Username  string
	Password  string
	DB        int
	KeyPrefix string
	Retention time.Duration
}

// CacheStore implements media.CacheStore on Redis hashes.
type CacheStore struct {
	client    goredis.UniversalClient
	prefix    string
	retention time.Duration
	clock     media.Clock

	// beforeEvict runs between reading a stale row and deleting it. Tests
	// use it to interleave a concurrent write.
	beforeEvict func(key string)
}

// NewClient dials Redis and verifies the connection.
func NewClient(ctx context.Context, cfg Config) (*goredis.Client, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("cache.redis.addr is required")
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// NewCacheStore wraps an existing client.
func NewCacheStore(client goredis.UniversalClient, cfg Config, clock media.Clock) (*CacheStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = defaultPrefix
	}
	retention := cfg.Retention
	if retention <= 0 {
		retention = media.DefaultRetention
	}
	return &CacheStore{client: client, prefix: prefix, retention: retention, clock: clock}, nil
}

// Close releases the client.
func (s *CacheStore) Close() error {
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("close redis: %w", err)
	}
	return nil
}

// Lookup reads the hash. Key expiry does the sweep; a row that is stale by
// the clock but not yet expired is deleted here, under WATCH so a concurrent
// write is never deleted.
func (s *CacheStore) Lookup(ctx context.Context, canonicalURL string) (*media.CacheEntry, error) {
	key := s.key(canonicalURL)
	var found *media.CacheEntry
	txf := func(tx *goredis.Tx) error {
		found = nil
		fields, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return fmt.Errorf("hgetall %s: %w", key, err)
		}
		if len(fields) == 0 {
			return nil
		}
		entry, err := decode(canonicalURL, fields)
		if err != nil {
			return err
		}
		if !entry.Stale(s.now(), s.retention) {
			found = &entry
			return nil
		}
		if s.beforeEvict != nil {
			s.beforeEvict(key)
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Del(ctx, key)
			return nil
		})
		return err
	}
	if err := s.watch(ctx, key, txf); err != nil {
		return nil, fmt.Errorf("lookup %s: %w", key, err)
	}
	return found, nil
}

// Upsert writes the provided fields and refreshes the TTL atomically. An
// existing hash that is already stale is dropped in the same transaction.
func (s *CacheStore) Upsert(ctx context.Context, canonicalURL string, update media.CacheUpdate) error {
	if update.Empty() {
		return nil
	}
	key := s.key(canonicalURL)
	now := s.now()

	values := map[string]any{fieldWriteTime: now.Format(time.RFC3339Nano)}
	if update.VideoRef != nil {
		values[fieldVideo] = *update.VideoRef
	}
	if update.AudioRef != nil {
		values[fieldAudio] = *update.AudioRef
	}
	if len(update.PhotoRefs) > 0 {
		encoded, err := json.Marshal(update.PhotoRefs)
		if err != nil {
			return fmt.Errorf("encode photo_refs: %w", err)
		}
		values[fieldPhotos] = string(encoded)
	}
	if update.Caption != nil {
		values[fieldCaption] = *update.Caption
	}

	txf := func(tx *goredis.Tx) error {
		stale := false
		raw, err := tx.HGet(ctx, key, fieldWriteTime).Result()
		switch {
		case errors.Is(err, goredis.Nil):
		case err != nil:
			return fmt.Errorf("hget %s: %w", key, err)
		default:
			written, perr := time.Parse(time.RFC3339Nano, raw)
			stale = perr != nil || now.Sub(written) > s.retention
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			if stale {
				pipe.Del(ctx, key)
			}
			pipe.HSet(ctx, key, values)
			pipe.Expire(ctx, key, s.retention)
			return nil
		})
		return err
	}

	if err := s.watch(ctx, key, txf); err != nil {
		return fmt.Errorf("upsert %s: %w", key, err)
	}
	return nil
}

// watch runs txf optimistically on key, retrying when another client
// modified it first.
func (s *CacheStore) watch(ctx context.Context, key string, txf func(*goredis.Tx) error) error {
	for attempt := 0; attempt < maxWatchAttempts; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, goredis.TxFailedErr) {
			continue
		}
		return err
	}
	return goredis.TxFailedErr
}

func decode(canonicalURL string, fields map[string]string) (media.CacheEntry, error) {
	entry := media.CacheEntry{CanonicalURL: canonicalURL}
	if v, ok := fields[fieldVideo]; ok {
		entry.VideoRef = media.StringPtr(v)
	}
	if v, ok := fields[fieldAudio]; ok {
		entry.AudioRef = media.StringPtr(v)
	}
	if v, ok := fields[fieldCaption]; ok {
		entry.Caption = media.StringPtr(v)
	}
	if v, ok := fields[fieldPhotos]; ok && v != "" {
		if err := json.Unmarshal([]byte(v), &entry.PhotoRefs); err != nil {
			return media.CacheEntry{}, fmt.Errorf("decode photo_refs: %w", err)
		}
	}
	written, err := time.Parse(time.RFC3339Nano, fields[fieldWriteTime])
	if err != nil {
		return media.CacheEntry{}, fmt.Errorf("decode last_write_time: %w", err)
	}
	entry.LastWriteTime = written
	return entry, nil
}

func (s *CacheStore) key(canonicalURL string) string {
	return s.prefix + canonicalURL
}

func (s *CacheStore) now() time.Time {
	if s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock.Now()
}

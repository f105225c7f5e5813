package memory

import (
	"context"
	"sync"
	"time"

	"github.com/JakeFAU/linkloader/internal/media"
)

// CacheStore is a mutex-guarded artifact cache for development and tests.
type CacheStore struct {
	mu        sync.Mutex
	entries   map[string]media.CacheEntry
	clock     media.Clock
	retention time.Duration
}

// NewCacheStore constructs a CacheStore. A nil clock uses time.Now.
func NewCacheStore(clock media.Clock, retention time.Duration) *CacheStore {
	if retention <= 0 {
		retention = media.DefaultRetention
	}
	return &CacheStore{
		entries:   make(map[string]media.CacheEntry),
		clock:     clock,
		retention: retention,
	}
}

// Lookup sweeps stale entries and returns a copy of the live entry, if any.
func (s *CacheStore) Lookup(_ context.Context, canonicalURL string) (*media.CacheEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for key, entry := range s.entries {
		if entry.Stale(now, s.retention) {
			delete(s.entries, key)
		}
	}
	entry, ok := s.entries[canonicalURL]
	if !ok {
		return nil, nil
	}
	out := cloneEntry(entry)
	return &out, nil
}

// Upsert writes the provided fields, replacing a stale row for the key.
func (s *CacheStore) Upsert(_ context.Context, canonicalURL string, update media.CacheUpdate) error {
	if update.Empty() {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	entry, ok := s.entries[canonicalURL]
	if !ok || entry.Stale(now, s.retention) {
		entry = media.CacheEntry{CanonicalURL: canonicalURL}
	}
	s.entries[canonicalURL] = update.Apply(entry, now)
	return nil
}

// Len returns the number of rows, stale or not.
func (s *CacheStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *CacheStore) now() time.Time {
	if s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock.Now()
}

func cloneEntry(e media.CacheEntry) media.CacheEntry {
	out := e
	if e.VideoRef != nil {
		out.VideoRef = media.StringPtr(*e.VideoRef)
	}
	if e.AudioRef != nil {
		out.AudioRef = media.StringPtr(*e.AudioRef)
	}
	if e.Caption != nil {
		out.Caption = media.StringPtr(*e.Caption)
	}
	if e.PhotoRefs != nil {
		out.PhotoRefs = append([]string(nil), e.PhotoRefs...)
	}
	return out
}

package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/JakeFAU/linkloader/internal/media"
)

// RequestStore provides an in-memory request tracker.
type RequestStore struct {
	mu       sync.RWMutex
	requests map[string]media.RequestRecord
}

// NewRequestStore constructs a RequestStore.
func NewRequestStore() *RequestStore {
	return &RequestStore{requests: make(map[string]media.RequestRecord)}
}

// Create stores a new record.
func (s *RequestStore) Create(_ context.Context, rec media.RequestRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.requests[rec.ID]; exists {
		return errors.New("request already exists")
	}
	s.requests[rec.ID] = rec
	return nil
}

// Update replaces an existing record.
func (s *RequestStore) Update(_ context.Context, rec media.RequestRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.requests[rec.ID]; !ok {
		return fmt.Errorf("update %s: %w", rec.ID, media.ErrRequestNotFound)
	}
	s.requests[rec.ID] = rec
	return nil
}

// Get fetches a record by ID.
func (s *RequestStore) Get(_ context.Context, id string) (media.RequestRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.requests[id]
	if !ok {
		return media.RequestRecord{}, fmt.Errorf("get %s: %w", id, media.ErrRequestNotFound)
	}
	return rec, nil
}

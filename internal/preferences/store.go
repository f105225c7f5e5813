// Package preferences persists per-requester delivery toggles as one flat
// JSON document keyed by requester id.
package preferences

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/linkloader/internal/media"
)

// Document is the backing blob for the preference map.
type Document interface {
	// Load returns the stored bytes, or nil when nothing was saved yet.
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
}

// ErrUnknownFlag is returned by Toggle for names outside the known set.
var ErrUnknownFlag = errors.New("unknown preference flag")

// Store implements media.PreferenceStore. The whole document is held in
// memory after the first access and rewritten on every toggle.
type Store struct {
	doc    Document
	logger *zap.Logger

	mu     sync.Mutex
	loaded bool
	prefs  map[string]media.UserPreferences
}

// NewStore wraps doc.
func NewStore(doc Document, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{doc: doc, logger: logger}
}

// Get returns the requester's preferences, or the defaults for an unknown
// requester. Defaults are not persisted until the first toggle.
func (s *Store) Get(ctx context.Context, requesterID string) (media.UserPreferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(ctx); err != nil {
		return media.UserPreferences{}, err
	}
	if p, ok := s.prefs[requesterID]; ok {
		return p, nil
	}
	return media.DefaultPreferences(), nil
}

// Toggle flips one flag and persists the document.
func (s *Store) Toggle(ctx context.Context, requesterID string, flag media.PreferenceFlag) (media.UserPreferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(ctx); err != nil {
		return media.UserPreferences{}, err
	}
	current, ok := s.prefs[requesterID]
	if !ok {
		current = media.DefaultPreferences()
	}
	next, known := current.Toggle(flag)
	if !known {
		return current, fmt.Errorf("%w: %q", ErrUnknownFlag, flag)
	}

	s.prefs[requesterID] = next
	data, err := json.MarshalIndent(s.prefs, "", "    ")
	if err != nil {
		s.prefs[requesterID] = current
		return current, fmt.Errorf("encode preferences: %w", err)
	}
	if err := s.doc.Save(ctx, data); err != nil {
		s.prefs[requesterID] = current
		return current, fmt.Errorf("save preferences: %w", err)
	}
	return next, nil
}

// ensureLoaded reads the document once. An unreadable document starts empty
// rather than blocking every request.
func (s *Store) ensureLoaded(ctx context.Context) error {
	if s.loaded {
		return nil
	}
	data, err := s.doc.Load(ctx)
	if err != nil {
		return fmt.Errorf("load preferences: %w", err)
	}
	prefs := make(map[string]media.UserPreferences)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &prefs); err != nil {
			s.logger.Error("preference document is malformed, starting empty", zap.Error(err))
			prefs = make(map[string]media.UserPreferences)
		}
	}
	s.prefs = prefs
	s.loaded = true
	return nil
}

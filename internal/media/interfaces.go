package media

import (
	"context"
	"io"
	"time"
)

// CacheStore maps canonical URLs to previously delivered artifact references.
type CacheStore interface {
	// Lookup evicts stale entries and returns the live entry for url, or nil.
	Lookup(ctx context.Context, canonicalURL string) (*CacheEntry, error)
	// Upsert inserts the key if absent and writes only the provided fields.
	Upsert(ctx context.Context, canonicalURL string, update CacheUpdate) error
}

// PreferenceStore persists UserPreferences keyed by requester identity.
type PreferenceStore interface {
	Get(ctx context.Context, requesterID string) (UserPreferences, error)
	Toggle(ctx context.Context, requesterID string, flag PreferenceFlag) (UserPreferences, error)
}

// Extractor runs one external extraction process to completion.
type Extractor interface {
	Extract(ctx context.Context, req ExtractRequest) error
}

// Transport delivers assets and status messages to a chat.
type Transport interface {
	SendStatus(ctx context.Context, target Target, text string) (MessageRef, error)
	EditStatus(ctx context.Context, target Target, msg MessageRef, text string) error
	DeleteStatus(ctx context.Context, target Target, msg MessageRef) error
	// Deliver sends one unit and returns one durable reference per asset.
	Deliver(ctx context.Context, target Target, unit DeliveryUnit) ([]string, error)
	SendDocument(ctx context.Context, chatID string, name string, data []byte, caption string) error
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Limiter throttles work per source host.
type Limiter interface {
	Wait(ctx context.Context, url string) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces request and job IDs.
type IDGenerator interface {
	NewID() (string, error)
}

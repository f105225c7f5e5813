package media

import (
	"context"
	"errors"
	"time"
)

// RequestStatus is the tracked lifecycle state of a submitted link.
type RequestStatus string

// Request statuses reported by the HTTP adapter.
const (
	RequestQueued    RequestStatus = "queued"
	RequestRunning   RequestStatus = "running"
	RequestSucceeded RequestStatus = "succeeded"
	RequestFailed    RequestStatus = "failed"
	RequestIgnored   RequestStatus = "ignored"
)

// Terminal reports whether no further transitions are expected.
func (s RequestStatus) Terminal() bool {
	switch s {
	case RequestSucceeded, RequestFailed, RequestIgnored:
		return true
	default:
		return false
	}
}

// ErrRequestNotFound is returned by RequestStore.Get for unknown IDs.
var ErrRequestNotFound = errors.New("request not found")

// RequestRecord is the tracked view of one submitted link.
type RequestRecord struct {
	ID           string        `json:"request_id"`
	RawURL       string        `json:"raw_url,omitempty"`
	CanonicalURL string        `json:"canonical_url,omitempty"`
	Kind         ContentKind   `json:"content_kind,omitempty"`
	RequesterID  string        `json:"requester_id"`
	Status       RequestStatus `json:"status"`
	CacheHit     bool          `json:"cache_hit"`
	ErrorText    string        `json:"error,omitempty"`
	Created      time.Time     `json:"created_at"`
	Started      *time.Time    `json:"started_at,omitempty"`
	Finished     *time.Time    `json:"finished_at,omitempty"`
}

// RequestStore tracks request status for observers.
type RequestStore interface {
	Create(ctx context.Context, rec RequestRecord) error
	Update(ctx context.Context, rec RequestRecord) error
	Get(ctx context.Context, id string) (RequestRecord, error)
}

// DeliveryEvent is published once per completed request.
type DeliveryEvent struct {
	RequestID    string      `json:"request_id"`
	CanonicalURL string      `json:"canonical_url"`
	Kind         ContentKind `json:"content_kind"`
	RequesterID  string      `json:"requester_id"`
	Outcome      string      `json:"outcome"`
	CacheHit     bool        `json:"cache_hit"`
	Refs         []string    `json:"refs,omitempty"`
	ErrorText    string      `json:"error,omitempty"`
	DurationMS   int64       `json:"duration_ms"`
	CompletedAt  time.Time   `json:"completed_at"`
}

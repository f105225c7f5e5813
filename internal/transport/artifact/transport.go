// Package artifact is a delivery transport that uploads local assets to a
// blob store and hands back the blob URI as the durable reference. It backs
// the HTTP adapter and local development, where there is no chat platform
// to deliver to.
package artifact

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/linkloader/internal/media"
)

// ErrUnknownStatus is returned when editing or deleting a status message
// that was never sent or is already gone.
var ErrUnknownStatus = errors.New("unknown status message")

// DefaultCapacity bounds both the status operation log and the number of
// live status messages.
const DefaultCapacity = 1000

// StatusEvent is one status message operation, kept for inspection.
type StatusEvent struct {
	ChatID string
	Ref    media.MessageRef
	Op     string
	Text   string
	At     time.Time
}

// record is the manifest written for every delivered unit.
type record struct {
	Target    media.Target       `json:"target"`
	Unit      media.DeliveryUnit `json:"unit"`
	Refs      []string           `json:"refs"`
	Delivered time.Time          `json:"delivered_at"`
}

// Transport implements media.Transport on top of a media.BlobStore.
type Transport struct {
	blobs  media.BlobStore
	ids    media.IDGenerator
	clock  media.Clock
	logger *zap.Logger

	capacity int

	mu       sync.Mutex
	seq      uint64
	statuses map[media.MessageRef]liveStatus
	log      []StatusEvent
}

type liveStatus struct {
	text string
	seq  uint64
}

// Option adjusts a Transport.
type Option func(*Transport)

// WithCapacity overrides DefaultCapacity.
func WithCapacity(n int) Option {
	return func(t *Transport) {
		if n > 0 {
			t.capacity = n
		}
	}
}

// New builds a Transport.
func New(blobs media.BlobStore, ids media.IDGenerator, clock media.Clock, logger *zap.Logger, opts ...Option) (*Transport, error) {
	if blobs == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if ids == nil {
		return nil, fmt.Errorf("id generator is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Transport{
		blobs:    blobs,
		ids:      ids,
		clock:    clock,
		logger:   logger,
		capacity: DefaultCapacity,
		statuses: make(map[media.MessageRef]liveStatus),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// SendStatus records a new status message.
func (t *Transport) SendStatus(_ context.Context, target media.Target, text string) (media.MessageRef, error) {
	id, err := t.ids.NewID()
	if err != nil {
		return "", fmt.Errorf("status id: %w", err)
	}
	ref := media.MessageRef(id)
	t.mu.Lock()
	if len(t.statuses) >= t.capacity {
		t.evictOldest()
	}
	t.seq++
	t.statuses[ref] = liveStatus{text: text, seq: t.seq}
	t.append(target.ChatID, ref, "send", text)
	t.mu.Unlock()
	t.logger.Info("status", zap.String("chat_id", target.ChatID), zap.String("text", text))
	return ref, nil
}

// EditStatus replaces the text of a live status message.
func (t *Transport) EditStatus(_ context.Context, target media.Target, msg media.MessageRef, text string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	live, ok := t.statuses[msg]
	if !ok {
		return fmt.Errorf("edit %s: %w", msg, ErrUnknownStatus)
	}
	live.text = text
	t.statuses[msg] = live
	t.append(target.ChatID, msg, "edit", text)
	t.logger.Info("status edited", zap.String("chat_id", target.ChatID), zap.String("text", text))
	return nil
}

// DeleteStatus removes a live status message.
func (t *Transport) DeleteStatus(_ context.Context, target media.Target, msg media.MessageRef) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.statuses[msg]; !ok {
		return fmt.Errorf("delete %s: %w", msg, ErrUnknownStatus)
	}
	delete(t.statuses, msg)
	t.append(target.ChatID, msg, "delete", "")
	return nil
}

// ReleaseStatus forgets a status message that stays visible after its request
// finished, such as a failure notice. Unknown refs are ignored.
func (t *Transport) ReleaseStatus(msg media.MessageRef) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.statuses, msg)
}

// LiveStatuses reports how many status messages are still tracked.
func (t *Transport) LiveStatuses() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.statuses)
}

// Statuses returns a copy of the most recent status operations, oldest first.
func (t *Transport) Statuses() []StatusEvent {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]StatusEvent(nil), t.log...)
}

// Deliver uploads every local asset in the unit and returns one reference per
// asset. Assets that already carry a reference are passed through untouched.
// A manifest of the unit is written next to the uploads.
func (t *Transport) Deliver(ctx context.Context, target media.Target, unit media.DeliveryUnit) ([]string, error) {
	id, err := t.ids.NewID()
	if err != nil {
		return nil, fmt.Errorf("delivery id: %w", err)
	}
	prefix := path.Join("chats", safeSegment(target.ChatID), id)

	refs := make([]string, 0, len(unit.Assets))
	for i, asset := range unit.Assets {
		if asset.IsRef() {
			refs = append(refs, asset.Ref)
			continue
		}
		ref, err := t.upload(ctx, prefix, i, asset.Path)
		if err != nil {
			return refs, err
		}
		refs = append(refs, ref)
	}

	manifest, err := json.Marshal(record{Target: target, Unit: unit, Refs: refs, Delivered: t.now()})
	if err != nil {
		return refs, fmt.Errorf("encode manifest: %w", err)
	}
	if _, err := t.blobs.PutObject(ctx, path.Join(prefix, "unit.json"), "application/json", bytes.NewReader(manifest)); err != nil {
		return refs, fmt.Errorf("write manifest: %w", err)
	}

	t.logger.Debug("unit delivered",
		zap.String("chat_id", target.ChatID),
		zap.String("unit_kind", string(unit.Kind)),
		zap.Int("refs", len(refs)))
	return refs, nil
}

// SendDocument stores a named document under the chat's documents prefix.
func (t *Transport) SendDocument(ctx context.Context, chatID string, name string, data []byte, caption string) error {
	id, err := t.ids.NewID()
	if err != nil {
		return fmt.Errorf("document id: %w", err)
	}
	key := path.Join("documents", safeSegment(chatID), id, safeSegment(name))
	if _, err := t.blobs.PutObject(ctx, key, contentType(name), bytes.NewReader(data)); err != nil {
		return fmt.Errorf("store document %s: %w", name, err)
	}
	if caption != "" {
		if _, err := t.blobs.PutObject(ctx, key+".caption.html", "text/html", bytes.NewReader([]byte(caption))); err != nil {
			return fmt.Errorf("store caption for %s: %w", name, err)
		}
	}
	return nil
}

func (t *Transport) upload(ctx context.Context, prefix string, index int, local string) (string, error) {
	f, err := os.Open(filepath.Clean(local))
	if err != nil {
		return "", fmt.Errorf("open asset %s: %w", local, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			t.logger.Debug("close asset", zap.String("path", local), zap.Error(cerr))
		}
	}()

	key := path.Join(prefix, fmt.Sprintf("%02d-%s", index, safeSegment(filepath.Base(local))))
	ref, err := t.blobs.PutObject(ctx, key, contentType(local), f)
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", local, err)
	}
	return ref, nil
}

func (t *Transport) append(chatID string, ref media.MessageRef, op, text string) {
	if len(t.log) >= t.capacity {
		t.log = append(t.log[:0], t.log[len(t.log)-t.capacity+1:]...)
	}
	t.log = append(t.log, StatusEvent{ChatID: chatID, Ref: ref, Op: op, Text: text, At: t.now()})
}

// evictOldest drops the longest-lived status. Callers hold mu.
func (t *Transport) evictOldest() {
	var (
		oldest    media.MessageRef
		oldestSeq uint64
	)
	for ref, live := range t.statuses {
		if oldest == "" || live.seq < oldestSeq {
			oldest, oldestSeq = ref, live.seq
		}
	}
	delete(t.statuses, oldest)
	t.logger.Debug("evicted status message", zap.String("ref", string(oldest)))
}

func (t *Transport) now() time.Time {
	if t.clock == nil {
		return time.Now().UTC()
	}
	return t.clock.Now()
}

func contentType(name string) string {
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// safeSegment keeps a single path element free of separators and dot
// segments.
func safeSegment(s string) string {
	s = filepath.Base(filepath.Clean("/" + s))
	if s == "/" || s == "." || s == ".." || s == "" {
		return "_"
	}
	return s
}

// Package memory keeps recent delivery events in-process. It is the default
// event sink when no broker is configured.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/linkloader/internal/media"
)

// DefaultCapacity bounds how many publishes are retained.
const DefaultCapacity = 1000

// PublishedMessage captures one publish call.
type PublishedMessage struct {
	ID      string
	Topic   string
	Payload any
}

// Publisher retains the most recent publishes, oldest first.
type Publisher struct {
	mu       sync.RWMutex
	capacity int
	seq      uint64
	messages []PublishedMessage
}

// New returns a Publisher holding at most DefaultCapacity messages.
func New() *Publisher {
	return NewWithCapacity(DefaultCapacity)
}

// NewWithCapacity returns a Publisher holding at most capacity messages.
func NewWithCapacity(capacity int) *Publisher {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Publisher{capacity: capacity}
}

// Publish records the message and returns a sequential ID.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	id := fmt.Sprintf("memory-%d", p.seq)
	if len(p.messages) == p.capacity {
		p.messages = append(p.messages[:0], p.messages[1:]...)
	}
	p.messages = append(p.messages, PublishedMessage{ID: id, Topic: topic, Payload: payload})
	return id, nil
}

// Messages returns a copy of the retained publishes.
func (p *Publisher) Messages() []PublishedMessage {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]PublishedMessage, len(p.messages))
	copy(out, p.messages)
	return out
}

// Events returns the retained payloads that are delivery events.
func (p *Publisher) Events() []media.DeliveryEvent {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []media.DeliveryEvent
	for _, m := range p.messages {
		if ev, ok := m.Payload.(media.DeliveryEvent); ok {
			out = append(out, ev)
		}
	}
	return out
}

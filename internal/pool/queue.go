package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrClosed is returned when submitting to a pool that has been closed.
var ErrClosed = errors.New("pool closed")

type item struct {
	ctx    context.Context
	name   string
	task   Task
	future *Future
}

// queue is a bounded in-memory queue with context-aware operations. Closing
// it never closes the channel, so a racing enqueue cannot panic.
type queue struct {
	ch      chan item
	stop    chan struct{}
	closeMu sync.RWMutex
	closed  bool
}

func newQueue(capacity int) *queue {
	return &queue{
		ch:   make(chan item, capacity),
		stop: make(chan struct{}),
	}
}

// enqueue holds the read lock while blocked so close cannot complete until
// the item is either buffered or rejected.
func (q *queue) enqueue(ctx context.Context, it item) error {
	q.closeMu.RLock()
	defer q.closeMu.RUnlock()
	if q.closed {
		return ErrClosed
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- it:
		return nil
	}
}

// dequeue pops the next item. After close it keeps returning buffered items
// until the buffer is empty, then ErrClosed.
func (q *queue) dequeue(ctx context.Context) (item, error) {
	select {
	case <-ctx.Done():
		return item{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case it := <-q.ch:
		return it, nil
	case <-q.stop:
		select {
		case it := <-q.ch:
			return it, nil
		default:
			return item{}, ErrClosed
		}
	}
}

func (q *queue) close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.stop)
	q.closed = true
}

// drain removes whatever is still buffered.
func (q *queue) drain() []item {
	var rest []item
	for {
		select {
		case it := <-q.ch:
			rest = append(rest, it)
		default:
			return rest
		}
	}
}

// Package memory provides the bounded in-process run queue.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/JakeFAU/prelaunch-audit/internal/audit"
)

var (
	// ErrClosed is returned once the queue has been closed and drained.
	ErrClosed = audit.ErrQueueClosed
	// ErrFull is returned by TryEnqueue when no slot is free.
	ErrFull = errors.New("queue full")
)

// Queue is a bounded in-memory queue with context-aware operations.
type Queue struct {
	ch      chan audit.QueueItem
	closeMu sync.RWMutex
	closed  bool
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	if capacity < 0 {
		capacity = 0
	}
	return &Queue{
		ch: make(chan audit.QueueItem, capacity),
	}
}

// Enqueue pushes an item, waiting for a free slot until ctx ends.
func (q *Queue) Enqueue(ctx context.Context, item audit.QueueItem) error {
	q.closeMu.RLock()
	defer q.closeMu.RUnlock()
	if q.closed {
		return ErrClosed
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- item:
		return nil
	}
}

// TryEnqueue pushes an item without waiting.
func (q *Queue) TryEnqueue(item audit.QueueItem) error {
	q.closeMu.RLock()
	defer q.closeMu.RUnlock()
	if q.closed {
		return ErrClosed
	}
	select {
	case q.ch <- item:
		return nil
	default:
		return ErrFull
	}
}

// Dequeue pops the next item, respecting context cancellation.
func (q *Queue) Dequeue(ctx context.Context) (audit.QueueItem, error) {
	select {
	case <-ctx.Done():
		return audit.QueueItem{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case item, ok := <-q.ch:
		if !ok {
			return audit.QueueItem{}, ErrClosed
		}
		return item, nil
	}
}

// Len reports how many items are waiting.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close stops accepting items. Items already queued can still be dequeued.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}

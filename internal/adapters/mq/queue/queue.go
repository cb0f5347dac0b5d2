// Package queue provides bounded in-memory queues for rescore jobs and the
// score update stream.
package queue

import (
	"context"
	"sync"

	"github.com/okian/sphere/pkg/metrics"
)

const defaultCapacity = 10000

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue[T any] interface {
	// Enqueue adds an item. It returns false if the queue is full or closed.
	Enqueue(ctx context.Context, item T) bool
	// Dequeue returns a channel fed until the queue is closed or ctx is done.
	Dequeue(ctx context.Context) <-chan T
	// Drain removes and returns up to max queued items without blocking.
	// max <= 0 drains everything currently queued.
	Drain(max int) []T
	Len() int
	Close() error
	IsClosed() bool
}

// InMemoryQueue implements Queue over a buffered channel.
type InMemoryQueue[T any] struct {
	name     string
	items    chan T
	capacity int

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a queue named name; the name labels its metrics.
func NewInMemoryQueue[T any](name string, opts ...Option) *InMemoryQueue[T] {
	cfg := config{capacity: defaultCapacity}
	for _, opt := range opts {
		opt(&cfg)
	}
	q := &InMemoryQueue[T]{
		name:     name,
		items:    make(chan T, cfg.capacity),
		capacity: cfg.capacity,
	}
	metrics.UpdateQueue(name, 0, q.capacity)
	return q
}

// Enqueue implements Queue.
func (q *InMemoryQueue[T]) Enqueue(ctx context.Context, item T) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordEnqueue(q.name, "closed")
		return false
	}
	select {
	case q.items <- item:
		metrics.RecordEnqueue(q.name, "ok")
		metrics.UpdateQueue(q.name, len(q.items), q.capacity)
		return true
	case <-ctx.Done():
		metrics.RecordEnqueue(q.name, "cancelled")
		return false
	default:
		metrics.RecordEnqueue(q.name, "full")
		return false
	}
}

// Dequeue implements Queue.
func (q *InMemoryQueue[T]) Dequeue(ctx context.Context) <-chan T {
	out := make(chan T)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case item, ok := <-q.items:
				if !ok {
					return
				}
				select {
				case out <- item:
					metrics.UpdateQueue(q.name, len(q.items), q.capacity)
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// Drain implements Queue.
func (q *InMemoryQueue[T]) Drain(max int) []T {
	var out []T
	for max <= 0 || len(out) < max {
		select {
		case item, ok := <-q.items:
			if !ok {
				return out
			}
			out = append(out, item)
		default:
			metrics.UpdateQueue(q.name, len(q.items), q.capacity)
			return out
		}
	}
	metrics.UpdateQueue(q.name, len(q.items), q.capacity)
	return out
}

// Len returns the number of queued items.
func (q *InMemoryQueue[T]) Len() int { return len(q.items) }

// Capacity returns the queue bound.
func (q *InMemoryQueue[T]) Capacity() int { return q.capacity }

// Close stops accepting items. Queued items can still be drained.
func (q *InMemoryQueue[T]) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	close(q.items)
	q.closed = true
	return nil
}

// IsClosed reports whether Close was called.
func (q *InMemoryQueue[T]) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}

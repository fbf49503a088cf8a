// Package queue provides a goroutine-safe FIFO queue used to hand audio chunks
// from one pipeline to another.
package queue

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Push after Close, and by Pop once a closed queue is drained.
var ErrClosed = errors.New("queue closed")

// Queue is a FIFO queue that can hold any type. It is unbounded unless created
// with a positive capacity, in which case Push blocks while the queue is full.
type Queue[T any] struct {
	mu       sync.Mutex
	items    []T
	capacity int
	closed   bool

	// notEmpty and notFull are signalled (non-blocking, capacity 1) whenever
	// the corresponding condition may have become true.
	notEmpty chan struct{}
	notFull  chan struct{}
	done     chan struct{}
}

// New creates and returns a new Queue. A capacity of zero or less means unbounded.
func New[T any](capacity int) *Queue[T] {
	if capacity < 0 {
		capacity = 0
	}
	return &Queue[T]{
		capacity: capacity,
		notEmpty: make(chan struct{}, 1),
		notFull:  make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// Push adds an element to the end of the queue. On a bounded queue it blocks
// until there is room, the context is done, or the queue is closed.
func (q *Queue[T]) Push(ctx context.Context, item T) error {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return ErrClosed
		}
		if q.capacity == 0 || len(q.items) < q.capacity {
			q.items = append(q.items, item)
			q.mu.Unlock()
			signal(q.notEmpty)
			return nil
		}
		q.mu.Unlock()

		select {
		case <-q.notFull:
		case <-q.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Pop removes and returns the front element, blocking until one is available,
// the context is done, or the queue is closed and drained.
func (q *Queue[T]) Pop(ctx context.Context) (T, error) {
	for {
		item, ok, closed := q.tryPop()
		if ok {
			return item, nil
		}
		if closed {
			var zero T
			return zero, ErrClosed
		}

		select {
		case <-q.notEmpty:
		case <-q.done:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

// TryPop removes and returns the front element without blocking.
// The boolean indicates whether an element was dequeued.
func (q *Queue[T]) TryPop() (T, bool) {
	item, ok, _ := q.tryPop()
	return item, ok
}

func (q *Queue[T]) tryPop() (item T, ok bool, closed bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return item, false, q.closed
	}
	item = q.items[0]
	var zero T
	q.items[0] = zero
	q.items = q.items[1:]
	if len(q.items) > 0 {
		signal(q.notEmpty)
	}
	signal(q.notFull)
	return item, true, false
}

// Len returns the number of elements in the queue.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close stops the queue from accepting new elements. Elements already queued
// can still be popped. Close is idempotent.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.done)
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// Package queue hands raw records from the log reader to normalize workers.
package queue

import (
	"context"
	"sync"

	"github.com/okian/tourney-ingest/internal/domain/model"
	"github.com/okian/tourney-ingest/pkg/metrics"
)

const defaultQueueCapacity = 10000

// Record is the payload type flowing through the queue.
type Record = model.RawEvent

// Queue provides enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue blocks until the record is buffered, the queue is closed or ctx
	// is done.
	Enqueue(ctx context.Context, r Record) error

	// Dequeue returns the channel workers read from. It is closed once the
	// queue is closed and drained.
	Dequeue() <-chan Record

	// Len returns the current number of queued records.
	Len() int

	// Close stops accepting records. Buffered records stay readable.
	Close() error
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	records  chan Record
	capacity int

	mu       sync.RWMutex
	closed   bool
	done     chan struct{}
	doneOnce sync.Once
}

var _ Queue = (*InMemoryQueue)(nil)

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity: defaultQueueCapacity,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	q.records = make(chan Record, q.capacity)
	metrics.UpdateQueueDepth(0)
	return q
}

// Enqueue implements Queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, r Record) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrClosed
	}

	select {
	case q.records <- r:
		metrics.UpdateQueueDepth(len(q.records))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.done:
		return ErrClosed
	}
}

// Dequeue implements Queue.
func (q *InMemoryQueue) Dequeue() <-chan Record {
	return q.records
}

// Len implements Queue.
func (q *InMemoryQueue) Len() int {
	size := len(q.records)
	metrics.UpdateQueueDepth(size)
	return size
}

// Close implements Queue. Blocked producers are released with ErrClosed.
func (q *InMemoryQueue) Close() error {
	// Producers blocked in Enqueue hold the read lock.
	q.signalDone()

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.records)
	q.closed = true
	return nil
}

func (q *InMemoryQueue) signalDone() {
	q.doneOnce.Do(func() { close(q.done) })
}


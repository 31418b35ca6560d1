// Package queue provides the bounded processing queue between the upload
// service and the pipeline workers. Enqueue is idempotent per document: a
// document that is already queued or currently being processed is not
// admitted a second time, so at most one pipeline run per document ID is
// in flight at any moment.
package queue

import (
	"errors"
	"log/slog"
	"sync"
)

// ErrQueueFull is returned when the queue is at capacity.
var ErrQueueFull = errors.New("processing queue is full")

// DefaultSize is the default queue capacity.
const DefaultSize = 256

// Queue is a bounded FIFO of document IDs awaiting pipeline execution.
type Queue struct {
	ch     chan string
	logger *slog.Logger

	mu      sync.Mutex
	pending map[string]struct{} // queued or running
}

// New creates a queue with the given capacity.
func New(size int, logger *slog.Logger) *Queue {
	if size <= 0 {
		size = DefaultSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		ch:      make(chan string, size),
		logger:  logger.With("component", "queue"),
		pending: make(map[string]struct{}),
	}
}

// Enqueue adds a document for processing. It is non-blocking. Returns
// (true, nil) if the document was admitted, (false, nil) if it is already
// queued or running (a no-op, not an error), and (false, ErrQueueFull) if
// the queue is at capacity.
func (q *Queue) Enqueue(docID string) (bool, error) {
	q.mu.Lock()
	if _, exists := q.pending[docID]; exists {
		q.mu.Unlock()
		q.logger.Debug("document already pending, skipping enqueue", "document_id", docID)
		return false, nil
	}
	q.pending[docID] = struct{}{}
	q.mu.Unlock()

	select {
	case q.ch <- docID:
		return true, nil
	default:
		q.mu.Lock()
		delete(q.pending, docID)
		q.mu.Unlock()
		return false, ErrQueueFull
	}
}

// Depth returns the number of queued (not yet claimed) documents.
func (q *Queue) Depth() int {
	return len(q.ch)
}

// Pending reports whether a document is queued or currently running.
func (q *Queue) Pending(docID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.pending[docID]
	return ok
}

// take returns the channel workers receive from.
func (q *Queue) take() <-chan string {
	return q.ch
}

// done releases a document's pending slot. Called by workers after the
// pipeline run completes (success or failure), re-enabling future
// re-enqueues.
func (q *Queue) done(docID string) {
	q.mu.Lock()
	delete(q.pending, docID)
	q.mu.Unlock()
}

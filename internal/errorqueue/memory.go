package errorqueue

import (
	"context"
	"sync"
)

// MemoryQueue collects entries in memory; used in tests and local runs.
type MemoryQueue struct {
	mu      sync.Mutex
	entries []Entry
}

// NewMemoryQueue builds an empty queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{}
}

func (q *MemoryQueue) Enqueue(_ context.Context, entry Entry) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = append(q.entries, entry)
	return nil
}

// Entries returns a snapshot of everything enqueued so far.
func (q *MemoryQueue) Entries() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Entry(nil), q.entries...)
}

package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryQueue is an in-process channel-backed queue for the inline backend
// and for tests.
type MemoryQueue struct {
	ch chan uuid.UUID

	mu     sync.Mutex
	closed bool
}

func NewMemoryQueue(capacity int) *MemoryQueue {
	if capacity <= 0 {
		capacity = 1024
	}
	return &MemoryQueue{ch: make(chan uuid.UUID, capacity)}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, ingestionID uuid.UUID) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return errors.New("queue closed")
	}
	q.mu.Unlock()

	select {
	case q.ch <- ingestionID:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemoryQueue) Dequeue(ctx context.Context, timeout time.Duration) (uuid.UUID, bool, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case id, open := <-q.ch:
		if !open {
			return uuid.Nil, false, errors.New("queue closed")
		}
		return id, true, nil
	case <-timer.C:
		return uuid.Nil, false, nil
	case <-ctx.Done():
		return uuid.Nil, false, ctx.Err()
	}
}

func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
	return nil
}

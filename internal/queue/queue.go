package queue

import (
	"context"
	"errors"
	"sync"

	"github.com/maltedev/alkoteka-scraper/internal/request"
)

var (
	ErrQueueEmpty  = errors.New("queue is empty")
	ErrQueueClosed = errors.New("queue is closed")
)

// WorkItem is a page waiting to be fetched. Category is the normalized seed
// URL the item was discovered from.
type WorkItem struct {
	URL      string
	Kind     request.Kind
	Category string
	Priority int
}

type Queue interface {
	Push(item *WorkItem) error
	Pop(ctx context.Context) (*WorkItem, error)
	Size() int
	Close() error
}

// InMemoryQueue orders items by descending priority and keeps FIFO order
// within one priority.
type InMemoryQueue struct {
	items  []*WorkItem
	mu     sync.Mutex
	wake   chan struct{}
	closed bool
}

func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{
		items: make([]*WorkItem, 0),
		wake:  make(chan struct{}),
	}
}

func (q *InMemoryQueue) Push(item *WorkItem) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	q.insert(item)
	q.broadcast()

	return nil
}

// Pop blocks until an item is available, the queue is closed and drained,
// or ctx is done.
func (q *InMemoryQueue) Pop(ctx context.Context) (*WorkItem, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			item := q.items[0]
			q.items[0] = nil
			q.items = q.items[1:]
			q.mu.Unlock()
			return item, nil
		}
		if q.closed {
			q.mu.Unlock()
			return nil, ErrQueueClosed
		}
		wake := q.wake
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-wake:
		}
	}
}

// TryPop returns ErrQueueEmpty instead of blocking.
func (q *InMemoryQueue) TryPop() (*WorkItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		if q.closed {
			return nil, ErrQueueClosed
		}
		return nil, ErrQueueEmpty
	}

	item := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return item, nil
}

func (q *InMemoryQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close wakes every blocked Pop. Items already queued can still be popped.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true
	q.broadcast()

	return nil
}

func (q *InMemoryQueue) broadcast() {
	close(q.wake)
	q.wake = make(chan struct{})
}

func (q *InMemoryQueue) insert(item *WorkItem) {
	i := len(q.items)
	for i > 0 && q.items[i-1].Priority < item.Priority {
		i--
	}
	q.items = append(q.items, nil)
	copy(q.items[i+1:], q.items[i:])
	q.items[i] = item
}

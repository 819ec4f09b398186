package dispatch

import (
	"context"
	"sync"

	"github.com/nbd-wtf/go-nostr"
)

// DefaultQueueCapacity bounds the hand-off queue when no capacity is configured.
const DefaultQueueCapacity = 1024

// Queue is the bounded hand-off between relay goroutines and the dispatcher.
// Offer never blocks: when the queue is full the oldest waiting event is
// dropped to make room, exactly one per offer.
type Queue struct {
	mu      sync.Mutex
	items   []*nostr.Event
	head    int
	size    int
	dropped uint64
	onDrop  func(*nostr.Event)

	// ready holds a token while the queue is non-empty.
	ready chan struct{}
}

// NewQueue creates a queue holding at most capacity events. onDrop, if set, is
// called from the producing goroutine for every event evicted by backpressure.
func NewQueue(capacity int, onDrop func(*nostr.Event)) *Queue {
	if capacity < 1 {
		capacity = DefaultQueueCapacity
	}
	return &Queue{
		items:  make([]*nostr.Event, capacity),
		onDrop: onDrop,
		ready:  make(chan struct{}, 1),
	}
}

// Offer enqueues ev, evicting the oldest queued event if the queue is full.
func (q *Queue) Offer(ev *nostr.Event) {
	q.mu.Lock()
	var evicted *nostr.Event
	if q.size == len(q.items) {
		evicted = q.items[q.head]
		q.items[q.head] = nil
		q.head = (q.head + 1) % len(q.items)
		q.size--
		q.dropped++
	}
	q.items[(q.head+q.size)%len(q.items)] = ev
	q.size++
	q.mu.Unlock()

	q.signal()
	if evicted != nil && q.onDrop != nil {
		q.onDrop(evicted)
	}
}

// Next blocks until an event is available or ctx is done.
func (q *Queue) Next(ctx context.Context) (*nostr.Event, error) {
	for {
		if ev, ok := q.pop(); ok {
			return ev, nil
		}
		select {
		case <-q.ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (q *Queue) pop() (*nostr.Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.size == 0 {
		return nil, false
	}
	ev := q.items[q.head]
	q.items[q.head] = nil
	q.head = (q.head + 1) % len(q.items)
	q.size--
	if q.size > 0 {
		q.signal()
	}
	return ev, true
}

func (q *Queue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// Len returns the number of queued events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Cap returns the queue bound.
func (q *Queue) Cap() int { return len(q.items) }

// Dropped returns how many events were evicted by backpressure.
func (q *Queue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Package history holds the bounded, deduplicated, time-ordered working set of
// recent notes.
//
// A Buffer has no internal locking. It must be mutated by a single goroutine;
// other readers receive copies through Snapshot.
package history

import (
	"errors"
	"slices"
	"sort"

	"github.com/nbd-wtf/go-nostr"
)

// DefaultCapacity is used when a buffer is created with a non-positive capacity.
const DefaultCapacity = 200

var (
	// ErrMissingID is returned when inserting an event without an identifier.
	ErrMissingID = errors.New("history: event has no id")

	// ErrInvariantViolation means the ID set and the ordered slice disagree.
	// It can only happen if the single-writer rule was broken and is fatal.
	ErrInvariantViolation = errors.New("history: buffer invariant violated")
)

// Outcome describes what an Insert did.
type Outcome int

const (
	// Inserted means the event is now a member.
	Inserted Outcome = iota
	// Duplicate means an event with the same ID was already a member.
	Duplicate
	// Rejected means the buffer is full and the event sorts past its tail.
	Rejected
)

func (o Outcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case Duplicate:
		return "duplicate"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// InsertResult reports the outcome of an Insert and the ID it evicted, if any.
type InsertResult struct {
	Outcome Outcome
	Evicted string
}

// Buffer keeps at most Cap() events ordered newest first: descending CreatedAt,
// with equal timestamps ordered by ascending ID. The tail is the oldest event
// and is what gets evicted.
type Buffer struct {
	capacity int
	items    []*nostr.Event
	ids      map[string]struct{}
}

// New creates an empty buffer.
func New(capacity int) *Buffer {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Buffer{
		capacity: capacity,
		items:    make([]*nostr.Event, 0, capacity+1),
		ids:      make(map[string]struct{}, capacity+1),
	}
}

// Before reports whether a sorts ahead of b in buffer order.
func Before(a, b *nostr.Event) bool {
	if a.CreatedAt != b.CreatedAt {
		return a.CreatedAt > b.CreatedAt
	}
	return a.ID < b.ID
}

// Contains reports whether an event with id is a member.
func (b *Buffer) Contains(id string) bool {
	_, ok := b.ids[id]
	return ok
}

// Insert adds ev in order unless it is already present, then trims the tail
// back to capacity.
func (b *Buffer) Insert(ev *nostr.Event) (InsertResult, error) {
	if ev == nil || ev.ID == "" {
		return InsertResult{Outcome: Rejected}, ErrMissingID
	}
	if b.Contains(ev.ID) {
		return InsertResult{Outcome: Duplicate}, nil
	}

	pos := sort.Search(len(b.items), func(i int) bool {
		return !Before(b.items[i], ev)
	})
	if pos >= b.capacity {
		return InsertResult{Outcome: Rejected}, nil
	}

	b.items = slices.Insert(b.items, pos, ev)
	b.ids[ev.ID] = struct{}{}

	result := InsertResult{Outcome: Inserted}
	for len(b.items) > b.capacity {
		tail := b.items[len(b.items)-1]
		b.items[len(b.items)-1] = nil
		b.items = b.items[:len(b.items)-1]
		delete(b.ids, tail.ID)
		result.Evicted = tail.ID
	}

	if len(b.items) != len(b.ids) {
		return result, ErrInvariantViolation
	}
	return result, nil
}

// Snapshot returns the member IDs in buffer order. The slice is a copy.
func (b *Buffer) Snapshot() []string {
	ids := make([]string, len(b.items))
	for i, ev := range b.items {
		ids[i] = ev.ID
	}
	return ids
}

// Len returns the number of members.
func (b *Buffer) Len() int { return len(b.items) }

// Cap returns the capacity bound.
func (b *Buffer) Cap() int { return b.capacity }

// Newest returns the head of the ordering, or nil when empty.
func (b *Buffer) Newest() *nostr.Event {
	if len(b.items) == 0 {
		return nil
	}
	return b.items[0]
}

// Oldest returns the tail of the ordering, or nil when empty.
func (b *Buffer) Oldest() *nostr.Event {
	if len(b.items) == 0 {
		return nil
	}
	return b.items[len(b.items)-1]
}

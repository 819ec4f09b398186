package relay

import (
	"sync"
	"time"
)

// Seen remembers event IDs for a while so that an event delivered by several
// relays is passed on only once. Entries expire after ttl and the oldest are
// evicted beyond maxSize.
type Seen struct {
	mu      sync.Mutex
	entries map[string]int64
	ttl     time.Duration
	maxSize int
}

// DefaultSeenTTL and DefaultSeenSize bound the cross-relay dedupe cache.
const (
	DefaultSeenTTL  = 10 * time.Minute
	DefaultSeenSize = 10000
)

// NewSeen creates a cache. Non-positive values select the defaults.
func NewSeen(ttl time.Duration, maxSize int) *Seen {
	if ttl <= 0 {
		ttl = DefaultSeenTTL
	}
	if maxSize <= 0 {
		maxSize = DefaultSeenSize
	}
	return &Seen{
		entries: make(map[string]int64),
		ttl:     ttl,
		maxSize: maxSize,
	}
}

// Check reports whether id was already seen within the TTL and records it.
func (s *Seen) Check(id string) bool {
	return s.CheckAt(id, time.Now())
}

// CheckAt is Check with an explicit clock.
func (s *Seen) CheckAt(id string, now time.Time) bool {
	if id == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	nowMs := now.UnixMilli()
	if at, ok := s.entries[id]; ok && nowMs-at < s.ttl.Milliseconds() {
		return true
	}

	s.entries[id] = nowMs
	if len(s.entries) > s.maxSize {
		s.prune(nowMs)
	}
	return false
}

// prune drops expired entries, then the oldest until the cache fits.
func (s *Seen) prune(nowMs int64) {
	cutoff := nowMs - s.ttl.Milliseconds()
	for id, at := range s.entries {
		if at <= cutoff {
			delete(s.entries, id)
		}
	}
	for len(s.entries) > s.maxSize {
		var oldestID string
		oldest := int64(^uint64(0) >> 1)
		for id, at := range s.entries {
			if at < oldest {
				oldest, oldestID = at, id
			}
		}
		delete(s.entries, oldestID)
	}
}

// Len returns the number of remembered IDs, expired ones included until the
// next prune.
func (s *Seen) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

package dvm

import (
	"time"

	"github.com/nbd-wtf/go-nostr"

	"github.com/haasonsaas/notedvm/internal/events"
)

// Filters returns the subscriptions the agent needs: notes authored by peers
// (all stored history, capped at noteLimit) and job requests created since
// startedAt. With no peers only the request filter is returned.
func Filters(peers []string, noteLimit int, startedAt time.Time) nostr.Filters {
	since := nostr.Timestamp(startedAt.Unix())
	requests := nostr.Filter{
		Kinds: []int{events.KindJobRequest},
		Since: &since,
	}
	if len(peers) == 0 {
		return nostr.Filters{requests}
	}

	notes := nostr.Filter{
		Kinds:   []int{events.KindTextNote},
		Authors: append([]string(nil), peers...),
		Limit:   noteLimit,
	}
	return nostr.Filters{notes, requests}
}

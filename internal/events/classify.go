package events

import (
	"github.com/nbd-wtf/go-nostr"

	"github.com/haasonsaas/notedvm/internal/keys"
)

// Category is the closed set of classes an inbound event can fall into.
type Category int

const (
	CategoryOther Category = iota
	CategoryNote
	CategoryServiceRequest
	CategoryDirectMessage
)

func (c Category) String() string {
	switch c {
	case CategoryNote:
		return "note"
	case CategoryServiceRequest:
		return "service_request"
	case CategoryDirectMessage:
		return "direct_message"
	default:
		return "other"
	}
}

// Route names the handler a category is dispatched to.
type Route int

const (
	RouteDiscard Route = iota
	RouteInsert
	RouteRespond
	// RouteNotImplemented marks a category whose handler is a deliberate no-op.
	RouteNotImplemented
)

func (r Route) String() string {
	switch r {
	case RouteInsert:
		return "insert"
	case RouteRespond:
		return "respond"
	case RouteNotImplemented:
		return "not_implemented"
	default:
		return "discard"
	}
}

// RouteFor maps a category to its handler route.
func RouteFor(c Category) Route {
	switch c {
	case CategoryNote:
		return RouteInsert
	case CategoryServiceRequest:
		return RouteRespond
	case CategoryDirectMessage:
		return RouteNotImplemented
	default:
		return RouteDiscard
	}
}

// AllowList is an immutable set of hex public keys.
type AllowList struct {
	members map[string]struct{}
}

// NewAllowList builds an allow-list from hex or npub keys. Invalid entries are
// skipped and returned as errors so callers can report them.
func NewAllowList(pubkeys []string) (AllowList, []error) {
	normalized, errs := keys.NormalizePubkeys(pubkeys)
	members := make(map[string]struct{}, len(normalized))
	for _, pk := range normalized {
		members[pk] = struct{}{}
	}
	return AllowList{members: members}, errs
}

// Contains reports whether pubkey (hex) is a member.
func (a AllowList) Contains(pubkey string) bool {
	_, ok := a.members[pubkey]
	return ok
}

// Len returns the number of members.
func (a AllowList) Len() int {
	return len(a.members)
}

// Classify maps an event to its category. It has no side effects and never
// fails: malformed events and unknown kinds are CategoryOther.
func Classify(ev *nostr.Event, admins AllowList) Category {
	if ev == nil || ev.ID == "" {
		return CategoryOther
	}

	switch ev.Kind {
	case KindTextNote:
		return CategoryNote
	case KindJobRequest:
		return CategoryServiceRequest
	case KindEncryptedDirectMessage, KindPrivateDirectMessage:
		if admins.Contains(ev.PubKey) {
			return CategoryDirectMessage
		}
		return CategoryOther
	default:
		return CategoryOther
	}
}

// Package events classifies inbound Nostr events and models the reference
// values used to correlate service requests with their replies.
package events

import "github.com/nbd-wtf/go-nostr"

// Event kinds handled by the agent.
const (
	KindTextNote               = nostr.KindTextNote
	KindEncryptedDirectMessage = nostr.KindEncryptedDirectMessage
	KindPrivateDirectMessage   = 14
	KindJobRequest             = 5300
	KindJobResult              = 6300
	KindHandlerAnnouncement    = 31990
)

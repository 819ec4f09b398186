package dvm

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"github.com/haasonsaas/notedvm/internal/events"
)

// Profile is the public description carried by the handler announcement.
type Profile struct {
	Name  string
	About string
	// Lud16 is an optional lightning address for payments.
	Lud16 string
	// Identifier is the persisted random suffix used as the "d" tag.
	Identifier string
}

type announcementContent struct {
	Name                string `json:"name"`
	About               string `json:"about"`
	Lud16               string `json:"lud16,omitempty"`
	EncryptionSupported bool   `json:"encryptionSupported"`
}

// BuildAnnouncement creates the unsigned NIP-89 handler announcement for p.
func BuildAnnouncement(p Profile, now time.Time) (*nostr.Event, error) {
	content, err := json.Marshal(announcementContent{
		Name:  p.Name,
		About: p.About,
		Lud16: p.Lud16,
	})
	if err != nil {
		return nil, &ResponderError{Stage: StageEncode, Err: err}
	}

	return &nostr.Event{
		Kind:      events.KindHandlerAnnouncement,
		CreatedAt: nostr.Timestamp(now.Unix()),
		Tags: nostr.Tags{
			{"k", strconv.Itoa(events.KindJobRequest)},
			{"d", p.Identifier},
		},
		Content: string(content),
	}, nil
}

// Announce signs and publishes the handler announcement.
func Announce(ctx context.Context, signer Signer, publisher Publisher, p Profile) (*nostr.Event, error) {
	ev, err := BuildAnnouncement(p, time.Now())
	if err != nil {
		return nil, err
	}
	if err := signer.Sign(ev); err != nil {
		return nil, &ResponderError{Stage: StageSign, Err: err}
	}
	if err := publisher.Publish(ctx, ev); err != nil {
		return nil, &ResponderError{Stage: StagePublish, Err: err}
	}
	return ev, nil
}

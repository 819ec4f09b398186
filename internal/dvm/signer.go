// Package dvm builds the events the agent publishes as a NIP-90 data vending
// machine: job results correlated to requests and the NIP-89 handler
// announcement.
package dvm

import (
	"context"
	"fmt"

	"github.com/nbd-wtf/go-nostr"

	"github.com/haasonsaas/notedvm/internal/keys"
)

// Signer signs outbound events with the agent identity.
type Signer interface {
	PublicKey() string
	Sign(ev *nostr.Event) error
}

// Publisher hands signed events to the network.
type Publisher interface {
	Publish(ctx context.Context, ev *nostr.Event) error
}

// KeySigner signs with an in-memory secret key. It is immutable and safe to
// share between goroutines.
type KeySigner struct {
	id keys.Identity
}

// NewKeySigner creates a signer from a hex or nsec secret key.
func NewKeySigner(secret string) (*KeySigner, error) {
	id, err := keys.FromSecret(secret)
	if err != nil {
		return nil, fmt.Errorf("load signing key: %w", err)
	}
	return &KeySigner{id: id}, nil
}

// PublicKey returns the hex public key.
func (s *KeySigner) PublicKey() string { return s.id.PublicKey }

// Npub returns the bech32 public key.
func (s *KeySigner) Npub() string { return s.id.Npub() }

// Sign sets PubKey, ID and Sig on ev.
func (s *KeySigner) Sign(ev *nostr.Event) error {
	ev.PubKey = s.id.PublicKey
	return ev.Sign(s.id.SecretKey)
}

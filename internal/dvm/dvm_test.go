package dvm

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/nbd-wtf/go-nostr"

	"github.com/haasonsaas/notedvm/internal/keys"
)

type fakePublisher struct {
	mu        sync.Mutex
	published []*nostr.Event
	err       error
}

func (f *fakePublisher) Publish(ctx context.Context, ev *nostr.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("publish called without a deadline")
	}
	f.published = append(f.published, ev)
	return nil
}

type failingSigner struct{}

func (failingSigner) PublicKey() string       { return "" }
func (failingSigner) Sign(*nostr.Event) error { return errors.New("hsm offline") }

func newTestSigner(t *testing.T) *KeySigner {
	t.Helper()
	id, err := keys.Generate()
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	signer, err := NewKeySigner(id.SecretKey)
	if err != nil {
		t.Fatalf("NewKeySigner() error = %v", err)
	}
	return signer
}

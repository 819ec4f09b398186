package dvm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"github.com/haasonsaas/notedvm/internal/events"
)

func testRequest() *nostr.Event {
	return &nostr.Event{ID: "req-id", PubKey: "requester", Kind: events.KindJobRequest}
}

func TestBuildReplyCorrelatesRequest(t *testing.T) {
	r := NewResponder(ResponderConfig{
		Signer:    newTestSigner(t),
		Publisher: &fakePublisher{},
		Relays:    []string{"wss://relay.example"},
		Now:       func() time.Time { return time.Unix(1700000000, 0) },
	})

	reply, err := r.BuildReply(RequestContext{Request: testRequest(), Snapshot: []string{"a", "b", "c"}})
	if err != nil {
		t.Fatalf("BuildReply() error = %v", err)
	}

	if reply.Kind != events.KindJobResult {
		t.Fatalf("expected kind %d, got %d", events.KindJobResult, reply.Kind)
	}
	if reply.CreatedAt != 1700000000 {
		t.Fatalf("unexpected created_at %d", reply.CreatedAt)
	}

	refs := events.References(reply.Tags)
	if len(refs) != 2 || refs[0] != events.EventRef("req-id") || refs[1] != events.PubkeyRef("requester") {
		t.Fatalf("unexpected correlation references %v", refs)
	}

	want := map[string]string{"status": StatusSuccess, "alt": DefaultDescription, "relays": "wss://relay.example"}
	for _, tag := range reply.Tags {
		if v, ok := want[tag[0]]; ok {
			if tag[1] != v {
				t.Fatalf("tag %s = %q, want %q", tag[0], tag[1], v)
			}
			delete(want, tag[0])
		}
	}
	if len(want) != 0 {
		t.Fatalf("missing tags %v", want)
	}

	payload, err := events.DecodeReferences(reply.Content)
	if err != nil {
		t.Fatalf("DecodeReferences() error = %v", err)
	}
	if len(payload) != 3 {
		t.Fatalf("expected 3 references, got %d", len(payload))
	}
	for i, id := range []string{"a", "b", "c"} {
		if payload[i] != events.EventRef(id) {
			t.Fatalf("payload[%d] = %v, want %s", i, payload[i], id)
		}
	}
}

func TestBuildReplyWithEmptySnapshot(t *testing.T) {
	r := NewResponder(ResponderConfig{Signer: newTestSigner(t), Publisher: &fakePublisher{}})
	reply, err := r.BuildReply(RequestContext{Request: testRequest()})
	if err != nil {
		t.Fatalf("BuildReply() error = %v", err)
	}
	if reply.Content != "[]" {
		t.Fatalf("expected empty array content, got %s", reply.Content)
	}
	for _, tag := range reply.Tags {
		if tag[0] == "relays" {
			t.Fatal("relays tag should be omitted without relays")
		}
	}
}

func TestRespondSignsAndPublishes(t *testing.T) {
	signer := newTestSigner(t)
	pub := &fakePublisher{}
	r := NewResponder(ResponderConfig{Signer: signer, Publisher: pub})

	reply, err := r.Respond(context.Background(), RequestContext{
		Request:   testRequest(),
		Snapshot:  []string{"a"},
		RequestID: "trace-1",
	})
	if err != nil {
		t.Fatalf("Respond() error = %v", err)
	}
	if len(pub.published) != 1 || pub.published[0] != reply {
		t.Fatalf("expected the reply to be published once, got %d", len(pub.published))
	}
	if reply.PubKey != signer.PublicKey() {
		t.Fatalf("reply signed by %s, want %s", reply.PubKey, signer.PublicKey())
	}
	ok, err := reply.CheckSignature()
	if err != nil || !ok {
		t.Fatalf("reply signature invalid: ok=%v err=%v", ok, err)
	}
}

func TestRespondSurfacesFailures(t *testing.T) {
	transportErr := errors.New("no relays")

	tests := []struct {
		name  string
		cfg   ResponderConfig
		stage Stage
	}{
		{"sign", ResponderConfig{Signer: failingSigner{}, Publisher: &fakePublisher{}}, StageSign},
		{"publish", ResponderConfig{Signer: newTestSigner(t), Publisher: &fakePublisher{err: transportErr}}, StagePublish},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResponder(tt.cfg)
			reply, err := r.Respond(context.Background(), RequestContext{Request: testRequest()})
			if reply != nil {
				t.Fatal("expected no reply on failure")
			}
			var rerr *ResponderError
			if !errors.As(err, &rerr) {
				t.Fatalf("expected ResponderError, got %v", err)
			}
			if rerr.Stage != tt.stage || rerr.RequestID != "req-id" {
				t.Fatalf("unexpected error %+v", rerr)
			}
			if tt.stage == StagePublish && !errors.Is(err, transportErr) {
				t.Fatalf("expected wrapped transport error, got %v", err)
			}
		})
	}
}

func TestBackToBackRequestsShareSnapshotPayload(t *testing.T) {
	r := NewResponder(ResponderConfig{Signer: newTestSigner(t), Publisher: &fakePublisher{}})
	snapshot := []string{"x", "y"}

	first, err := r.BuildReply(RequestContext{Request: testRequest(), Snapshot: snapshot})
	if err != nil {
		t.Fatalf("BuildReply() error = %v", err)
	}
	second, err := r.BuildReply(RequestContext{
		Request:  &nostr.Event{ID: "req-2", PubKey: "other", Kind: events.KindJobRequest},
		Snapshot: snapshot,
	})
	if err != nil {
		t.Fatalf("BuildReply() error = %v", err)
	}
	if first.Content != second.Content {
		t.Fatalf("payloads differ: %s vs %s", first.Content, second.Content)
	}
}

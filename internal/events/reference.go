package events

import (
	"encoding/json"
	"fmt"

	"github.com/nbd-wtf/go-nostr"
)

// RefKind is the tag name a Reference is rendered under.
type RefKind string

const (
	RefEvent  RefKind = "e"
	RefPubkey RefKind = "p"
)

// Reference points at another event or at a public key.
type Reference struct {
	Kind   RefKind
	Target string
}

// EventRef references an event by ID.
func EventRef(id string) Reference { return Reference{Kind: RefEvent, Target: id} }

// PubkeyRef references a public key.
func PubkeyRef(pubkey string) Reference { return Reference{Kind: RefPubkey, Target: pubkey} }

// Tag renders the reference as a Nostr tag.
func (r Reference) Tag() nostr.Tag {
	return nostr.Tag{string(r.Kind), r.Target}
}

// ParseReference reads a reference from an "e" or "p" tag.
func ParseReference(tag nostr.Tag) (Reference, error) {
	if len(tag) < 2 {
		return Reference{}, fmt.Errorf("reference tag needs a kind and a target, got %d fields", len(tag))
	}
	kind := RefKind(tag[0])
	if kind != RefEvent && kind != RefPubkey {
		return Reference{}, fmt.Errorf("unsupported reference kind %q", tag[0])
	}
	if tag[1] == "" {
		return Reference{}, fmt.Errorf("empty %s reference target", kind)
	}
	return Reference{Kind: kind, Target: tag[1]}, nil
}

// References returns every "e" and "p" reference carried by tags, in order.
func References(tags nostr.Tags) []Reference {
	var refs []Reference
	for _, tag := range tags {
		ref, err := ParseReference(tag)
		if err != nil {
			continue
		}
		refs = append(refs, ref)
	}
	return refs
}

// EncodeReferences renders refs as a JSON array of tags, e.g. [["e","id"]].
func EncodeReferences(refs []Reference) (string, error) {
	tags := make([]nostr.Tag, 0, len(refs))
	for _, ref := range refs {
		tags = append(tags, ref.Tag())
	}
	data, err := json.Marshal(tags)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// DecodeReferences parses a JSON array of reference tags.
func DecodeReferences(content string) ([]Reference, error) {
	var tags []nostr.Tag
	if err := json.Unmarshal([]byte(content), &tags); err != nil {
		return nil, fmt.Errorf("decode references: %w", err)
	}
	refs := make([]Reference, 0, len(tags))
	for i, tag := range tags {
		ref, err := ParseReference(tag)
		if err != nil {
			return nil, fmt.Errorf("reference %d: %w", i, err)
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

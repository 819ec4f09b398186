// Package keys parses, normalizes and generates Nostr identities.
package keys

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"
)

// Identity is a parsed secret key with its derived public key, both in hex.
type Identity struct {
	SecretKey string
	PublicKey string
}

// Npub returns the bech32 form of the public key, falling back to hex.
func (i Identity) Npub() string {
	npub, err := nip19.EncodePublicKey(i.PublicKey)
	if err != nil {
		return i.PublicKey
	}
	return npub
}

// Generate creates a fresh random identity.
func Generate() (Identity, error) {
	sk := nostr.GeneratePrivateKey()
	pk, err := nostr.GetPublicKey(sk)
	if err != nil {
		return Identity{}, fmt.Errorf("derive public key: %w", err)
	}
	return Identity{SecretKey: sk, PublicKey: pk}, nil
}

// FromSecret parses a secret key in hex or nsec format and derives its public key.
func FromSecret(key string) (Identity, error) {
	sk, err := ParseSecretKey(key)
	if err != nil {
		return Identity{}, err
	}
	pk, err := nostr.GetPublicKey(sk)
	if err != nil {
		return Identity{}, fmt.Errorf("derive public key: %w", err)
	}
	return Identity{SecretKey: sk, PublicKey: pk}, nil
}

// ParseSecretKey parses a private key in hex or nsec format.
func ParseSecretKey(key string) (string, error) {
	trimmed := strings.TrimSpace(key)

	if strings.HasPrefix(trimmed, "nsec1") {
		prefix, data, err := nip19.Decode(trimmed)
		if err != nil {
			return "", fmt.Errorf("invalid nsec key: %w", err)
		}
		if prefix != "nsec" {
			return "", fmt.Errorf("invalid key type: expected nsec, got %s", prefix)
		}
		hexKey, ok := data.(string)
		if !ok {
			return "", fmt.Errorf("invalid nsec key type: %T", data)
		}
		return hexKey, nil
	}

	if len(trimmed) != 64 {
		return "", fmt.Errorf("private key must be 64 hex characters or nsec format")
	}
	if _, err := hex.DecodeString(trimmed); err != nil {
		return "", fmt.Errorf("invalid hex key: %w", err)
	}
	return strings.ToLower(trimmed), nil
}

// NormalizePubkey converts an npub or hex public key to lowercase hex.
func NormalizePubkey(input string) (string, error) {
	trimmed := strings.TrimSpace(input)

	if strings.HasPrefix(trimmed, "npub1") {
		prefix, data, err := nip19.Decode(trimmed)
		if err != nil {
			return "", fmt.Errorf("invalid npub key: %w", err)
		}
		if prefix != "npub" {
			return "", fmt.Errorf("invalid key type: expected npub, got %s", prefix)
		}
		pubkey, ok := data.(string)
		if !ok {
			return "", fmt.Errorf("invalid npub key type: %T", data)
		}
		return pubkey, nil
	}

	if len(trimmed) != 64 {
		return "", fmt.Errorf("pubkey must be 64 hex characters or npub format")
	}
	if _, err := hex.DecodeString(trimmed); err != nil {
		return "", fmt.Errorf("invalid hex pubkey: %w", err)
	}
	return strings.ToLower(trimmed), nil
}

// NormalizePubkeys normalizes every entry, returning the valid keys in input
// order (deduplicated) and one error per rejected entry.
func NormalizePubkeys(inputs []string) ([]string, []error) {
	out := make([]string, 0, len(inputs))
	seen := make(map[string]struct{}, len(inputs))
	var errs []error
	for _, in := range inputs {
		pk, err := NormalizePubkey(in)
		if err != nil {
			errs = append(errs, fmt.Errorf("%q: %w", in, err))
			continue
		}
		if _, dup := seen[pk]; dup {
			continue
		}
		seen[pk] = struct{}{}
		out = append(out, pk)
	}
	return out, errs
}

// CorrelationSuffix derives the stable random identifier used as the "d" tag of
// the handler announcement: the first 20 characters of a fresh npub with its
// "npub" prefix removed.
func CorrelationSuffix() (string, error) {
	id, err := Generate()
	if err != nil {
		return "", err
	}
	npub, err := nip19.EncodePublicKey(id.PublicKey)
	if err != nil {
		return "", fmt.Errorf("encode npub: %w", err)
	}
	suffix := strings.TrimPrefix(npub, "npub")
	if len(suffix) > 20 {
		suffix = suffix[:20]
	}
	return suffix, nil
}

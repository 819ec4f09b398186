package config

import (
	"fmt"

	"github.com/nbd-wtf/go-nostr/nip19"

	"github.com/haasonsaas/notedvm/internal/keys"
)

// Bootstrap fills in the generated identity fields: a fresh secret key when
// package.nsec is empty and an announcement identifier when package.random_id
// is empty. It reports whether cfg changed and must be saved.
func Bootstrap(cfg *Config) (bool, error) {
	changed := false

	if cfg.Package.Nsec == "" {
		id, err := keys.Generate()
		if err != nil {
			return false, fmt.Errorf("generate agent key: %w", err)
		}
		nsec, err := nip19.EncodePrivateKey(id.SecretKey)
		if err != nil {
			return false, fmt.Errorf("encode agent key: %w", err)
		}
		cfg.Package.Nsec = nsec
		changed = true
	}

	if cfg.Package.RandomID == "" {
		suffix, err := keys.CorrelationSuffix()
		if err != nil {
			return changed, fmt.Errorf("generate announcement id: %w", err)
		}
		cfg.Package.RandomID = suffix
		changed = true
	}

	return changed, nil
}

// Identity returns the agent identity derived from package.nsec.
func (c *Config) Identity() (keys.Identity, error) {
	if c.Package.Nsec == "" {
		return keys.Identity{}, fmt.Errorf("package.nsec is empty; run init first")
	}
	return keys.FromSecret(c.Package.Nsec)
}

package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/haasonsaas/notedvm/internal/keys"
)

const validYAML = `
package:
  name: notedvm
  about: recent notes
comms:
  relays: ["wss://relay.example.com"]
  npubs: []
  admins: []
`

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "notedvm.yaml", validYAML))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Buffer.Capacity != 200 {
		t.Errorf("buffer.capacity = %d, want 200", cfg.Buffer.Capacity)
	}
	if cfg.Queue.Capacity != 1024 {
		t.Errorf("queue.capacity = %d, want 1024", cfg.Queue.Capacity)
	}
	if cfg.PublishTimeout() != 10*time.Second {
		t.Errorf("PublishTimeout() = %v, want 10s", cfg.PublishTimeout())
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "info" {
		t.Errorf("unexpected logging defaults %+v", cfg.Logging)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, "notedvm.yaml", validYAML+"\nextra: true\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestLoadRejectsUnknownTOMLFields(t *testing.T) {
	path := writeConfig(t, "Config.toml", `
[package]
name = "notedvm"
colour = "blue"

[comms]
relays = ["wss://relay.example.com"]
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestLoadOriginalTOMLLayout(t *testing.T) {
	id, err := keys.Generate()
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	path := writeConfig(t, "Config.toml", `
[package]
name = "notedvm"
about = "recent notes from people I follow"
lnurl = "dvm@example.com"
nsec = "`+id.SecretKey+`"
announced = true
random_id = "abc"

[comms]
relays = ["wss://relay.example.com", "wss://nos.example.org"]
admins = []
npubs = ["`+id.Npub()+`"]
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.Package.Announced || cfg.Package.RandomID != "abc" || cfg.Package.Lnurl != "dvm@example.com" {
		t.Fatalf("unexpected package section %+v", cfg.Package)
	}
	if len(cfg.Comms.Relays) != 2 {
		t.Fatalf("relays = %v", cfg.Comms.Relays)
	}
	peers := cfg.Peers()
	if len(peers) != 1 || peers[0] != id.PublicKey {
		t.Fatalf("Peers() = %v, want [%s]", peers, id.PublicKey)
	}
	got, err := cfg.Identity()
	if err != nil || got.PublicKey != id.PublicKey {
		t.Fatalf("Identity() = %v, %v", got, err)
	}
}

func TestLoadJSON5(t *testing.T) {
	path := writeConfig(t, "notedvm.json5", `{
  // comments are allowed
  package: {name: "notedvm"},
  comms: {relays: ["wss://relay.example.com"]},
  buffer: {capacity: 50},
}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Buffer.Capacity != 50 {
		t.Fatalf("buffer.capacity = %d, want 50", cfg.Buffer.Capacity)
	}
}

func TestValidateCollectsIssues(t *testing.T) {
	cfg := Default()
	cfg.Comms.Relays = []string{"https://relay.example.com"}
	cfg.Comms.Npubs = []string{"npub1notakey"}
	cfg.Package.Nsec = "nsec1garbage"
	cfg.Buffer.Capacity = -1
	cfg.DVM.PublishTimeout = "soon"
	cfg.Logging.Format = "xml"

	err := cfg.Validate()
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	for _, field := range []string{"comms.relays", "comms.npubs", "package.nsec", "buffer.capacity", "dvm.publish_timeout", "logging.format"} {
		if !strings.Contains(err.Error(), field) {
			t.Errorf("expected issue for %s in %v", field, err)
		}
	}
}

func TestValidateRequiresRelays(t *testing.T) {
	if err := Default().Validate(); err == nil || !strings.Contains(err.Error(), "comms.relays") {
		t.Fatalf("expected relay issue, got %v", err)
	}
}

func TestTracingSamplingRateZeroIsKept(t *testing.T) {
	cfg, err := Load(writeConfig(t, "notedvm.yaml", validYAML))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := cfg.Observability.Tracing.Sampling(); got != 1 {
		t.Fatalf("Sampling() = %v, want 1 when unset", got)
	}

	yamlZero := validYAML + `
observability:
  tracing:
    endpoint: localhost:4317
    sampling_rate: 0
`
	tomlZero := `
[package]
name = "notedvm"

[comms]
relays = ["wss://relay.example.com"]

[observability.tracing]
endpoint = "localhost:4317"
sampling_rate = 0.0
`
	for name, content := range map[string]string{"notedvm.yaml": yamlZero, "Config.toml": tomlZero} {
		t.Run(name, func(t *testing.T) {
			path := writeConfig(t, name, content)
			cfg, err := Load(path)
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if cfg.Observability.Tracing.SamplingRate == nil {
				t.Fatal("explicit sampling_rate was dropped")
			}
			if got := cfg.Observability.Tracing.Sampling(); got != 0 {
				t.Fatalf("Sampling() = %v, want 0", got)
			}

			if err := Save(path, cfg); err != nil {
				t.Fatalf("Save() error = %v", err)
			}
			reloaded, err := Load(path)
			if err != nil {
				t.Fatalf("Load() after save error = %v", err)
			}
			if got := reloaded.Observability.Tracing.Sampling(); got != 0 {
				t.Fatalf("Sampling() after save = %v, want 0", got)
			}
		})
	}
}

func TestValidateRejectsSamplingRateOutOfRange(t *testing.T) {
	cfg := Default()
	cfg.Comms.Relays = []string{"wss://relay.example.com"}
	rate := 1.5
	cfg.Observability.Tracing.SamplingRate = &rate
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "sampling_rate") {
		t.Fatalf("expected sampling_rate issue, got %v", err)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	for _, name := range []string{"notedvm.yaml", "Config.toml", "notedvm.json"} {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			cfg.Package.About = "recent notes"
			cfg.Package.Announced = true
			cfg.Comms.Relays = []string{"wss://relay.example.com"}
			cfg.DVM.PublishTimeout = "3s"
			if _, err := Bootstrap(cfg); err != nil {
				t.Fatalf("Bootstrap() error = %v", err)
			}

			path := filepath.Join(t.TempDir(), name)
			if err := Save(path, cfg); err != nil {
				t.Fatalf("Save() error = %v", err)
			}
			info, err := os.Stat(path)
			if err != nil {
				t.Fatalf("stat: %v", err)
			}
			if info.Mode().Perm() != 0o600 {
				t.Errorf("mode = %v, want 0600", info.Mode().Perm())
			}

			loaded, err := Load(path)
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if loaded.Package.Nsec != cfg.Package.Nsec || loaded.Package.RandomID != cfg.Package.RandomID {
				t.Fatal("identity fields did not survive the round trip")
			}
			if !loaded.Package.Announced || loaded.PublishTimeout() != 3*time.Second {
				t.Fatalf("unexpected loaded config %+v", loaded)
			}
		})
	}
}

func TestBootstrapIsIdempotent(t *testing.T) {
	cfg := Default()
	changed, err := Bootstrap(cfg)
	if err != nil {
		t.Fatalf("Bootstrap() error = %v", err)
	}
	if !changed {
		t.Fatal("expected first bootstrap to change the config")
	}
	if !strings.HasPrefix(cfg.Package.Nsec, "nsec1") {
		t.Errorf("nsec = %q, want bech32 key", cfg.Package.Nsec)
	}
	if len(cfg.Package.RandomID) != 20 {
		t.Errorf("random_id = %q, want 20 characters", cfg.Package.RandomID)
	}

	nsec, rid := cfg.Package.Nsec, cfg.Package.RandomID
	changed, err = Bootstrap(cfg)
	if err != nil || changed {
		t.Fatalf("second Bootstrap() = %v, %v; want no change", changed, err)
	}
	if cfg.Package.Nsec != nsec || cfg.Package.RandomID != rid {
		t.Fatal("bootstrap replaced existing identity")
	}
}

func TestWatchReloadsOnChange(t *testing.T) {
	path := writeConfig(t, "notedvm.yaml", validYAML)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan *Config, 64)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, 20*time.Millisecond, nil, func(cfg *Config) { reloaded <- cfg })
	}()

	id, err := keys.Generate()
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	updated := strings.Replace(validYAML, "admins: []", "admins: [\""+id.Npub()+"\"]", 1)

	// The watcher is registered asynchronously; keep rewriting until it fires.
	deadline := time.After(3 * time.Second)
	for {
		if err := os.WriteFile(path, []byte(updated), 0o600); err != nil {
			t.Fatalf("rewrite config: %v", err)
		}
		select {
		case cfg := <-reloaded:
			if len(cfg.Comms.Admins) != 1 {
				t.Fatalf("admins = %v, want one entry", cfg.Comms.Admins)
			}
			cancel()
			if err := <-done; err != nil {
				t.Fatalf("Watch() error = %v", err)
			}
			return
		case <-time.After(100 * time.Millisecond):
		case <-deadline:
			t.Fatal("config change was not observed")
		}
	}
}

// Package config loads, validates and persists the agent configuration.
//
// The file layout has a package section describing the agent identity and a
// comms section listing relays, followed authors and admins. The same layout
// can be written as YAML, TOML or JSON5; the format is chosen by extension.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/haasonsaas/notedvm/internal/keys"
)

// DefaultPath is used when no config file is given on the command line.
const DefaultPath = "notedvm.yaml"

// Config is the agent configuration.
type Config struct {
	Package       PackageConfig       `yaml:"package" toml:"package" json:"package"`
	Comms         CommsConfig         `yaml:"comms" toml:"comms" json:"comms"`
	Buffer        BufferConfig        `yaml:"buffer" toml:"buffer" json:"buffer"`
	Queue         QueueConfig         `yaml:"queue" toml:"queue" json:"queue"`
	DVM           DVMConfig           `yaml:"dvm" toml:"dvm" json:"dvm"`
	Logging       LoggingConfig       `yaml:"logging" toml:"logging" json:"logging"`
	Observability ObservabilityConfig `yaml:"observability" toml:"observability" json:"observability"`
}

// PackageConfig identifies the agent on the network.
type PackageConfig struct {
	Name  string `yaml:"name" toml:"name" json:"name"`
	About string `yaml:"about" toml:"about" json:"about"`
	// Lnurl is a lightning address advertised as lud16 in the announcement.
	Lnurl string `yaml:"lnurl" toml:"lnurl" json:"lnurl"`
	// Nsec is the agent secret key, nsec or hex. Generated when empty.
	Nsec      string `yaml:"nsec" toml:"nsec" json:"nsec"`
	Announced bool   `yaml:"announced" toml:"announced" json:"announced"`
	// RandomID is the "d" tag of the handler announcement. Generated when empty.
	RandomID string `yaml:"random_id" toml:"random_id" json:"random_id"`
}

type CommsConfig struct {
	Relays []string `yaml:"relays" toml:"relays" json:"relays"`
	Admins []string `yaml:"admins" toml:"admins" json:"admins"`
	Npubs  []string `yaml:"npubs" toml:"npubs" json:"npubs"`
}

type BufferConfig struct {
	Capacity int `yaml:"capacity" toml:"capacity" json:"capacity"`
}

type QueueConfig struct {
	Capacity int `yaml:"capacity" toml:"capacity" json:"capacity"`
}

type DVMConfig struct {
	PublishTimeout string  `yaml:"publish_timeout" toml:"publish_timeout" json:"publish_timeout"`
	PublishRate    float64 `yaml:"publish_rate" toml:"publish_rate" json:"publish_rate"`
	PublishBurst   int     `yaml:"publish_burst" toml:"publish_burst" json:"publish_burst"`
	Description    string  `yaml:"description" toml:"description" json:"description"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level" json:"level"`
	Format string `yaml:"format" toml:"format" json:"format"`
}

type ObservabilityConfig struct {
	MetricsAddr string        `yaml:"metrics_addr" toml:"metrics_addr" json:"metrics_addr"`
	Tracing     TracingConfig `yaml:"tracing" toml:"tracing" json:"tracing"`
}

type TracingConfig struct {
	Endpoint string `yaml:"endpoint" toml:"endpoint" json:"endpoint"`
	Insecure bool   `yaml:"insecure" toml:"insecure" json:"insecure"`
	// SamplingRate is unset when nil, which samples every trace.
	SamplingRate *float64 `yaml:"sampling_rate,omitempty" toml:"sampling_rate,omitempty" json:"sampling_rate,omitempty"`
}

// Sampling returns the configured sampling rate, 1 when unset.
func (t TracingConfig) Sampling() float64 {
	if t.SamplingRate == nil {
		return 1
	}
	return *t.SamplingRate
}

// ValidationError lists every problem found in a configuration.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	return "invalid config: " + strings.Join(e.Issues, "; ")
}

// Default returns a configuration with every default applied and no identity.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Package.Name == "" {
		cfg.Package.Name = "notedvm"
	}
	if cfg.Buffer.Capacity == 0 {
		cfg.Buffer.Capacity = 200
	}
	if cfg.Queue.Capacity == 0 {
		cfg.Queue.Capacity = 1024
	}
	if cfg.DVM.PublishTimeout == "" {
		cfg.DVM.PublishTimeout = "10s"
	}
	if cfg.DVM.PublishRate == 0 {
		cfg.DVM.PublishRate = 5
	}
	if cfg.DVM.PublishBurst == 0 {
		cfg.DVM.PublishBurst = 10
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var issues []string
	add := func(format string, args ...any) {
		issues = append(issues, fmt.Sprintf(format, args...))
	}

	if strings.TrimSpace(c.Package.Name) == "" {
		add("package.name is required")
	}
	if c.Package.Nsec != "" {
		if _, err := keys.ParseSecretKey(c.Package.Nsec); err != nil {
			add("package.nsec: %v", err)
		}
	}

	if len(c.Comms.Relays) == 0 {
		add("comms.relays must list at least one relay")
	}
	for _, relay := range c.Comms.Relays {
		u, err := url.Parse(relay)
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
			add("comms.relays: %q is not a ws:// or wss:// url", relay)
		}
	}
	if _, errs := keys.NormalizePubkeys(c.Comms.Npubs); len(errs) > 0 {
		for _, err := range errs {
			add("comms.npubs: %v", err)
		}
	}
	if _, errs := keys.NormalizePubkeys(c.Comms.Admins); len(errs) > 0 {
		for _, err := range errs {
			add("comms.admins: %v", err)
		}
	}

	if c.Buffer.Capacity <= 0 {
		add("buffer.capacity must be positive")
	}
	if c.Queue.Capacity <= 0 {
		add("queue.capacity must be positive")
	}
	if d, err := time.ParseDuration(c.DVM.PublishTimeout); err != nil || d <= 0 {
		add("dvm.publish_timeout: %q is not a positive duration", c.DVM.PublishTimeout)
	}
	if c.DVM.PublishRate < 0 {
		add("dvm.publish_rate must not be negative")
	}
	if c.DVM.PublishBurst < 0 {
		add("dvm.publish_burst must not be negative")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		add("logging.level: unknown level %q", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		add("logging.format must be json or text")
	}
	if r := c.Observability.Tracing.Sampling(); r < 0 || r > 1 {
		add("observability.tracing.sampling_rate must be between 0 and 1")
	}

	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}

// PublishTimeout returns dvm.publish_timeout, or ten seconds when unset or
// invalid.
func (c *Config) PublishTimeout() time.Duration {
	d, err := time.ParseDuration(c.DVM.PublishTimeout)
	if err != nil || d <= 0 {
		return 10 * time.Second
	}
	return d
}

// Peers returns the followed authors as hex public keys.
func (c *Config) Peers() []string {
	peers, _ := keys.NormalizePubkeys(c.Comms.Npubs)
	return peers
}

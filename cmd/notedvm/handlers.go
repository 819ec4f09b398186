package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/notedvm/internal/app"
	"github.com/haasonsaas/notedvm/internal/config"
	"github.com/haasonsaas/notedvm/internal/observability"
)

// resolveConfigPath lets NOTEDVM_CONFIG override the default path.
func resolveConfigPath(path string) string {
	if strings.TrimSpace(path) == "" || path == config.DefaultPath {
		if env := strings.TrimSpace(os.Getenv("NOTEDVM_CONFIG")); env != "" {
			return env
		}
		return config.DefaultPath
	}
	return path
}

// loadConfig loads path and persists any generated identity fields.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config %s not found, run `notedvm init` first: %w", path, err)
		}
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	changed, err := config.Bootstrap(cfg)
	if err != nil {
		return nil, err
	}
	if changed {
		if err := config.Save(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to save generated identity: %w", err)
		}
		slog.Info("generated agent identity", "config", path)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config, debug bool) *slog.Logger {
	level := cfg.Logging.Level
	if debug {
		level = "debug"
	}
	return observability.NewLogger(observability.LogConfig{
		Level:  level,
		Format: cfg.Logging.Format,
	})
}

func signalContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}

// =============================================================================
// Serve Command Handler
// =============================================================================

func runServe(ctx context.Context, configPath string, debug bool) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger := newLogger(cfg, debug)
	slog.SetDefault(logger)

	logger.Info("starting notedvm",
		"version", version,
		"commit", commit,
		"config", configPath,
		"debug", debug,
	)

	agent, err := app.New(app.Options{
		Config:     cfg,
		ConfigPath: configPath,
		Logger:     logger,
		Version:    version,
	})
	if err != nil {
		return fmt.Errorf("failed to create agent: %w", err)
	}

	ctx, stop := signalContext(ctx)
	defer stop()

	if err := agent.Run(ctx); err != nil {
		return fmt.Errorf("agent stopped: %w", err)
	}
	logger.Info("notedvm stopped")
	return nil
}

// =============================================================================
// Init Command Handler
// =============================================================================

func runInit(cmd *cobra.Command, opts initOptions) error {
	if _, err := os.Stat(opts.configPath); err == nil && !opts.force {
		return fmt.Errorf("config %s already exists (use --force to overwrite)", opts.configPath)
	}

	cfg := config.Default()
	cfg.Package.Name = opts.name
	cfg.Package.About = opts.about
	cfg.Package.Lnurl = opts.lnurl
	cfg.Comms.Relays = opts.relays
	cfg.Comms.Npubs = opts.npubs
	cfg.Comms.Admins = opts.admins
	if cfg.Comms.Npubs == nil {
		cfg.Comms.Npubs = []string{}
	}
	if cfg.Comms.Admins == nil {
		cfg.Comms.Admins = []string{}
	}

	if _, err := config.Bootstrap(cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := config.Save(opts.configPath, cfg); err != nil {
		return err
	}

	id, err := cfg.Identity()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Wrote %s\n", opts.configPath)
	fmt.Fprintf(out, "Agent npub: %s\n", id.Npub())
	if len(cfg.Comms.Npubs) == 0 {
		fmt.Fprintln(out, "No followed authors yet: add npubs under comms.npubs before serving.")
	}
	return nil
}

// =============================================================================
// Announce Command Handler
// =============================================================================

func runAnnounce(cmd *cobra.Command, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	agent, err := app.New(app.Options{
		Config:     cfg,
		ConfigPath: configPath,
		Logger:     newLogger(cfg, false),
		Version:    version,
	})
	if err != nil {
		return fmt.Errorf("failed to create agent: %w", err)
	}
	defer agent.Close()

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	if err := agent.Connect(ctx); err != nil {
		return err
	}
	ev, err := agent.Announce(ctx)
	if err != nil {
		return fmt.Errorf("announcement failed: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Published handler announcement %s\n", ev.ID)
	return nil
}

// =============================================================================
// Whoami Command Handler
// =============================================================================

func runWhoami(cmd *cobra.Command, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	id, err := cfg.Identity()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "npub:      %s\n", id.Npub())
	fmt.Fprintf(out, "hex:       %s\n", id.PublicKey)
	fmt.Fprintf(out, "random_id: %s\n", cfg.Package.RandomID)
	fmt.Fprintf(out, "announced: %t\n", cfg.Package.Announced)
	return nil
}

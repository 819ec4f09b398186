// Package main provides the CLI entry point for notedvm, a Nostr data vending
// machine that answers job requests with the recent notes of a followed set
// of authors.
//
// # Basic Usage
//
// Create a config with a fresh identity:
//
//	notedvm init --relay wss://relay.damus.io --npub npub1...
//
// Start listening:
//
//	notedvm serve --config notedvm.yaml
//
// # Environment Variables
//
//   - NOTEDVM_CONFIG: Path to configuration file (default: notedvm.yaml)
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information - populated by ldflags during build.
//
//	go build -ldflags "-X main.version=v1.0.0 -X main.commit=$(git rev-parse HEAD) -X main.date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "notedvm",
		Short: "notedvm - Nostr recent-notes data vending machine",
		Long: `notedvm listens to a set of relays, keeps the most recent notes written by a
followed set of authors and answers NIP-90 job requests (kind 5300) with a
signed result (kind 6300) listing those notes, newest first.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
		buildInitCmd(),
		buildAnnounceCmd(),
		buildWhoamiCmd(),
	)
	return rootCmd
}

package main

import (
	"github.com/spf13/cobra"

	"github.com/haasonsaas/notedvm/internal/config"
)

// =============================================================================
// Serve Command
// =============================================================================

func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Listen to relays and answer job requests",
		Long: `Start the agent.

The agent will:
1. Load the configuration, generating a key and announcement id if missing
2. Connect to the configured relays
3. Publish the handler announcement once
4. Buffer notes from followed authors and answer kind 5300 requests

Graceful shutdown is handled on SIGINT/SIGTERM signals.`,
		Example: `  # Start with default config
  notedvm serve

  # Start with debug logging
  notedvm serve --config /etc/notedvm/Config.toml --debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), resolveConfigPath(configPath), debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultPath,
		"Path to configuration file (.yaml, .toml or .json5)")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false,
		"Enable debug logging (verbose output)")
	return cmd
}

// =============================================================================
// Init Command
// =============================================================================

type initOptions struct {
	configPath string
	name       string
	about      string
	lnurl      string
	relays     []string
	npubs      []string
	admins     []string
	force      bool
}

func buildInitCmd() *cobra.Command {
	opts := initOptions{}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a new configuration with a fresh identity",
		Example: `  notedvm init --relay wss://relay.damus.io --npub npub1... --admin npub1...
  notedvm init -c Config.toml --name "recent notes" --lnurl me@getalby.com`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.configPath = resolveConfigPath(opts.configPath)
			return runInit(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", config.DefaultPath, "Path of the configuration file to create")
	cmd.Flags().StringVar(&opts.name, "name", "notedvm", "Name advertised in the handler announcement")
	cmd.Flags().StringVar(&opts.about, "about", "Recent notes from the people I follow", "Description advertised in the handler announcement")
	cmd.Flags().StringVar(&opts.lnurl, "lnurl", "", "Lightning address advertised as lud16")
	cmd.Flags().StringSliceVar(&opts.relays, "relay", []string{"wss://relay.damus.io", "wss://nos.lol"}, "Relay URL (repeatable)")
	cmd.Flags().StringSliceVar(&opts.npubs, "npub", nil, "Followed author, npub or hex (repeatable)")
	cmd.Flags().StringSliceVar(&opts.admins, "admin", nil, "Admin allowed to send direct messages, npub or hex (repeatable)")
	cmd.Flags().BoolVar(&opts.force, "force", false, "Overwrite an existing configuration file")
	return cmd
}

// =============================================================================
// Announce Command
// =============================================================================

func buildAnnounceCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "announce",
		Short: "Publish the NIP-89 handler announcement now",
		Long: `Publish the handler announcement (kind 31990) even if it was already sent,
then record it in the configuration file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnnounce(cmd, resolveConfigPath(configPath))
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Path to configuration file")
	return cmd
}

// =============================================================================
// Whoami Command
// =============================================================================

func buildWhoamiCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Print the agent public key",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWhoami(cmd, resolveConfigPath(configPath))
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Path to configuration file")
	return cmd
}

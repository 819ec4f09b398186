package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/haasonsaas/notedvm/internal/config"
	"github.com/haasonsaas/notedvm/internal/keys"
)

func TestBuildRootCmdIncludesSubcommands(t *testing.T) {
	cmd := buildRootCmd()
	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}

	for _, name := range []string{"serve", "init", "announce", "whoami"} {
		if !names[name] {
			t.Fatalf("expected subcommand %q to be registered", name)
		}
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := buildRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestInitThenWhoami(t *testing.T) {
	peer, err := keys.Generate()
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	path := filepath.Join(t.TempDir(), "Config.toml")

	out, err := execute(t, "init", "-c", path, "--relay", "wss://relay.example.com", "--npub", peer.Npub())
	if err != nil {
		t.Fatalf("init error = %v", err)
	}
	if !strings.Contains(out, "npub1") {
		t.Fatalf("init output missing npub: %q", out)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Package.Nsec == "" || cfg.Package.RandomID == "" {
		t.Fatal("init did not generate an identity")
	}
	id, err := cfg.Identity()
	if err != nil {
		t.Fatalf("Identity() error = %v", err)
	}

	out, err = execute(t, "whoami", "-c", path)
	if err != nil {
		t.Fatalf("whoami error = %v", err)
	}
	if !strings.Contains(out, id.Npub()) || !strings.Contains(out, "announced: false") {
		t.Fatalf("unexpected whoami output %q", out)
	}
}

func TestInitRefusesToOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notedvm.yaml")
	if err := os.WriteFile(path, []byte("package: {}\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := execute(t, "init", "-c", path); err == nil {
		t.Fatal("expected init to refuse an existing file")
	}
}

func TestWhoamiMissingConfig(t *testing.T) {
	_, err := execute(t, "whoami", "-c", filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil || !strings.Contains(err.Error(), "notedvm init") {
		t.Fatalf("expected hint to run init, got %v", err)
	}
}

func TestResolveConfigPathFromEnv(t *testing.T) {
	t.Setenv("NOTEDVM_CONFIG", "/etc/notedvm/Config.toml")
	if got := resolveConfigPath(config.DefaultPath); got != "/etc/notedvm/Config.toml" {
		t.Fatalf("resolveConfigPath() = %q", got)
	}
	if got := resolveConfigPath("custom.yaml"); got != "custom.yaml" {
		t.Fatalf("resolveConfigPath() = %q", got)
	}
}

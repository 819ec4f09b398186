package observability

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

const sampleNsec = "nsec1vl029mgpspedva04g90vltkh6fvh240zqtv9k0t9af8935ke9laqsnlfe5"

func TestNewLoggerRedactsSecrets(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "debug", Format: "json", Output: &buf})

	logger.Info("loaded key "+sampleNsec,
		"nsec", "anything",
		"detail", "secret="+strings.Repeat("ab", 32),
		"error", errors.New("bad key "+sampleNsec),
	)

	out := buf.String()
	if strings.Contains(out, sampleNsec) {
		t.Fatalf("nsec leaked into log output: %s", out)
	}
	if strings.Contains(out, strings.Repeat("ab", 32)) {
		t.Fatalf("hex secret leaked into log output: %s", out)
	}

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("expected JSON output, got %v", err)
	}
	if record["nsec"] != "[REDACTED]" {
		t.Fatalf("expected sensitive key to be redacted, got %v", record["nsec"])
	}
}

func TestNewLoggerRedactsWithAttrsAndGroups(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Format: "json", Output: &buf}).
		With("key", sampleNsec).
		WithGroup("identity")

	logger.Info("started", slog.Group("keys", "secret_key", "x"))

	out := buf.String()
	if strings.Contains(out, sampleNsec) {
		t.Fatalf("nsec leaked through With: %s", out)
	}
	if strings.Contains(out, `"secret_key":"x"`) {
		t.Fatalf("grouped sensitive key leaked: %s", out)
	}
}

func TestNewLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "warn", Format: "text", Output: &buf})

	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info record should be filtered at warn level: %s", out)
	}
	if !strings.Contains(out, "shown") {
		t.Fatalf("warn record missing: %s", out)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for name, want := range tests {
		if got := ParseLevel(name); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", name, got, want)
		}
	}
}

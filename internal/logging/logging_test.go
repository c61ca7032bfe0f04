package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/meroku/framecaster/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
		"bogus": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewHandler_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(&buf, config.LogConfig{Level: "info", Format: "json"}))
	logger.Debug("hidden")
	logger.Info("cache miss", "key", "user_data:3")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d: %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if rec["msg"] != "cache miss" || rec["key"] != "user_data:3" {
		t.Fatalf("unexpected record: %v", rec)
	}
}

func TestNewHandler_Fanout(t *testing.T) {
	var primary, secondary bytes.Buffer
	extra := slog.NewTextHandler(&secondary, &slog.HandlerOptions{Level: slog.LevelDebug})
	logger := slog.New(NewHandler(&primary, config.LogConfig{Level: "warn"}, extra)).With("component", "fetch")

	logger.Info("only secondary")
	logger.Warn("both")

	if strings.Contains(primary.String(), "only secondary") {
		t.Fatal("primary handler should drop info records")
	}
	if !strings.Contains(primary.String(), "both") || !strings.Contains(primary.String(), "component=fetch") {
		t.Fatalf("primary missing warn record: %q", primary.String())
	}
	if !strings.Contains(secondary.String(), "only secondary") || !strings.Contains(secondary.String(), "both") {
		t.Fatalf("secondary missing records: %q", secondary.String())
	}
}

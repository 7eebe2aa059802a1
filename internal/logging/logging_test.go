package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	if ParseLevel("debug") != slog.LevelDebug {
		t.Error("expected debug level")
	}
	if ParseLevel("DEBUG") != slog.LevelDebug {
		t.Error("expected case-insensitive parse")
	}
	if ParseLevel("info") != slog.LevelInfo {
		t.Error("expected info level")
	}
	if ParseLevel("nonsense") != slog.LevelInfo {
		t.Error("unknown level should default to info")
	}
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("info", &buf)

	logger.Debug("hidden")
	logger.Info("visible", "update", 3)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("debug message should be filtered at info level")
	}
	if !strings.Contains(out, "visible") || !strings.Contains(out, "update=3") {
		t.Errorf("info message missing from output: %q", out)
	}
}

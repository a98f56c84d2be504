package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestInitSwitchesExistingLoggers(t *testing.T) {
	logger := L("outdated")

	var buf bytes.Buffer
	Init("json", "debug", &buf)
	defer Init("text", "info", nil)

	logger.Debug("discovery finished", "entries", 3)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("expected JSON log line, got %q: %v", buf.String(), err)
	}
	if rec[KeyComponent] != "outdated" {
		t.Errorf("component = %v, want outdated", rec[KeyComponent])
	}
	if rec["msg"] != "discovery finished" {
		t.Errorf("msg = %v", rec["msg"])
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	Init("text", "warn", &buf)
	defer Init("text", "info", nil)

	L("status").Info("hidden")
	L("status").Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Errorf("unexpected output %q", out)
	}
}

func TestContextLogger(t *testing.T) {
	l := L("custom")
	ctx := NewContext(context.Background(), l)
	if FromContext(ctx) != l {
		t.Error("FromContext should return the stored logger")
	}
	if FromContext(context.Background()) == nil {
		t.Error("FromContext should fall back to the default logger")
	}
}

func TestInitSwitchesFormatBackAndForth(t *testing.T) {
	defer Init("text", "info", nil)

	var text, js bytes.Buffer
	Init("text", "info", &text)
	Init("json", "info", &js)
	Init("text", "info", &text)
	Init("json", "info", &js)

	L("status").Info("after switching")
	if !json.Valid(bytes.TrimSpace(js.Bytes())) {
		t.Errorf("expected a JSON line, got %q", js.String())
	}
	if text.Len() != 0 {
		t.Errorf("text handler should be idle, got %q", text.String())
	}
}

package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"sublingo/internal/services"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"WARN", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}
	for _, tc := range cases {
		if got := parseLevel(tc.input); got != tc.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tc.input, got, tc.want)
		}
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := New(Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestConsoleHandlerRendersFields(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	logger := slog.New(newConsoleHandler(&buf, lvl))

	logger.Info("stage started",
		String(FieldComponent, "orchestrator"),
		String(FieldStage, "transcribing"),
		String(FieldTaskID, "abc"),
	)

	out := buf.String()
	for _, want := range []string{"stage started", "orchestrator", "transcribing", "task_id=abc"} {
		if !strings.Contains(out, want) {
			t.Errorf("console output missing %q: %s", want, out)
		}
	}
}

func TestWithContextAddsFields(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	base := slog.New(newConsoleHandler(&buf, lvl))

	ctx := services.WithTaskID(context.Background(), "task-1")
	ctx = services.WithStage(ctx, "filtering")
	WithContext(ctx, base).Info("hello")

	out := buf.String()
	if !strings.Contains(out, "task_id=task-1") {
		t.Errorf("missing task id: %s", out)
	}
	if !strings.Contains(out, "filtering") {
		t.Errorf("missing stage: %s", out)
	}
}

func TestNopLoggerDiscards(t *testing.T) {
	logger := NewNop()
	logger.Error("should not panic", Error(nil))
	if logger.Enabled(context.Background(), slog.LevelError) {
		t.Fatal("nop logger should report disabled")
	}
}

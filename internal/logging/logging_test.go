package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/matryer/is"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNew_JSON(t *testing.T) {
	is := is.New(t)
	var buf bytes.Buffer
	logger := New(Options{Level: "warn", Format: "json", Output: &buf})

	logger.Info("dropped")
	logger.Warn("kept", slog.Int("n", 3))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	is.Equal(len(lines), 1)

	var rec map[string]any
	is.NoErr(json.Unmarshal([]byte(lines[0]), &rec))
	is.Equal(rec["msg"], "kept")
	is.Equal(rec["n"], 3.0)
}

func TestNew_Console(t *testing.T) {
	is := is.New(t)
	var buf bytes.Buffer
	logger := New(Options{Level: "debug", Format: "console", Output: &buf})

	logger.Debug("hello", slog.String("who", "world"))
	is.True(strings.Contains(buf.String(), "msg=hello"))
	is.True(strings.Contains(buf.String(), "who=world"))
}

func TestNew_Env(t *testing.T) {
	is := is.New(t)
	t.Setenv("LT_LOG_LEVEL", "error")
	t.Setenv("LT_LOG_FORMAT", "json")

	var buf bytes.Buffer
	logger := New(Options{Output: &buf})
	logger.Warn("dropped")
	logger.Error("kept")

	is.True(!strings.Contains(buf.String(), "dropped"))
	is.True(strings.HasPrefix(buf.String(), "{"))
}

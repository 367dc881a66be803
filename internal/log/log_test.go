// ABOUTME: Tests for the logging package
// ABOUTME: Validates level filtering, output redirection, and component tagging

package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

// These tests mutate package state, so they do not run in parallel.

func TestSetLevel(t *testing.T) {
	saved := GetLevel()
	defer SetLevel(saved)

	SetLevel(LevelDebug)
	if GetLevel() != LevelDebug {
		t.Errorf("expected LevelDebug, got %v", GetLevel())
	}

	SetLevel(LevelError)
	if GetLevel() != LevelError {
		t.Errorf("expected LevelError, got %v", GetLevel())
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"debug": LevelDebug,
		"warn":  LevelWarn,
		"":      LevelInfo,
		"bogus": LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v; want %v", in, got, want)
		}
	}
}

func TestDebugSuppressedAtInfoLevel(t *testing.T) {
	saved := GetLevel()
	defer SetLevel(saved)

	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(discard{})

	SetLevel(LevelInfo)
	Debug("this should be suppressed: %s", "test")

	if buf.Len() != 0 {
		t.Errorf("expected no output, got %q", buf.String())
	}
}

func TestAllLevelsEmitAtDebug(t *testing.T) {
	saved := GetLevel()
	defer SetLevel(saved)

	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(discard{})

	SetLevel(LevelDebug)
	Debug("debug: %d", 1)
	Info("info: %d", 2)
	Warn("warn: %d", 3)
	Error("error: %d", 4)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected 4 lines, got %d: %q", len(lines), buf.String())
	}

	var entry struct {
		Level   string `json:"level"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal([]byte(lines[2]), &entry); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if entry.Level != "warn" || entry.Message != "warn: 3" {
		t.Errorf("entry = %+v", entry)
	}
}

func TestErrorAlwaysEmitted(t *testing.T) {
	saved := GetLevel()
	defer SetLevel(saved)

	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(discard{})

	SetLevel(LevelError + 1)
	Error("boom")
	if !strings.Contains(buf.String(), "boom") {
		t.Errorf("expected error output, got %q", buf.String())
	}
}

func TestWithTagsComponent(t *testing.T) {
	saved := GetLevel()
	defer SetLevel(saved)

	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(discard{})

	SetLevel(LevelDebug)
	l := With("backend")
	l.Debug().Uint64("id", 7).Msg("resolved")

	out := buf.String()
	if !strings.Contains(out, `"component":"backend"`) || !strings.Contains(out, `"id":7`) {
		t.Errorf("unexpected output %q", out)
	}
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/fatih/color"
)

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, "json", "warn")
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	logger.Info("hidden")
	logger.Warn("shown", "session_id", "s-1")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line above warn, got %q", buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if entry["msg"] != "shown" || entry["session_id"] != "s-1" {
		t.Fatalf("unexpected entry %v", entry)
	}
}

func TestNewRejectsUnknownSettings(t *testing.T) {
	if _, err := New(&bytes.Buffer{}, "xml", "info"); err == nil {
		t.Fatalf("expected unknown format error")
	}
	if _, err := New(&bytes.Buffer{}, "json", "loud"); err == nil {
		t.Fatalf("expected level error")
	}
}

func TestColorHandlerKeepsAttrs(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	logger := slog.New(NewColorHandler(&buf, slog.LevelDebug)).With("session_id", "s-1").WithGroup("answer")
	logger.Debug("accepted", "participant", "u1")

	out := buf.String()
	for _, want := range []string{"DEBUG:", "accepted", "session_id=s-1", "answer.participant=u1"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in %q", want, out)
		}
	}
}

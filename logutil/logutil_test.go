package logutil

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestTraceLevel(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	slog.SetDefault(NewLogger(&buf, LevelTrace))
	Trace("decode step", "step", 1)

	out := buf.String()
	if !strings.Contains(out, "level=TRACE") {
		t.Errorf("Ausgabe %q enthaelt kein level=TRACE", out)
	}
	if !strings.Contains(out, "logutil_test.go") {
		t.Errorf("Ausgabe %q enthaelt nicht die Quelldatei des Aufrufers", out)
	}
}

func TestTraceDisabled(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	slog.SetDefault(NewLogger(&buf, slog.LevelInfo))
	Trace("hidden")

	if buf.Len() != 0 {
		t.Errorf("Ausgabe %q, erwartet leer", buf.String())
	}
}

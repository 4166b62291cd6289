package logx

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestWriterFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf, "info").With(String("comp", "relay"))
	l.Debug("hidden")
	l.Info("hello", Int("n", 3), Err(errors.New("boom")), Err(nil))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("lines = %d, want 1: %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if rec["message"] != "hello" || rec["comp"] != "relay" || rec["n"] != float64(3) {
		t.Fatalf("record = %v", rec)
	}
	if _, ok := rec[zerolog.ErrorFieldName]; !ok {
		t.Fatalf("error field missing: %v", rec)
	}
	if c, _ := rec[zerolog.CallerFieldName].(string); !strings.HasPrefix(c, "logging_test.go:") {
		t.Fatalf("caller = %q", c)
	}
}

func TestZeroAndNop(t *testing.T) {
	var zero Logger
	if !zero.IsZero() {
		t.Fatal("zero logger should report IsZero")
	}
	zero.Info("dropped")
	if Nop().IsZero() {
		t.Fatal("Nop logger is not the zero value")
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"debug":   LevelDebug,
		" WARN ":  LevelWarn,
		"warning": LevelWarn,
		"error":   LevelError,
		"bogus":   LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestServiceApplyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.log")
	svc, log := New(Config{Level: "info", File: FileConfig{Enabled: true, Path: path}})
	log.Info("first")
	svc.Apply(Config{Level: "error", File: FileConfig{Enabled: true, Path: path}})
	log.Info("suppressed")
	log.Error("second")
	if err := svc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	out := string(b)
	if !strings.Contains(out, "first") || !strings.Contains(out, "second") || strings.Contains(out, "suppressed") {
		t.Fatalf("log file = %q", out)
	}
}

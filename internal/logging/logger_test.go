package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNew_JSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "triggerd.log")
	logger, err := New(Options{Format: "json", Level: "debug", OutputPaths: []string{path}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Debug("hello", String(FieldCategory, "blood"))

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	var rec map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(data), &rec); err != nil {
		t.Fatalf("decode %q: %v", data, err)
	}
	if rec["level"] != "debug" || rec["msg"] != "hello" || rec["category"] != "blood" {
		t.Errorf("unexpected record %v", rec)
	}
	if _, ok := rec["ts"]; !ok {
		t.Error("expected ts key")
	}
}

func TestNew_LevelFilters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "warn.log")
	logger, err := New(Options{Format: "console", Level: "warn", OutputPaths: []string{path}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Info("dropped")
	logger.Warn("kept")

	data, _ := os.ReadFile(path)
	if strings.Contains(string(data), "dropped") || !strings.Contains(string(data), "kept") {
		t.Errorf("unexpected output %q", data)
	}
}

func TestNew_Rejects(t *testing.T) {
	if _, err := New(Options{Level: "loud"}); err == nil {
		t.Error("expected invalid level error")
	}
	if _, err := New(Options{Format: "xml"}); err == nil {
		t.Error("expected invalid format error")
	}
}

func TestWarnWithContext_InjectsDefaults(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	WarnWithContext(logger, "persist failed", "threshold_persist_failed",
		String(FieldImpact, "learning is session-only"))

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec[FieldEventType] != "threshold_persist_failed" {
		t.Errorf("event_type = %v", rec[FieldEventType])
	}
	if rec[FieldErrorHint] != "check logs for details" {
		t.Errorf("error_hint = %v", rec[FieldErrorHint])
	}
	if rec[FieldImpact] != "learning is session-only" {
		t.Errorf("impact should not be overwritten, got %v", rec[FieldImpact])
	}
}

func TestComponentLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewComponentLogger(slog.New(slog.NewJSONHandler(&buf, nil)), "decision")
	logger.Info("x")
	if !strings.Contains(buf.String(), `"component":"decision"`) {
		t.Errorf("missing component attr: %s", buf.String())
	}

	// nil base logger must not panic
	NewComponentLogger(nil, "noop").Warn("discarded")
	WarnWithContext(nil, "ignored", "none")
}

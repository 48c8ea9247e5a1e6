package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNewPrettyHandlerWritesKeyValueLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.log")
	logger, err := New(Options{Level: "info", Format: "pretty", OutputPaths: []string{path}})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	logger.Info("hello world", "entry_id", "abc-123")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "hello world") || !strings.Contains(string(data), "entry_id=abc-123") {
		t.Fatalf("unexpected log line: %s", data)
	}
}

func TestNewJSONHandlerEmitsJSON(t *testing.T) {
	var buf bytes.Buffer
	handler := newJSONHandler(&buf, slog.LevelInfo)
	logger := slog.New(handler)
	logger.Info("ready")
	if !strings.Contains(buf.String(), `"msg":"ready"`) {
		t.Fatalf("expected JSON output, got %s", buf.String())
	}
}

func TestCleanupOldLogsRemovesStaleFiles(t *testing.T) {
	dir := t.TempDir()
	stale := filepath.Join(dir, "spacesaver-old.log")
	fresh := filepath.Join(dir, "spacesaver-new.log")
	if err := os.WriteFile(stale, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(fresh, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-30 * 24 * time.Hour)
	if err := os.Chtimes(stale, old, old); err != nil {
		t.Fatal(err)
	}

	CleanupOldLogs(nil, 14, dir, "spacesaver-*.log")

	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Fatal("expected stale log to be removed")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Fatal("expected fresh log to remain")
	}
}

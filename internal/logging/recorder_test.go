package logging

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestRecorderWraps(t *testing.T) {
	rec := NewRecorder(3)

	for i := 0; i < 5; i++ {
		rec.Write(Entry{
			Timestamp: time.Date(2025, 1, 1, 0, 0, i, 0, time.UTC),
			Level:     "info",
			Module:    "test",
			Message:   string(rune('a' + i)),
		})
	}

	if got := rec.Count(); got != 3 {
		t.Fatalf("Count() = %d, want 3", got)
	}

	entries := rec.Snapshot()
	if len(entries) != 3 {
		t.Fatalf("Snapshot() returned %d entries, want 3", len(entries))
	}

	// Oldest two entries were overwritten, c/d/e remain in order
	want := []string{"c", "d", "e"}
	for i, entry := range entries {
		if entry.Message != want[i] {
			t.Errorf("entry %d message = %q, want %q", i, entry.Message, want[i])
		}
	}
}

func TestRecorderHandlerFeedsRecorder(t *testing.T) {
	// Reset state
	mutex.Lock()
	moduleLoggers = make(map[string]*slog.Logger)
	moduleLevelVars = make(map[string]*slog.LevelVar)
	isInitialized = false
	mutex.Unlock()

	Initialize(Config{Level: "info", Format: "text"})

	levelVar := &slog.LevelVar{}
	handler := NewRecorderHandler(levelVar)
	logger := slog.New(handler).With("module", "failure")

	logger.Info("process exited unexpectedly", "id", "player", "exit_code", 1)

	rec := GetRecorder()
	entries := rec.Snapshot()
	if len(entries) == 0 {
		t.Fatal("recorder received no entries")
	}

	last := entries[len(entries)-1]
	if last.Module != "failure" {
		t.Errorf("module = %q, want %q", last.Module, "failure")
	}
	if last.Message != "process exited unexpectedly" {
		t.Errorf("message = %q, want %q", last.Message, "process exited unexpectedly")
	}
	if last.Attributes["id"] != "player" {
		t.Errorf("id attribute = %v, want %q", last.Attributes["id"], "player")
	}
}

func TestRecorderHandlerBeforeInitialize(t *testing.T) {
	// Reset so no recorder exists
	mutex.Lock()
	recorder = nil
	mutex.Unlock()

	handler := NewRecorderHandler(&slog.LevelVar{})
	// Must not panic with no recorder
	err := handler.Handle(context.Background(), slog.NewRecord(time.Now(), slog.LevelInfo, "early", 0))
	if err != nil {
		t.Errorf("Handle() before Initialize = %v, want nil", err)
	}
}

func TestWriteCrashDump(t *testing.T) {
	// Reset state
	mutex.Lock()
	moduleLoggers = make(map[string]*slog.Logger)
	moduleLevelVars = make(map[string]*slog.LevelVar)
	isInitialized = false
	mutex.Unlock()

	Initialize(Config{Level: "info", Format: "text"})

	GetRecorder().Write(Entry{
		Timestamp: time.Now(),
		Level:     "error",
		Module:    "command",
		Message:   "command timed out",
		Attributes: map[string]any{
			"command": "systemctl stop dnsmasq",
		},
	})

	dir := t.TempDir()
	path, err := WriteCrashDump(dir, "command timed out")
	if err != nil {
		t.Fatalf("WriteCrashDump() error: %v", err)
	}

	if filepath.Dir(path) != dir {
		t.Errorf("dump written to %q, want directory %q", path, dir)
	}
	if !strings.HasPrefix(filepath.Base(path), "crash-") {
		t.Errorf("dump filename %q should start with crash-", filepath.Base(path))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading dump: %v", err)
	}
	content := string(data)

	if !strings.Contains(content, "# reason: command timed out") {
		t.Errorf("dump missing reason header:\n%s", content)
	}
	if !strings.Contains(content, "command timed out") || !strings.Contains(content, "[command]") {
		t.Errorf("dump missing recorded entry:\n%s", content)
	}
}

func TestFormatEntry(t *testing.T) {
	entry := Entry{
		Timestamp: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		Level:     "warn",
		Module:    "sessions",
		Message:   "operator still connected",
		Attributes: map[string]any{
			"terminal": "pts/0",
			"user":     "admin",
		},
	}

	got := FormatEntry(entry)

	if !strings.Contains(got, "[WARN]") {
		t.Errorf("formatted line missing level: %s", got)
	}
	if !strings.Contains(got, "[sessions]") {
		t.Errorf("formatted line missing module: %s", got)
	}
	// Attributes sorted alphabetically
	if !strings.Contains(got, "terminal=pts/0 user=admin") {
		t.Errorf("formatted line attributes wrong: %s", got)
	}
}

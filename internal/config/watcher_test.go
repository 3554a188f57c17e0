package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/smazurov/nodewarden/internal/logging"
)

func testWatcherLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// readBody is a trivial loader for tests that assert on raw content.
func readBody(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	body := strings.TrimSpace(string(data))
	if strings.Contains(body, "broken") {
		return "", fmt.Errorf("unparseable content")
	}
	return body, nil
}

func TestWatcherAppliesLoggingChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("[logging]\nlevel = \"info\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	applied := make(chan logging.Config, 4)
	w := NewWatcher(
		path,
		func(p string) (logging.Config, error) { return LoadLoggingConfig(p), nil },
		func(cfg logging.Config) { applied <- cfg },
		testWatcherLogger(),
		WithDebounce[logging.Config](50*time.Millisecond),
	)
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte("[logging]\nlevel = \"debug\"\nsupervisor = \"debug\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-applied:
		if cfg.Level != "debug" {
			t.Errorf("applied level = %q, want %q", cfg.Level, "debug")
		}
		if cfg.Modules["supervisor"] != "debug" {
			t.Errorf("applied module levels = %v, want supervisor=debug", cfg.Modules)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for reload")
	}
}

func TestWatcherSurvivesAtomicReplace(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("first\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	applied := make(chan string, 4)
	w := NewWatcher(path, readBody, func(s string) { applied <- s }, testWatcherLogger(),
		WithDebounce[string](50*time.Millisecond))
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	time.Sleep(100 * time.Millisecond)

	// Save the way editors do: write a sibling file, rename it over the
	// watched path. A watch on the file itself would be lost here.
	tmp := filepath.Join(dir, "config.toml.new")
	if err := os.WriteFile(tmp, []byte("second\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(tmp, path); err != nil {
		t.Fatal(err)
	}

	select {
	case body := <-applied:
		if body != "second" {
			t.Errorf("applied %q, want %q", body, "second")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for reload after rename")
	}
}

func TestWatcherCoalescesBursts(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("v0\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	var applies atomic.Int32
	var mu sync.Mutex
	var last string
	w := NewWatcher(path, readBody, func(s string) {
		applies.Add(1)
		mu.Lock()
		last = s
		mu.Unlock()
	}, testWatcherLogger(), WithDebounce[string](250*time.Millisecond))
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	time.Sleep(100 * time.Millisecond)
	for i := 1; i <= 5; i++ {
		if err := os.WriteFile(path, fmt.Appendf(nil, "v%d\n", i), 0o644); err != nil {
			t.Fatal(err)
		}
		time.Sleep(30 * time.Millisecond)
	}

	time.Sleep(800 * time.Millisecond)

	if got := applies.Load(); got != 1 {
		t.Errorf("apply called %d times for one burst, want 1", got)
	}
	mu.Lock()
	defer mu.Unlock()
	if last != "v5" {
		t.Errorf("applied %q, want final value %q", last, "v5")
	}
}

func TestWatcherKeepsLastGoodOnLoadError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("good\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	applied := make(chan string, 4)
	w := NewWatcher(path, readBody, func(s string) { applied <- s }, testWatcherLogger(),
		WithDebounce[string](50*time.Millisecond))
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte("broken\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case s := <-applied:
		t.Fatalf("apply called with %q after load error", s)
	case <-time.After(500 * time.Millisecond):
	}

	if err := os.WriteFile(path, []byte("fixed\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case s := <-applied:
		if s != "fixed" {
			t.Errorf("applied %q, want %q", s, "fixed")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for reload after fix")
	}
}

func TestWatcherStopPreventsReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("v0\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	var applies atomic.Int32
	w := NewWatcher(path, readBody, func(string) { applies.Add(1) }, testWatcherLogger(),
		WithDebounce[string](50*time.Millisecond))
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}

	time.Sleep(100 * time.Millisecond)
	if err := w.Stop(); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(path, []byte("v1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(300 * time.Millisecond)

	if got := applies.Load(); got != 0 {
		t.Errorf("apply called %d times after Stop, want 0", got)
	}
}

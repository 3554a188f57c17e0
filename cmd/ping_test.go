package cmd

import (
	"os"
	"path/filepath"
	"testing"
)

func TestReadPidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nodewarden.pid")
	if err := os.WriteFile(path, []byte("1234\n"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	pid, err := readPidFile(path)
	if err != nil {
		t.Fatalf("readPidFile failed: %v", err)
	}
	if pid != 1234 {
		t.Errorf("Expected pid 1234, got %d", pid)
	}
}

func TestReadPidFileMissing(t *testing.T) {
	if _, err := readPidFile(filepath.Join(t.TempDir(), "absent.pid")); err == nil {
		t.Error("Expected error for missing pidfile")
	}
}

func TestReadPidFileGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nodewarden.pid")
	if err := os.WriteFile(path, []byte("not-a-pid\n"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	if _, err := readPidFile(path); err == nil {
		t.Error("Expected error for non-numeric pidfile")
	}
}

package process

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/smazurov/nodewarden/internal/events"
)

func collectExits(bus *events.Bus) (<-chan events.ProcessExitedEvent, func()) {
	ch := make(chan events.ProcessExitedEvent, 8)
	unsub := bus.Subscribe(func(e events.ProcessExitedEvent) {
		ch <- e
	})
	return ch, unsub
}

func waitExit(t *testing.T, ch <-chan events.ProcessExitedEvent) events.ProcessExitedEvent {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for exit event")
		return events.ProcessExitedEvent{}
	}
}

func newTestSupervisor(t *testing.T) (*Supervisor, *events.Bus) {
	t.Helper()
	bus := events.New()
	return New(bus, WithLogDir(t.TempDir())), bus
}

func TestStartAndStop(t *testing.T) {
	sup, bus := newTestSupervisor(t)
	exits, unsub := collectExits(bus)
	defer unsub()

	pid, err := sup.Start(Spec{Name: "player", Command: `sh -c "while :; do sleep 0.1; done"`})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	infos := sup.Running()
	if len(infos) != 1 {
		t.Fatalf("got %d tracked processes, want 1", len(infos))
	}
	if infos[0].ID != "player" || infos[0].PID != pid {
		t.Errorf("Info = %+v, want ID player PID %d", infos[0], pid)
	}

	sup.Stop(pid)

	e := waitExit(t, exits)
	if !e.Expected {
		t.Error("exit after Stop should be expected")
	}
	if e.ID != "player" || e.PID != pid {
		t.Errorf("event = %+v, want ID player PID %d", e, pid)
	}
	// SIGKILL reports as 128+9.
	if e.ExitCode != 137 {
		t.Errorf("ExitCode = %d, want 137", e.ExitCode)
	}

	if got := sup.Running(); len(got) != 0 {
		t.Errorf("got %d tracked processes after Stop, want 0", len(got))
	}
}

func TestUnexpectedExit(t *testing.T) {
	sup, bus := newTestSupervisor(t)
	exits, unsub := collectExits(bus)
	defer unsub()

	pid, err := sup.Start(Spec{Name: "crasher", Command: `sh -c "exit 7"`})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	e := waitExit(t, exits)
	if e.Expected {
		t.Error("self-exit should be unexpected")
	}
	if e.ExitCode != 7 {
		t.Errorf("ExitCode = %d, want 7", e.ExitCode)
	}

	// Only Stop removes the record, so the crashed child stays
	// tracked until then.
	if got := sup.Running(); len(got) != 1 {
		t.Fatalf("got %d tracked processes after crash, want 1", len(got))
	}
	sup.Stop(pid)
	if got := sup.Running(); len(got) != 0 {
		t.Errorf("got %d tracked processes after Stop, want 0", len(got))
	}
}

func TestStopIsIdempotent(t *testing.T) {
	sup, bus := newTestSupervisor(t)
	exits, unsub := collectExits(bus)
	defer unsub()

	pid, err := sup.Start(Spec{Name: "player", Command: `sh -c "while :; do sleep 0.1; done"`})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	sup.Stop(pid)
	sup.Stop(pid)

	waitExit(t, exits)
	select {
	case e := <-exits:
		t.Errorf("second Stop produced an event: %+v", e)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestStopUnknownPid(t *testing.T) {
	sup, bus := newTestSupervisor(t)
	exits, unsub := collectExits(bus)
	defer unsub()

	sup.Stop(999999)

	select {
	case e := <-exits:
		t.Errorf("Stop of unknown pid produced an event: %+v", e)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestStopAll(t *testing.T) {
	sup, bus := newTestSupervisor(t)
	exits, unsub := collectExits(bus)
	defer unsub()

	if _, err := sup.Start(Spec{Name: "one", Command: `sh -c "while :; do sleep 0.1; done"`}); err != nil {
		t.Fatalf("Start one: %v", err)
	}
	if _, err := sup.Start(Spec{Name: "two", Command: `sh -c "while :; do sleep 0.1; done"`}); err != nil {
		t.Fatalf("Start two: %v", err)
	}

	sup.StopAll()

	if got := sup.Running(); len(got) != 0 {
		t.Errorf("got %d tracked processes after StopAll, want 0", len(got))
	}
	for range 2 {
		if e := waitExit(t, exits); !e.Expected {
			t.Errorf("StopAll exit should be expected: %+v", e)
		}
	}
}

func TestStopAllEmpty(t *testing.T) {
	sup, _ := newTestSupervisor(t)
	sup.StopAll()
}

func TestStartRejectsBadCommands(t *testing.T) {
	sup, _ := newTestSupervisor(t)

	if _, err := sup.Start(Spec{Name: "empty", Command: ""}); err == nil {
		t.Error("expected error for empty command")
	}
	if _, err := sup.Start(Spec{Name: "unclosed", Command: `echo "unclosed`}); err == nil {
		t.Error("expected error for unclosed quote")
	}
	if _, err := sup.Start(Spec{Name: "missing", Command: "/nonexistent/binary-xyz"}); err == nil {
		t.Error("expected error for missing binary")
	}
	if got := sup.Running(); len(got) != 0 {
		t.Errorf("failed starts left %d records", len(got))
	}
}

func TestOutputGoesToLogFile(t *testing.T) {
	dir := t.TempDir()
	bus := events.New()
	sup := New(bus, WithLogDir(dir))
	exits, unsub := collectExits(bus)
	defer unsub()

	if _, err := sup.Start(Spec{Name: "greeter", Command: `sh -c "echo hello from child"`}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitExit(t, exits)

	data, err := os.ReadFile(filepath.Join(dir, "greeter.log"))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "hello from child") {
		t.Errorf("log file = %q, want output line", string(data))
	}
}

func TestRunningSortedByID(t *testing.T) {
	sup, bus := newTestSupervisor(t)
	exits, unsub := collectExits(bus)
	defer unsub()

	if _, err := sup.Start(Spec{Name: "zulu", Command: `sh -c "while :; do sleep 0.1; done"`}); err != nil {
		t.Fatalf("Start zulu: %v", err)
	}
	if _, err := sup.Start(Spec{Name: "alpha", Command: `sh -c "while :; do sleep 0.1; done"`}); err != nil {
		t.Fatalf("Start alpha: %v", err)
	}
	defer func() {
		sup.StopAll()
		waitExit(t, exits)
		waitExit(t, exits)
	}()

	infos := sup.Running()
	if len(infos) != 2 || infos[0].ID != "alpha" || infos[1].ID != "zulu" {
		t.Errorf("Running() = %+v, want alpha then zulu", infos)
	}
}

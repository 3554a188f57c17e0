package command

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/smazurov/nodewarden/internal/clock"
	"github.com/smazurov/nodewarden/internal/failure"
)

// fakeReporter records fatal reports instead of rebooting.
type fakeReporter struct {
	mu      sync.Mutex
	reports []fatalReport
}

type fatalReport struct {
	kind   failure.Kind
	detail string
}

func (f *fakeReporter) ReportFatal(kind failure.Kind, detail string, _ ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reports = append(f.reports, fatalReport{kind: kind, detail: detail})
}

func (f *fakeReporter) fatals() []fatalReport {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]fatalReport(nil), f.reports...)
}

func TestRunCapturesOutput(t *testing.T) {
	reporter := &fakeReporter{}
	r := NewRunner(reporter)

	out, err := r.Run("echo hello")
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if out != "hello\n" {
		t.Errorf("output = %q, want %q", out, "hello\n")
	}
	if len(reporter.fatals()) != 0 {
		t.Errorf("successful command reported fatals: %+v", reporter.fatals())
	}
}

func TestRunCombinesOutputStreams(t *testing.T) {
	reporter := &fakeReporter{}
	r := NewRunner(reporter)

	out, err := r.Run(`sh -c "echo to-stdout; echo to-stderr 1>&2"`)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if !strings.Contains(out, "to-stdout") || !strings.Contains(out, "to-stderr") {
		t.Errorf("output missing a stream: %q", out)
	}
}

func TestRunNonzeroExitReturnsError(t *testing.T) {
	reporter := &fakeReporter{}
	r := NewRunner(reporter)

	out, err := r.Run(`sh -c "echo boom; exit 42"`)
	if err == nil {
		t.Fatal("nonzero exit should return an error")
	}
	if !strings.Contains(out, "boom") {
		t.Errorf("output lost on failure: %q", out)
	}

	// A command that runs and fails is the caller's problem, not a
	// fatal condition.
	if len(reporter.fatals()) != 0 {
		t.Errorf("nonzero exit reported fatals: %+v", reporter.fatals())
	}
}

func TestRunWithEmptyCommand(t *testing.T) {
	reporter := &fakeReporter{}
	r := NewRunner(reporter)

	if _, err := r.Run(""); err == nil {
		t.Fatal("empty command should return an error")
	}

	fatals := reporter.fatals()
	if len(fatals) != 1 || fatals[0].kind != failure.CommandLaunchFailed {
		t.Fatalf("fatals = %+v, want one command_launch_failed", fatals)
	}
}

func TestRunWithInvalidCommand(t *testing.T) {
	reporter := &fakeReporter{}
	r := NewRunner(reporter)

	if _, err := r.Run(`echo "unclosed`); err == nil {
		t.Fatal("unclosed quote should return an error")
	}

	fatals := reporter.fatals()
	if len(fatals) != 1 || fatals[0].kind != failure.CommandLaunchFailed {
		t.Fatalf("fatals = %+v, want one command_launch_failed", fatals)
	}
	if !strings.Contains(fatals[0].detail, "cannot parse") {
		t.Errorf("detail = %q, want parse failure", fatals[0].detail)
	}
}

func TestRunWithNonExistentCommand(t *testing.T) {
	reporter := &fakeReporter{}
	r := NewRunner(reporter)

	if _, err := r.Run("/nonexistent/command/that/does/not/exist"); err == nil {
		t.Fatal("missing binary should return an error")
	}

	fatals := reporter.fatals()
	if len(fatals) != 1 || fatals[0].kind != failure.CommandLaunchFailed {
		t.Fatalf("fatals = %+v, want one command_launch_failed", fatals)
	}
	if !strings.Contains(fatals[0].detail, "cannot launch") {
		t.Errorf("detail = %q, want launch failure", fatals[0].detail)
	}
}

func TestRunWithDeadlineReportsTimeout(t *testing.T) {
	fc := clock.Fake(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	reporter := &fakeReporter{}
	r := NewRunner(reporter, WithClock(fc))

	errs := make(chan error, 1)
	go func() {
		_, err := r.RunWithDeadline("sleep 30", 10*time.Second)
		errs <- err
	}()

	// Let the runner arm its deadline timer, then blow past it.
	fc.WaitForTimers(1)
	fc.Advance(10 * time.Second)

	select {
	case err := <-errs:
		if err == nil {
			t.Fatal("deadline overrun should return an error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("RunWithDeadline did not return after the deadline fired")
	}

	fatals := reporter.fatals()
	if len(fatals) != 1 || fatals[0].kind != failure.CommandTimedOut {
		t.Fatalf("fatals = %+v, want one command_timeout", fatals)
	}
	if !strings.Contains(fatals[0].detail, "exceeded") {
		t.Errorf("detail = %q, want deadline overrun", fatals[0].detail)
	}
}

func TestRunUsesConfiguredDefaultDeadline(t *testing.T) {
	fc := clock.Fake(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	reporter := &fakeReporter{}
	r := NewRunner(reporter, WithClock(fc), WithDefaultDeadline(3*time.Second))

	errs := make(chan error, 1)
	go func() {
		_, err := r.Run("sleep 30")
		errs <- err
	}()

	fc.WaitForTimers(1)
	fc.Advance(3 * time.Second)

	select {
	case err := <-errs:
		if err == nil {
			t.Fatal("deadline overrun should return an error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not honor the configured default deadline")
	}

	if fatals := reporter.fatals(); len(fatals) != 1 || fatals[0].kind != failure.CommandTimedOut {
		t.Fatalf("fatals = %+v, want one command_timeout", fatals)
	}
}

// Package command executes foreground system commands under a hard
// deadline. Network reconfiguration on these devices is a sequence of
// such commands, and any one of them hanging leaves the device in a
// half-configured state that only a reboot can clear.
package command

import (
	"bytes"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/smazurov/nodewarden/internal/clock"
	"github.com/smazurov/nodewarden/internal/failure"
	"github.com/smazurov/nodewarden/internal/logging"
	"github.com/smazurov/nodewarden/internal/metrics"
)

// DefaultDeadline bounds commands run without an explicit deadline.
const DefaultDeadline = 60 * time.Second

// FatalReporter receives conditions that must end in a reboot.
// Implemented by failure.Reporter.
type FatalReporter interface {
	ReportFatal(kind failure.Kind, detail string, args ...any)
}

// Runner executes one command at a time and captures its combined
// output. A command that cannot be launched or that outlives its
// deadline is reported as fatal; no attempt is made to kill a hung
// child, since the device reboots anyway.
type Runner struct {
	clock    clock.Clock
	reporter FatalReporter
	deadline time.Duration
	logger   *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithClock substitutes the clock. Used in tests.
func WithClock(c clock.Clock) Option {
	return func(r *Runner) {
		r.clock = c
	}
}

// WithDefaultDeadline overrides the deadline used by Run.
func WithDefaultDeadline(d time.Duration) Option {
	return func(r *Runner) {
		r.deadline = d
	}
}

// NewRunner creates a command runner reporting fatal conditions to the
// given reporter.
func NewRunner(reporter FatalReporter, opts ...Option) *Runner {
	r := &Runner{
		clock:    clock.Real(),
		reporter: reporter,
		deadline: DefaultDeadline,
		logger:   logging.GetLogger("command"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes the command with the default deadline.
func (r *Runner) Run(cmdline string) (string, error) {
	return r.RunWithDeadline(cmdline, r.deadline)
}

// RunWithDeadline executes the command, returning its combined output
// if it completes within the deadline. A nonzero exit is returned to
// the caller as an error alongside the output. A launch failure or a
// deadline overrun goes to the fatal reporter; in production that call
// reboots the device and does not return.
func (r *Runner) RunWithDeadline(cmdline string, deadline time.Duration) (string, error) {
	args, err := Split(cmdline)
	if err == nil && len(args) == 0 {
		err = fmt.Errorf("empty command")
	}
	if err != nil {
		metrics.ObserveCommand("invalid", 0, metrics.CommandLaunchFailed)
		r.reporter.ReportFatal(failure.CommandLaunchFailed,
			fmt.Sprintf("cannot parse command %q: %v", cmdline, err))
		return "", fmt.Errorf("parsing command %q: %w", cmdline, err)
	}
	name := filepath.Base(args[0])

	cmd := exec.Command(args[0], args[1:]...)
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	r.logger.Debug("Running command", "command", cmdline, "deadline", deadline)
	start := r.clock.Now()

	if err := cmd.Start(); err != nil {
		metrics.ObserveCommand(name, 0, metrics.CommandLaunchFailed)
		r.reporter.ReportFatal(failure.CommandLaunchFailed,
			fmt.Sprintf("cannot launch %q: %v", cmdline, err))
		return "", fmt.Errorf("launching %q: %w", cmdline, err)
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	select {
	case waitErr := <-done:
		elapsed := r.clock.Now().Sub(start)
		if waitErr != nil {
			metrics.ObserveCommand(name, elapsed.Seconds(), metrics.CommandFailed)
			r.logger.Warn("Command exited with error",
				"command", cmdline, "elapsed", elapsed, "error", waitErr)
			return output.String(), fmt.Errorf("command %q: %w", cmdline, waitErr)
		}
		metrics.ObserveCommand(name, elapsed.Seconds(), metrics.CommandCompleted)
		r.logger.Debug("Command completed", "command", cmdline, "elapsed", elapsed)
		return output.String(), nil

	case <-r.clock.After(deadline):
		// The child is not killed: it may hold kernel or network state
		// in an unknown condition, and the reboot clears everything.
		metrics.ObserveCommand(name, deadline.Seconds(), metrics.CommandTimedOut)
		r.reporter.ReportFatal(failure.CommandTimedOut,
			fmt.Sprintf("command %q exceeded %s deadline", cmdline, deadline))
		return "", fmt.Errorf("command %q exceeded %s deadline", cmdline, deadline)
	}
}

// Package failure implements the response to unrecoverable conditions:
// log everywhere a technician might look, then reboot the device.
//
// There is no partial recovery. A command that hangs or a product that
// dies has already put the device in a state nobody planned for, and
// the only transition guaranteed to end in a known-good state is a
// clean boot of the read-only image.
package failure

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/smazurov/nodewarden/internal/clock"
	"github.com/smazurov/nodewarden/internal/events"
	"github.com/smazurov/nodewarden/internal/logging"
)

// Kind classifies a fatal condition.
type Kind string

// Fatal condition kinds.
const (
	CommandTimedOut           Kind = "command_timeout"
	CommandLaunchFailed       Kind = "command_launch_failed"
	ProcessExitedUnexpectedly Kind = "process_exit"
)

const (
	defaultGracePeriod = 60 * time.Second
	defaultCrashDir    = "/var/log/nodewarden"
	consolePath        = "/dev/console"
)

// OperatorGuard answers whether a remote operator is connected.
// Implemented by sessions.Guard.
type OperatorGuard interface {
	OperatorPresent() bool
	AwaitOperatorAbsence(ctx context.Context) error
}

// Rebooter performs the final reboot. The production implementation
// never returns; tests substitute a fake to observe the call.
type Rebooter interface {
	Reboot()
}

// SystemRebooter reboots through systemd, falling back to the raw
// syscall if systemctl itself is wedged.
type SystemRebooter struct{}

// Reboot asks systemd for a clean reboot and waits to be killed. If
// systemctl fails or nothing happens, forces the reboot syscall.
func (SystemRebooter) Reboot() {
	logger := logging.GetLogger("failure")

	if err := exec.Command("systemctl", "reboot").Run(); err != nil {
		logger.Error("systemctl reboot failed, forcing reboot syscall", "error", err)
		unix.Sync()
		if err := unix.Reboot(unix.LINUX_REBOOT_CMD_RESTART); err != nil {
			logger.Error("reboot syscall failed", "error", err)
		}
	}

	// A clean systemd reboot tears this process down with the rest of
	// the system. Block until that happens.
	select {}
}

// Reporter funnels every fatal condition through one sequence: record,
// announce, defer while an operator is connected, wait out the grace
// window, reboot.
type Reporter struct {
	guard    OperatorGuard
	rebooter Rebooter
	clock    clock.Clock
	bus      *events.Bus
	console  io.Writer
	crashDir string
	grace    time.Duration
	logger   *slog.Logger

	mu    sync.Mutex
	fired bool
}

// Option configures a Reporter.
type Option func(*Reporter)

// WithRebooter substitutes the rebooter. Used in tests.
func WithRebooter(r Rebooter) Option {
	return func(rep *Reporter) {
		rep.rebooter = r
	}
}

// WithClock substitutes the clock. Used in tests.
func WithClock(c clock.Clock) Option {
	return func(rep *Reporter) {
		rep.clock = c
	}
}

// WithConsole overrides the boot console writer.
func WithConsole(w io.Writer) Option {
	return func(rep *Reporter) {
		rep.console = w
	}
}

// WithCrashDir overrides where crash dumps are written.
func WithCrashDir(dir string) Option {
	return func(rep *Reporter) {
		rep.crashDir = dir
	}
}

// WithGracePeriod overrides the delay between announcing the reboot
// and performing it.
func WithGracePeriod(d time.Duration) Option {
	return func(rep *Reporter) {
		rep.grace = d
	}
}

// NewReporter creates a failure reporter. The guard decides when a
// reboot must wait for a remote operator to disconnect; the bus carries
// FailureEvents to the LED manager and metrics.
func NewReporter(guard OperatorGuard, bus *events.Bus, opts ...Option) *Reporter {
	r := &Reporter{
		guard:    guard,
		rebooter: SystemRebooter{},
		clock:    clock.Real(),
		bus:      bus,
		crashDir: defaultCrashDir,
		grace:    defaultGracePeriod,
		logger:   logging.GetLogger("failure"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ReportFatal handles a fatal condition. In production this does not
// return: the sequence ends in a reboot. With a test rebooter it
// returns once the sequence completes. Reports after the first are
// logged and dropped so only one reboot is ever issued.
func (r *Reporter) ReportFatal(kind Kind, detail string, args ...any) {
	r.mu.Lock()
	if r.fired {
		r.mu.Unlock()
		r.logger.Error("Additional fatal condition while reboot pending",
			append([]any{"kind", string(kind), "detail", detail}, args...)...)
		return
	}
	r.fired = true
	r.mu.Unlock()

	r.logger.Error("Fatal condition, device will reboot",
		append([]any{"kind", string(kind), "detail", detail}, args...)...)

	r.announceOnConsole(kind, detail)
	r.dumpFlightRecorder(kind, detail)

	deferred := r.guard.OperatorPresent()
	if r.bus != nil {
		r.bus.Publish(events.FailureEvent{
			Kind:      string(kind),
			Detail:    detail,
			Deferred:  deferred,
			Timestamp: r.clock.Now(),
		})
	}

	if deferred {
		r.awaitOperator()
	} else {
		// Grace window: a technician who just saw the FAIL line gets a
		// chance to connect before the evidence disappears.
		r.logger.Warn("Rebooting after grace period", "grace", r.grace)
		r.clock.Sleep(r.grace)
		if r.guard.OperatorPresent() {
			r.awaitOperator()
		}
	}

	r.logger.Error("Rebooting now", "kind", string(kind))
	r.rebooter.Reboot()
}

// awaitOperator blocks until every remote session is gone. The wait is
// unbounded on purpose: rebooting under a connected operator would cut
// off whoever is diagnosing the failure.
func (r *Reporter) awaitOperator() {
	r.logger.Warn("Reboot deferred until remote operator disconnects")
	if err := r.guard.AwaitOperatorAbsence(context.Background()); err != nil {
		r.logger.Warn("Stopped waiting for operator", "error", err)
	}
}

// announceOnConsole writes a FAIL line where a technician with a
// monitor will see it, even if logging is broken.
func (r *Reporter) announceOnConsole(kind Kind, detail string) {
	w := r.console
	if w == nil {
		f, err := os.OpenFile(consolePath, os.O_WRONLY, 0)
		if err != nil {
			r.logger.Debug("Boot console unavailable", "error", err)
			return
		}
		defer f.Close()
		w = f
	}
	fmt.Fprintf(w, "[FAIL] %s: %s\n", kind, detail)
}

// dumpFlightRecorder saves the recent log history for post-reboot
// inspection.
func (r *Reporter) dumpFlightRecorder(kind Kind, detail string) {
	path, err := logging.WriteCrashDump(r.crashDir, fmt.Sprintf("%s: %s", kind, detail))
	if err != nil {
		r.logger.Warn("Cannot write crash dump", "error", err)
		return
	}
	r.logger.Info("Crash dump written", "path", path)
}

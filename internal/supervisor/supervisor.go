// Package supervisor runs the device mode state machine.
//
// One loop goroutine owns the mode and the inactivity countdown. It
// selects over the tick, a stop signal, and a single event queue into
// which process exits and operator-activity pings are funneled, so
// every input is serialized against every other. The button is
// sampled once per tick; the status indicator is written only here.
package supervisor

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"github.com/smazurov/nodewarden/internal/button"
	"github.com/smazurov/nodewarden/internal/clock"
	"github.com/smazurov/nodewarden/internal/events"
	"github.com/smazurov/nodewarden/internal/failure"
	"github.com/smazurov/nodewarden/internal/led"
	"github.com/smazurov/nodewarden/internal/logging"
	"github.com/smazurov/nodewarden/internal/metrics"
	"github.com/smazurov/nodewarden/internal/process"
)

// operatorSignal is the payload-less liveness signal the
// configuration service sends on every recognized client action.
const operatorSignal = syscall.SIGUSR1

// Mode is the device operating mode.
type Mode string

// Device modes. Idle runs the product applications; the other two are
// the config-mode phases before and after the first operator contact.
const (
	ModeIdle               Mode = "idle"
	ModeWaitingForOperator Mode = "waiting_for_operator"
	ModeOperatorConnected  Mode = "operator_connected"
)

// AllModes lists every mode, for metrics labeling.
func AllModes() []string {
	return []string{
		string(ModeIdle),
		string(ModeWaitingForOperator),
		string(ModeOperatorConnected),
	}
}

// ConfigModeController enters and leaves access-point config mode.
// Implemented by apmode.Controller.
type ConfigModeController interface {
	Enter()
	Exit()
}

// ProcessSupervisor manages the product application processes.
// Implemented by process.Supervisor.
type ProcessSupervisor interface {
	Start(spec process.Spec) (int, error)
	StopAll()
}

// FatalReporter routes conditions that must end in a reboot.
// Implemented by failure.Reporter.
type FatalReporter interface {
	ReportFatal(kind failure.Kind, detail string, args ...any)
}

// Options holds the state machine's tunables.
type Options struct {
	// Tick is the poll period. Default 1s.
	Tick time.Duration
	// WindowSeconds is the inactivity window W, counted in ticks.
	// Default 300.
	WindowSeconds int
	// Products are the product applications to supervise.
	Products []process.Spec
	// PidFile is written on start so the ping subcommand can find
	// the supervisor. Empty disables it.
	PidFile string
	// Clock substitutes the time source. Used in tests.
	Clock clock.Clock
}

// Supervisor is the device mode state machine.
type Supervisor struct {
	mu        sync.Mutex
	mode      Mode
	countdown int

	tick     time.Duration
	window   int
	products []process.Spec
	pidFile  string

	clock      clock.Clock
	bus        *events.Bus
	button     button.Input
	led        led.Controller
	procs      ProcessSupervisor
	configMode ConfigModeController
	reporter   FatalReporter
	logger     logging.Logger

	queue  chan any
	stop   chan struct{}
	done   chan struct{}
	unsubs []func()

	ledOn       bool
	lastPressed bool
	pidWritten  bool
}

// New creates the state machine. Call Start to launch the loop.
func New(bus *events.Bus, input button.Input, indicator led.Controller,
	procs ProcessSupervisor, configMode ConfigModeController,
	reporter FatalReporter, opts Options) *Supervisor {

	if opts.Tick <= 0 {
		opts.Tick = time.Second
	}
	if opts.WindowSeconds <= 0 {
		opts.WindowSeconds = 300
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}

	return &Supervisor{
		mode:       ModeIdle,
		tick:       opts.Tick,
		window:     opts.WindowSeconds,
		products:   opts.Products,
		pidFile:    opts.PidFile,
		clock:      opts.Clock,
		bus:        bus,
		button:     input,
		led:        indicator,
		procs:      procs,
		configMode: configMode,
		reporter:   reporter,
		logger:     logging.GetLogger("supervisor"),
		queue:      make(chan any, 64),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start launches the product applications and the mode loop. When the
// button is already held at boot the device goes straight to config
// mode instead of starting the products.
func (s *Supervisor) Start() error {
	s.writePidFile()

	s.unsubs = append(s.unsubs,
		events.SubscribeToChannel[events.ProcessExitedEvent](s.bus, s.queue),
		events.SubscribeToChannel[events.OperatorActivityEvent](s.bus, s.queue),
	)
	s.notifySignals()

	metrics.SetMode(string(ModeIdle), AllModes())

	pressed, err := s.button.Pressed()
	if err != nil {
		s.logger.Warn("Button read failed at boot", "error", err)
		pressed = false
	}
	if pressed {
		s.logger.Info("Button held at boot, entering config mode")
		s.lastPressed = true
		s.enterConfigMode()
	} else {
		s.startProducts()
	}

	s.notifyReady()
	go s.run()

	s.logger.Info("Supervisor started",
		"tick", s.tick, "window_seconds", s.window, "products", len(s.products))
	return nil
}

// Stop terminates the loop. Production never calls this except
// through a unit stop; the device's own exit path is a reboot.
func (s *Supervisor) Stop() {
	close(s.stop)
	<-s.done
	for _, unsub := range s.unsubs {
		unsub()
	}
	s.unsubs = nil
	if s.pidWritten {
		if err := os.Remove(s.pidFile); err != nil {
			s.logger.Warn("Failed to remove pidfile", "path", s.pidFile, "error", err)
		}
	}
	s.logger.Info("Supervisor stopped")
}

// Status is a point-in-time snapshot for the status API.
type Status struct {
	Mode             Mode `json:"mode" example:"idle" doc:"Current device mode"`
	CountdownSeconds int  `json:"countdown_seconds" doc:"Seconds until config mode times out (0 in idle)"`
}

// Status reports the current mode and countdown.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{Mode: s.mode, CountdownSeconds: s.countdown}
}

func (s *Supervisor) run() {
	defer close(s.done)

	ticker := s.clock.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.handleTick()
		case ev := <-s.queue:
			s.handleEvent(ev)
		}
	}
}

func (s *Supervisor) handleTick() {
	// Capture the mode first so a press edge handled this tick does
	// not also burn one second of the countdown it just started.
	mode := s.currentMode()
	s.pollButton()

	switch mode {
	case ModeIdle:
	case ModeWaitingForOperator:
		s.ledOn = !s.ledOn
		s.setLED(s.ledOn)
		s.decrementCountdown()
	case ModeOperatorConnected:
		s.decrementCountdown()
	}
}

func (s *Supervisor) handleEvent(ev any) {
	switch e := ev.(type) {
	case events.OperatorActivityEvent:
		s.handlePing()
	case events.ProcessExitedEvent:
		s.handleExit(e)
	}
}

// pollButton samples the input once and reacts to a press edge. The
// edge only acts in idle mode; config mode ignores further presses.
func (s *Supervisor) pollButton() {
	pressed, err := s.button.Pressed()
	if err != nil {
		s.logger.Warn("Button read failed", "error", err)
		return
	}

	edge := pressed && !s.lastPressed
	s.lastPressed = pressed
	if !edge {
		return
	}

	s.bus.Publish(events.ButtonPressedEvent{Timestamp: s.clock.Now()})

	if s.currentMode() != ModeIdle {
		s.logger.Debug("Button press ignored outside idle mode", "mode", s.currentMode())
		return
	}
	s.logger.Info("Button pressed, entering config mode")
	s.enterConfigMode()
}

func (s *Supervisor) handlePing() {
	switch s.currentMode() {
	case ModeWaitingForOperator:
		s.setCountdown(s.window)
		s.ledOn = true
		s.setLED(true)
		s.transition(ModeOperatorConnected, "operator activity")
	case ModeOperatorConnected:
		s.setCountdown(s.window)
	case ModeIdle:
		// Stale ping from a config service that is no longer running.
		s.logger.Debug("Operator ping received in idle mode, ignoring")
	}
}

// handleExit consumes exit notifications for every child. An exit
// whose record was already removed by Stop is the normal result of a
// supervisor-initiated stop; anything else reboots the device.
func (s *Supervisor) handleExit(e events.ProcessExitedEvent) {
	if e.Expected {
		return
	}
	s.reporter.ReportFatal(failure.ProcessExitedUnexpectedly,
		fmt.Sprintf("process %s (pid %d, command %q) exited with code %d",
			e.ID, e.PID, e.Command, e.ExitCode))
}

func (s *Supervisor) enterConfigMode() {
	s.configMode.Enter()
	s.setCountdown(s.window)
	s.ledOn = true
	s.setLED(true)
	s.transition(ModeWaitingForOperator, "button")
}

// exitConfigMode tears config mode down. In production the controller
// reboots during Exit, so the restart and transition below are only
// observable in tests.
func (s *Supervisor) exitConfigMode(reason string) {
	s.ledOn = false
	s.setLED(false)
	s.configMode.Exit()
	s.startProducts()
	s.transition(ModeIdle, reason)
}

func (s *Supervisor) decrementCountdown() {
	s.mu.Lock()
	s.countdown--
	remaining := s.countdown
	s.mu.Unlock()
	metrics.SetInactivityCountdown(float64(remaining))

	if remaining <= 0 {
		s.logger.Info("Inactivity window elapsed, leaving config mode")
		s.exitConfigMode("inactivity timeout")
	}
}

func (s *Supervisor) setCountdown(seconds int) {
	s.mu.Lock()
	s.countdown = seconds
	s.mu.Unlock()
	metrics.SetInactivityCountdown(float64(seconds))
}

func (s *Supervisor) currentMode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

func (s *Supervisor) transition(to Mode, reason string) {
	s.mu.Lock()
	from := s.mode
	if from == to {
		s.mu.Unlock()
		return
	}
	s.mode = to
	s.mu.Unlock()

	s.logger.Info("Mode changed", "from", from, "to", to, "reason", reason)
	s.bus.Publish(events.ModeChangedEvent{
		From:      string(from),
		To:        string(to),
		Reason:    reason,
		Timestamp: s.clock.Now(),
	})
}

// startProducts launches every configured product application. A
// product that cannot even launch leaves the device unable to do its
// job, which is a fatal condition like any other.
func (s *Supervisor) startProducts() {
	for _, spec := range s.products {
		if _, err := s.procs.Start(spec); err != nil {
			s.reporter.ReportFatal(failure.CommandLaunchFailed,
				fmt.Sprintf("cannot start product application %s: %v", spec.Name, err))
			return
		}
	}
}

func (s *Supervisor) setLED(on bool) {
	if err := s.led.Set(on); err != nil {
		s.logger.Warn("Failed to drive status indicator", "on", on, "error", err)
	}
}

func (s *Supervisor) writePidFile() {
	if s.pidFile == "" {
		return
	}
	pid := strconv.Itoa(os.Getpid())
	if err := os.WriteFile(s.pidFile, []byte(pid+"\n"), 0o644); err != nil {
		s.logger.Warn("Failed to write pidfile", "path", s.pidFile, "error", err)
		return
	}
	s.pidWritten = true
}

// notifySignals forwards SIGUSR1 onto the bus as operator activity.
// The configuration service sends it on every recognized client
// action; the loop consumes it through the event queue like any other
// async input.
func (s *Supervisor) notifySignals() {
	sigCh := make(chan os.Signal, 4)
	signal.Notify(sigCh, operatorSignal)

	go func() {
		defer signal.Stop(sigCh)
		for {
			select {
			case <-s.stop:
				return
			case <-sigCh:
				s.bus.Publish(events.OperatorActivityEvent{Timestamp: s.clock.Now()})
			}
		}
	}()
}

// notifyReady tells systemd the unit is up and starts watchdog
// petting when WatchdogSec is set. Petting runs on its own goroutine
// rather than the tick loop: the failure policy deliberately pauses
// the whole system while an operator is connected, and that pause
// must not look like a wedged process.
func (s *Supervisor) notifyReady() {
	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		s.logger.Warn("systemd readiness notification failed", "error", err)
	} else if ok {
		s.logger.Debug("Notified systemd of readiness")
	}

	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		s.logger.Warn("systemd watchdog query failed", "error", err)
		return
	}
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval / 2)
		defer ticker.Stop()
		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				if _, err := daemon.SdNotify(false, daemon.SdNotifyWatchdog); err != nil {
					s.logger.Warn("systemd watchdog notification failed", "error", err)
				}
			}
		}
	}()
	s.logger.Info("systemd watchdog petting enabled", "interval", interval)
}

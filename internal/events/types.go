package events

import "time"

// Event type constants for kelindar/event.
const (
	TypeModeChanged uint32 = iota + 1
	TypeOperatorActivity
	TypeProcessExited
	TypeButtonPressed
	TypeFailure
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// ModeChangedEvent is published on every supervisor mode transition.
// Consumed by the LED manager and the metrics recorder.
type ModeChangedEvent struct {
	From      string    `json:"from" example:"idle" doc:"Previous supervisor mode"`
	To        string    `json:"to" example:"config" doc:"New supervisor mode"`
	Reason    string    `json:"reason" example:"button" doc:"What triggered the transition"`
	Timestamp time.Time `json:"timestamp" doc:"Transition timestamp"`
}

// Type returns the event type identifier for ModeChangedEvent.
func (e ModeChangedEvent) Type() uint32 { return TypeModeChanged }

// OperatorActivityEvent is published when an activity ping arrives
// while config mode is active. Each ping restarts the inactivity
// countdown.
type OperatorActivityEvent struct {
	Timestamp time.Time `json:"timestamp" doc:"Ping arrival timestamp"`
}

// Type returns the event type identifier for OperatorActivityEvent.
func (e OperatorActivityEvent) Type() uint32 { return TypeOperatorActivity }

// ProcessExitedEvent is published when a managed background process
// exits. Expected is true when the exit followed a supervisor stop.
type ProcessExitedEvent struct {
	ID        string    `json:"id" example:"player" doc:"Process identifier"`
	PID       int       `json:"pid" example:"1234" doc:"Operating system process ID"`
	Command   string    `json:"command,omitempty" doc:"Command line the process was started with"`
	ExitCode  int       `json:"exit_code" example:"0" doc:"Process exit code"`
	Expected  bool      `json:"expected" doc:"Whether the supervisor stopped this process"`
	Timestamp time.Time `json:"timestamp" doc:"Exit timestamp"`
}

// Type returns the event type identifier for ProcessExitedEvent.
func (e ProcessExitedEvent) Type() uint32 { return TypeProcessExited }

// ButtonPressedEvent is published on a button press edge.
type ButtonPressedEvent struct {
	Timestamp time.Time `json:"timestamp" doc:"Press timestamp"`
}

// Type returns the event type identifier for ButtonPressedEvent.
func (e ButtonPressedEvent) Type() uint32 { return TypeButtonPressed }

// FailureEvent is published when a fatal condition is reported. The
// device reboots once the reporting sequence completes, so subscribers
// mostly matter during the deferral window while a remote operator is
// still connected.
type FailureEvent struct {
	Kind      string    `json:"kind" example:"command_timeout" doc:"Failure classification"`
	Detail    string    `json:"detail" doc:"Human-readable failure description"`
	Deferred  bool      `json:"deferred" doc:"Whether the reboot is waiting on an operator to disconnect"`
	Timestamp time.Time `json:"timestamp" doc:"Report timestamp"`
}

// Type returns the event type identifier for FailureEvent.
func (e FailureEvent) Type() uint32 { return TypeFailure }

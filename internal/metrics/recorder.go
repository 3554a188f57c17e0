package metrics

import (
	"github.com/smazurov/nodewarden/internal/events"
)

// Recorder translates bus events into metric updates, keeping the
// counting out of the mode loop and the failure path.
type Recorder struct {
	modes  []string
	unsubs []func()
}

// NewRecorder creates a recorder that knows the full mode set, so the
// per-mode gauge always carries every label.
func NewRecorder(modes []string) *Recorder {
	return &Recorder{modes: modes}
}

// Subscribe attaches the recorder to the bus.
func (r *Recorder) Subscribe(bus *events.Bus) {
	r.unsubs = append(r.unsubs,
		bus.Subscribe(func(e events.ModeChangedEvent) {
			CountModeTransition(e.From, e.To)
			SetMode(e.To, r.modes)
		}),
		bus.Subscribe(func(_ events.OperatorActivityEvent) {
			CountOperatorPing()
		}),
		bus.Subscribe(func(e events.ProcessExitedEvent) {
			CountProcessExit(e.ID, e.Expected)
		}),
		bus.Subscribe(func(_ events.ButtonPressedEvent) {
			CountButtonPress()
		}),
		bus.Subscribe(func(e events.FailureEvent) {
			CountFailure(e.Kind)
		}),
	)
}

// Unsubscribe detaches the recorder from the bus.
func (r *Recorder) Unsubscribe() {
	for _, unsub := range r.unsubs {
		unsub()
	}
	r.unsubs = nil
}

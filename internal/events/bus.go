package events

import (
	"github.com/kelindar/event"
)

// Bus wraps kelindar/event dispatcher for event broadcasting
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus
func New() *Bus {
	return &Bus{
		dispatcher: event.NewDispatcher(),
	}
}

// Publish publishes an event to all subscribers
// Usage: bus.Publish(ModeChangedEvent{...})
func (b *Bus) Publish(ev Event) {
	// Type switch to call the generic Publish with the correct type
	switch e := ev.(type) {
	case ModeChangedEvent:
		event.Publish(b.dispatcher, e)
	case OperatorActivityEvent:
		event.Publish(b.dispatcher, e)
	case ProcessExitedEvent:
		event.Publish(b.dispatcher, e)
	case ButtonPressedEvent:
		event.Publish(b.dispatcher, e)
	case FailureEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe subscribes to events with a handler function
// The handler type determines which events it receives
// Returns an unsubscribe function
// Usage: unsub := bus.Subscribe(func(e ModeChangedEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(ModeChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(OperatorActivityEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ProcessExitedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ButtonPressedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(FailureEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		// No-op unsubscribe if handler type is not recognized
		return func() {}
	}
}

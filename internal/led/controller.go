package led

// Controller drives the status indicator.
//
// The mode loop owns all writes: off in Idle, toggled once per tick
// while waiting for an operator, solid while one is connected.
type Controller interface {
	// Set switches the indicator on or off.
	Set(on bool) error

	// Available reports whether a real indicator is wired.
	Available() bool
}

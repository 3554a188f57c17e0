package button

// Input reports the state of the config-mode button.
//
// The mode loop samples once per tick and detects press edges itself,
// so implementations only need an instantaneous level read.
type Input interface {
	Pressed() (bool, error)
}

package button

// noop implements Input for devices without a usable button.
type noop struct{}

func newNoop() *noop {
	return &noop{}
}

// Pressed always reports an unpressed button.
func (n *noop) Pressed() (bool, error) {
	return false, nil
}

package led

// noop implements Controller for systems without a usable status LED.
type noop struct{}

func newNoop() *noop {
	return &noop{}
}

// Set performs no hardware control.
func (n *noop) Set(on bool) error {
	return nil
}

// Available reports that no indicator is wired.
func (n *noop) Available() bool {
	return false
}

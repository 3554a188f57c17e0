package button

import (
	"github.com/smazurov/nodewarden/internal/logging"
)

// Config selects the button input source.
type Config struct {
	// Pin is the GPIO number of the button. Negative means no button
	// is wired.
	Pin int
	// ActiveLow inverts the reading for buttons that pull the pin to
	// ground when pressed.
	ActiveLow bool
}

// New creates the button input for the configured pin. Devices without
// a button, or without the sysfs GPIO tree, degrade to an input that
// never reports a press: supervision keeps running, config mode just
// cannot be entered.
func New(config Config, logger logging.Logger) Input {
	if config.Pin < 0 {
		if logger != nil {
			logger.Info("No button pin configured, config mode disabled")
		}
		return newNoop()
	}

	input, err := newSysfs(config.Pin, config.ActiveLow)
	if err != nil {
		if logger != nil {
			logger.Warn("Button unavailable, config mode disabled",
				"pin", config.Pin, "error", err)
		}
		return newNoop()
	}

	if logger != nil {
		logger.Info("Button input ready", "pin", config.Pin, "active_low", config.ActiveLow)
	}
	return input
}

package led

import (
	"os"
	"strings"

	"github.com/smazurov/nodewarden/internal/logging"
)

const deviceTreeModelPath = "/proc/device-tree/model"

// New creates the status indicator controller. An explicit LED name
// overrides board detection; otherwise the board model picks a
// default. Falls back to a no-op controller when no LED is usable.
func New(name string, logger logging.Logger) Controller {
	if name == "" {
		name = detectStatusLED(logger)
	}
	if name == "" {
		if logger != nil {
			logger.Info("No status LED available, indicator disabled")
		}
		return newNoop()
	}

	controller, err := newSysfs(name)
	if err != nil {
		if logger != nil {
			logger.Warn("Status LED unavailable, indicator disabled",
				"led", name, "error", err)
		}
		return newNoop()
	}

	if logger != nil {
		logger.Info("Status LED ready", "led", name)
	}
	return controller
}

// detectStatusLED picks the status LED for known boards.
func detectStatusLED(logger logging.Logger) string {
	boardModel := detectBoard()
	if logger != nil {
		logger.Info("Detecting board for status LED", "board_model", boardModel)
	}

	switch {
	case strings.Contains(boardModel, "NanoPC-T6"):
		return "usr_led"
	case strings.Contains(boardModel, "Orange Pi"):
		return "blue_led"
	case strings.Contains(boardModel, "Raspberry Pi"):
		return "ACT"
	default:
		return ""
	}
}

// detectBoard reads the device tree model to identify the board.
func detectBoard() string {
	data, err := os.ReadFile(deviceTreeModelPath)
	if err != nil {
		return "unknown"
	}

	// Device tree model contains null bytes, trim them
	model := strings.TrimRight(string(data), "\x00")
	return model
}

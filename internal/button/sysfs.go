package button

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const sysfsGPIOPath = "/sys/class/gpio"

// sysfs implements Input using the Linux sysfs GPIO interface.
type sysfs struct {
	pin       int
	activeLow bool
	valuePath string
}

// newSysfs exports the pin if needed, configures it as an input, and
// wires the value file for reads.
func newSysfs(pin int, activeLow bool) (*sysfs, error) {
	pinDir := filepath.Join(sysfsGPIOPath, fmt.Sprintf("gpio%d", pin))

	// Exporting an already-exported pin fails, so skip when the pin
	// directory exists.
	if _, err := os.Stat(pinDir); os.IsNotExist(err) {
		exportPath := filepath.Join(sysfsGPIOPath, "export")
		if err := os.WriteFile(exportPath, []byte(strconv.Itoa(pin)), 0o644); err != nil {
			return nil, fmt.Errorf("export gpio %d: %w", pin, err)
		}
	}

	directionPath := filepath.Join(pinDir, "direction")
	if err := os.WriteFile(directionPath, []byte("in"), 0o644); err != nil {
		return nil, fmt.Errorf("set gpio %d direction: %w", pin, err)
	}

	return &sysfs{
		pin:       pin,
		activeLow: activeLow,
		valuePath: filepath.Join(pinDir, "value"),
	}, nil
}

// Pressed reads the pin level once.
func (s *sysfs) Pressed() (bool, error) {
	data, err := os.ReadFile(s.valuePath)
	if err != nil {
		return false, fmt.Errorf("read gpio %d: %w", s.pin, err)
	}
	high := strings.TrimSpace(string(data)) == "1"
	if s.activeLow {
		return !high, nil
	}
	return high, nil
}

package led

import (
	"fmt"
	"os"
	"path/filepath"
)

const sysfsLEDPath = "/sys/class/leds"

// sysfs implements Controller using the Linux sysfs LED interface.
type sysfs struct {
	name           string
	brightnessPath string
}

// newSysfs takes manual control of the named LED by clearing its
// trigger, leaving brightness writes as the only driver.
func newSysfs(name string) (*sysfs, error) {
	ledPath := filepath.Join(sysfsLEDPath, name)
	if _, err := os.Stat(ledPath); err != nil {
		return nil, fmt.Errorf("LED %q not found at %s", name, ledPath)
	}

	triggerPath := filepath.Join(ledPath, "trigger")
	if err := os.WriteFile(triggerPath, []byte("none"), 0o644); err != nil {
		return nil, fmt.Errorf("clear LED trigger: %w", err)
	}

	return &sysfs{
		name:           name,
		brightnessPath: filepath.Join(ledPath, "brightness"),
	}, nil
}

// Set switches the LED on or off.
func (s *sysfs) Set(on bool) error {
	value := "0"
	if on {
		value = "1"
	}
	if err := os.WriteFile(s.brightnessPath, []byte(value), 0o644); err != nil {
		return fmt.Errorf("set LED brightness: %w", err)
	}
	return nil
}

// Available reports a wired indicator.
func (s *sysfs) Available() bool {
	return true
}

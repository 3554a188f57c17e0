package button

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/smazurov/nodewarden/internal/logging"
)

func TestNoopNeverPressed(t *testing.T) {
	input := newNoop()

	for range 3 {
		pressed, err := input.Pressed()
		if err != nil {
			t.Fatalf("Pressed() returned error: %v", err)
		}
		if pressed {
			t.Error("noop input reported a press")
		}
	}
}

func TestSysfsPressed(t *testing.T) {
	valuePath := filepath.Join(t.TempDir(), "value")

	tests := []struct {
		name      string
		value     string
		activeLow bool
		want      bool
	}{
		{"high active-high", "1\n", false, true},
		{"low active-high", "0\n", false, false},
		{"high active-low", "1\n", true, false},
		{"low active-low", "0\n", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := os.WriteFile(valuePath, []byte(tt.value), 0o644); err != nil {
				t.Fatalf("write value file: %v", err)
			}

			input := &sysfs{pin: 4, activeLow: tt.activeLow, valuePath: valuePath}
			pressed, err := input.Pressed()
			if err != nil {
				t.Fatalf("Pressed() returned error: %v", err)
			}
			if pressed != tt.want {
				t.Errorf("Pressed() = %v, want %v", pressed, tt.want)
			}
		})
	}
}

func TestSysfsReadError(t *testing.T) {
	input := &sysfs{pin: 4, valuePath: filepath.Join(t.TempDir(), "missing")}

	if _, err := input.Pressed(); err == nil {
		t.Error("expected error reading missing value file")
	}
}

func TestNewWithoutPinDegradesToNoop(t *testing.T) {
	input := New(Config{Pin: -1}, logging.GetLogger("button"))

	pressed, err := input.Pressed()
	if err != nil {
		t.Fatalf("Pressed() returned error: %v", err)
	}
	if pressed {
		t.Error("degraded input reported a press")
	}
}

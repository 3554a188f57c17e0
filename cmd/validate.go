package cmd

import (
	"fmt"
	"os"

	"github.com/smazurov/nodewarden/internal/button"
	"github.com/smazurov/nodewarden/internal/led"
	"github.com/smazurov/nodewarden/internal/logging"
	"github.com/spf13/cobra"
)

// CreateValidateHardwareCmd creates the validate-hardware command. It
// probes the button input and the status indicator so an installer can
// confirm the wiring before enabling config mode on a new board.
func CreateValidateHardwareCmd() *cobra.Command {
	var buttonPin int
	var buttonActiveLow bool
	var ledName string

	cmd := &cobra.Command{
		Use:   "validate-hardware",
		Short: "Probe the config-mode button and status indicator",
		Long: `Reads the configured button input once and blinks the status indicator, ` +
			`reporting whether each is usable. Missing hardware is reported, not fatal: ` +
			`the supervisor degrades to supervision-only mode without it.`,
		Run: func(_ *cobra.Command, _ []string) {
			logging.Initialize(logging.Config{Level: "warn", Format: "text"})
			logger := logging.GetLogger("validate")

			ok := true

			input := button.New(button.Config{Pin: buttonPin, ActiveLow: buttonActiveLow}, logger)
			if pressed, err := input.Pressed(); err != nil {
				fmt.Printf("button:    FAIL  pin %d: %v\n", buttonPin, err)
				ok = false
			} else if buttonPin < 0 {
				fmt.Println("button:    SKIP  no pin configured")
			} else {
				fmt.Printf("button:    OK    pin %d reads pressed=%v\n", buttonPin, pressed)
			}

			indicator := led.New(ledName, logger)
			if !indicator.Available() {
				fmt.Println("indicator: SKIP  no status LED found")
			} else if err := blink(indicator); err != nil {
				fmt.Printf("indicator: FAIL  %v\n", err)
				ok = false
			} else {
				fmt.Println("indicator: OK    blinked once")
			}

			if !ok {
				os.Exit(1)
			}
		},
	}

	cmd.Flags().IntVar(&buttonPin, "button-pin", -1, "GPIO pin number of the config-mode button")
	cmd.Flags().BoolVar(&buttonActiveLow, "button-active-low", false, "Button reads 0 when pressed")
	cmd.Flags().StringVar(&ledName, "led", "", "Status LED name under /sys/class/leds (auto-detected when empty)")

	return cmd
}

func blink(indicator led.Controller) error {
	if err := indicator.Set(true); err != nil {
		return err
	}
	return indicator.Set(false)
}

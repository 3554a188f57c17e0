package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
)

// CreatePingCmd creates the ping command. The configuration service
// shells out to it on every recognized client action to keep the
// inactivity countdown from expiring while an operator is working.
func CreatePingCmd() *cobra.Command {
	var pidFile string

	cmd := &cobra.Command{
		Use:   "ping",
		Short: "Signal operator activity to the running supervisor",
		Long: `Sends the operator-activity signal (SIGUSR1) to the supervisor ` +
			`identified by its pidfile. While the device is in config mode this ` +
			`resets the inactivity countdown; outside config mode it is ignored.`,
		Run: func(_ *cobra.Command, _ []string) {
			pid, err := readPidFile(pidFile)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			if err := syscall.Kill(pid, syscall.SIGUSR1); err != nil {
				fmt.Fprintf(os.Stderr, "Error: signaling pid %d: %v\n", pid, err)
				os.Exit(1)
			}
			fmt.Printf("Pinged supervisor (pid %d)\n", pid)
		},
	}

	cmd.Flags().StringVar(&pidFile, "pidfile", "/run/nodewarden.pid", "Path to the supervisor pidfile")

	return cmd
}

func readPidFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("reading pidfile: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("pidfile %s does not contain a pid: %w", path, err)
	}
	return pid, nil
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Command outcome labels.
const (
	CommandCompleted    = "completed"
	CommandFailed       = "failed"
	CommandTimedOut     = "timed_out"
	CommandLaunchFailed = "launch_failed"
)

var commandDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "nodewarden",
	Subsystem: "command",
	Name:      "duration_seconds",
	Help:      "Foreground command duration by command name and outcome",
	// Network service restarts normally finish in a few seconds;
	// the top bucket sits at the default command deadline.
	Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
}, []string{"command", "status"})

// ObserveCommand records one command execution.
func ObserveCommand(command string, seconds float64, status string) {
	commandDuration.WithLabelValues(command, status).Observe(seconds)
}

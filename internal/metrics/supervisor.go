// Package metrics provides Prometheus metrics for the supervisor,
// managed processes, and command execution.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	supervisorMode = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "nodewarden",
		Subsystem: "supervisor",
		Name:      "mode",
		Help:      "Current supervisor mode (1 for the active mode, 0 otherwise)",
	}, []string{"mode"})

	modeTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nodewarden",
		Subsystem: "supervisor",
		Name:      "mode_transitions_total",
		Help:      "Mode transitions by source and destination",
	}, []string{"from", "to"})

	inactivityCountdown = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "nodewarden",
		Subsystem: "supervisor",
		Name:      "inactivity_countdown_seconds",
		Help:      "Seconds remaining before config mode times out (0 when idle)",
	})

	buttonPresses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "nodewarden",
		Subsystem: "supervisor",
		Name:      "button_presses_total",
		Help:      "Button press edges detected",
	})

	operatorPings = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "nodewarden",
		Subsystem: "supervisor",
		Name:      "operator_pings_total",
		Help:      "Operator activity pings received",
	})

	failures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nodewarden",
		Subsystem: "failure",
		Name:      "reported_total",
		Help:      "Fatal conditions reported, by kind",
	}, []string{"kind"})

	processStarts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nodewarden",
		Subsystem: "process",
		Name:      "starts_total",
		Help:      "Background process starts, by process id",
	}, []string{"id"})

	processExits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nodewarden",
		Subsystem: "process",
		Name:      "exits_total",
		Help:      "Background process exits, by process id and whether expected",
	}, []string{"id", "expected"})
)

// SetMode marks one mode active and the others inactive.
func SetMode(active string, all []string) {
	for _, mode := range all {
		value := 0.0
		if mode == active {
			value = 1.0
		}
		supervisorMode.WithLabelValues(mode).Set(value)
	}
}

// CountModeTransition records a mode transition.
func CountModeTransition(from, to string) {
	modeTransitions.WithLabelValues(from, to).Inc()
}

// SetInactivityCountdown sets the seconds remaining in config mode.
func SetInactivityCountdown(seconds float64) {
	inactivityCountdown.Set(seconds)
}

// CountButtonPress records a button press edge.
func CountButtonPress() {
	buttonPresses.Inc()
}

// CountOperatorPing records an operator activity ping.
func CountOperatorPing() {
	operatorPings.Inc()
}

// CountFailure records a reported fatal condition.
func CountFailure(kind string) {
	failures.WithLabelValues(kind).Inc()
}

// CountProcessStart records a background process start.
func CountProcessStart(id string) {
	processStarts.WithLabelValues(id).Inc()
}

// CountProcessExit records a background process exit.
func CountProcessExit(id string, expected bool) {
	label := "false"
	if expected {
		label = "true"
	}
	processExits.WithLabelValues(id, label).Inc()
}

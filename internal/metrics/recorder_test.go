package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/smazurov/nodewarden/internal/events"
)

// waitForValue polls until the metric reaches want. Bus handlers run on
// dispatcher goroutines, so updates land shortly after Publish returns.
func waitForValue(t *testing.T, want float64, read func() float64) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if read() == want {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("metric never reached %v, last value %v", want, read())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestRecorderCountsBusEvents(t *testing.T) {
	bus := events.New()
	rec := NewRecorder([]string{"idle", "waiting_for_operator", "operator_connected"})
	rec.Subscribe(bus)
	defer rec.Unsubscribe()

	transitionsBefore := testutil.ToFloat64(modeTransitions.WithLabelValues("idle", "operator_connected"))
	bus.Publish(events.ModeChangedEvent{
		From:      "idle",
		To:        "operator_connected",
		Reason:    "session",
		Timestamp: time.Now(),
	})
	waitForValue(t, transitionsBefore+1, func() float64 {
		return testutil.ToFloat64(modeTransitions.WithLabelValues("idle", "operator_connected"))
	})
	if got := testutil.ToFloat64(supervisorMode.WithLabelValues("operator_connected")); got != 1 {
		t.Errorf("active mode gauge = %v, want 1", got)
	}

	failuresBefore := testutil.ToFloat64(failures.WithLabelValues("command_timeout"))
	bus.Publish(events.FailureEvent{
		Kind:      "command_timeout",
		Detail:    "nmcli hung",
		Timestamp: time.Now(),
	})
	waitForValue(t, failuresBefore+1, func() float64 {
		return testutil.ToFloat64(failures.WithLabelValues("command_timeout"))
	})

	exitsBefore := testutil.ToFloat64(processExits.WithLabelValues("recorder-player", "false"))
	bus.Publish(events.ProcessExitedEvent{
		ID:        "recorder-player",
		PID:       99,
		ExitCode:  1,
		Expected:  false,
		Timestamp: time.Now(),
	})
	waitForValue(t, exitsBefore+1, func() float64 {
		return testutil.ToFloat64(processExits.WithLabelValues("recorder-player", "false"))
	})
}

func TestRecorderUnsubscribeStopsCounting(t *testing.T) {
	bus := events.New()
	rec := NewRecorder([]string{"idle"})
	rec.Subscribe(bus)

	pingsBefore := testutil.ToFloat64(operatorPings)
	bus.Publish(events.OperatorActivityEvent{Timestamp: time.Now()})
	waitForValue(t, pingsBefore+1, func() float64 {
		return testutil.ToFloat64(operatorPings)
	})

	rec.Unsubscribe()
	bus.Publish(events.OperatorActivityEvent{Timestamp: time.Now()})
	time.Sleep(50 * time.Millisecond)
	if got := testutil.ToFloat64(operatorPings); got != pingsBefore+1 {
		t.Errorf("pings = %v, want %v after unsubscribe", got, pingsBefore+1)
	}
}

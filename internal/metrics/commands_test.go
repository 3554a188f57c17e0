package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveCommand(t *testing.T) {
	ObserveCommand("nmcli", 1.2, CommandCompleted)
	ObserveCommand("nmcli", 0.4, CommandCompleted)
	ObserveCommand("nmcli", 60.0, CommandTimedOut)

	// One histogram child per (command, status) pair.
	if got := testutil.CollectAndCount(commandDuration); got < 2 {
		t.Errorf("collected %d histogram children, want at least 2", got)
	}
}

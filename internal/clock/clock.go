// Package clock provides an injectable time source so the tick loop,
// command deadlines, and grace windows can be tested deterministically.
//
// Production code injects Real(); tests inject Fake() and drive time
// forward with Advance.
package clock

import "time"

// Clock abstracts the time operations the daemon uses. Anything that
// calls time.Now, time.After, time.NewTicker, or time.Sleep should take
// a Clock instead.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the current time once d
	// has elapsed. If d <= 0 the channel receives immediately.
	After(d time.Duration) <-chan time.Time

	// NewTicker returns a Ticker delivering ticks on C at the given
	// interval. Panics if d <= 0.
	NewTicker(d time.Duration) *Ticker

	// Sleep pauses the current goroutine for at least d.
	Sleep(d time.Duration)
}

// Ticker wraps a periodic timer. Read ticks from C and call Stop when
// done. C has capacity 1; if the consumer falls behind, ticks are
// dropped rather than queued.
type Ticker struct {
	C <-chan time.Time

	stopFunc  func()
	resetFunc func(time.Duration)
}

// Stop turns off the ticker. It does not close C.
func (t *Ticker) Stop() { t.stopFunc() }

// Reset restarts the tick cycle with a new interval.
func (t *Ticker) Reset(d time.Duration) { t.resetFunc(d) }

// Real returns a Clock backed by the standard time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

func (realClock) NewTicker(d time.Duration) *Ticker {
	ticker := time.NewTicker(d)
	return &Ticker{
		C:         ticker.C,
		stopFunc:  ticker.Stop,
		resetFunc: ticker.Reset,
	}
}

func (realClock) Sleep(d time.Duration) { time.Sleep(d) }

// Package scanloop provides the shared periodic-loop primitive used by the
// gateway poller and other background workers.
package scanloop

import (
	"math/rand/v2"
	"time"
)

// Run executes fn at a jittered interval until stopCh is closed.
// The interval is: minInterval + random([0, jitterRange)). The next wait
// starts only after fn returns, so invocations never overlap; a slow fn
// lowers the effective rate instead of queueing ticks.
func Run(stopCh <-chan struct{}, minInterval, jitterRange time.Duration, fn func()) {
	if minInterval <= 0 {
		minInterval = time.Second
	}
	if jitterRange < 0 {
		jitterRange = 0
	}

	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C // drain initial fire

	for {
		interval := minInterval
		if jitterRange > 0 {
			interval += time.Duration(rand.Int64N(int64(jitterRange)))
		}

		timer.Reset(interval)
		select {
		case <-stopCh:
			return
		case <-timer.C:
		}
		fn()
	}
}

// RunNow behaves like Run but invokes fn once immediately before entering
// the wait loop. Pollers use it so the first sample does not lag by one
// interval at startup.
func RunNow(stopCh <-chan struct{}, minInterval, jitterRange time.Duration, fn func()) {
	select {
	case <-stopCh:
		return
	default:
	}
	fn()
	Run(stopCh, minInterval, jitterRange, fn)
}

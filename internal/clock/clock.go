// Package clock is the CSM's single source of time: a monotonic "now" plus
// single-shot timers. Every component that needs to schedule or measure
// elapsed time goes through a Clock instead of calling time.Now/time.AfterFunc
// directly, so tests can swap in a Fake and drive timers deterministically.
package clock

import "time"

// Timer is a cancel handle for a single scheduled callback.
type Timer interface {
	// Stop cancels the timer. It reports whether the cancellation won the
	// race with the timer firing, exactly like time.Timer.Stop.
	Stop() bool
}

// Clock is the only source of time the CSM uses.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// System is a Clock backed by the real wall clock.
type System struct{}

func (System) Now() time.Time { return time.Now() }

func (System) AfterFunc(d time.Duration, f func()) Timer {
	return systemTimer{time.AfterFunc(d, f)}
}

type systemTimer struct{ t *time.Timer }

func (s systemTimer) Stop() bool { return s.t.Stop() }

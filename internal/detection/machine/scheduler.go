package machine

import "time"

// Timer is a scheduled callback that can be stopped.
type Timer interface {
	// Stop prevents the callback from running. It reports whether the call stopped it.
	Stop() bool
}

// Scheduler arms deferred callbacks for the confirmation countdown.
type Scheduler interface {
	Schedule(delay time.Duration, fn func()) (Timer, error)
}

// TimerScheduler schedules callbacks with time.AfterFunc.
type TimerScheduler struct{}

// Schedule runs fn in its own goroutine after delay.
//
//nolint:ireturn // *time.Timer satisfies Timer.
func (TimerScheduler) Schedule(delay time.Duration, fn func()) (Timer, error) {
	return time.AfterFunc(delay, fn), nil
}

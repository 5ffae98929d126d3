package services

import "time"

// Timer is a pending scheduled call.
type Timer interface {
	// Stop prevents the call from running; it reports whether it did.
	Stop() bool
}

// Scheduler runs f once after d.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// SystemScheduler uses the runtime timers.
type SystemScheduler struct{}

func (SystemScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

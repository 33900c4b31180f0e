// Package clock abstracts time so timeouts, debounces and restart
// backoff can be driven deterministically in tests.
//
// Production code injects Real(); tests inject NewFake() and move time
// with Advance.
package clock

import "time"

// Clock is the subset of the time package the shell depends on
type Clock interface {
	Now() time.Time
	// AfterFunc calls f in its own goroutine (real) or synchronously
	// during Advance (fake) once d has elapsed.
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer cancels a pending AfterFunc
type Timer interface {
	// Stop returns false if the timer already fired or was stopped
	Stop() bool
}

type realClock struct{}

// Real returns the wall clock
func Real() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Since is time.Since against an injected clock
func Since(c Clock, t time.Time) time.Duration {
	return c.Now().Sub(t)
}

package gamestate

import (
	"math"
)

// PauseLock is a counter held by in-flight side effects of the running action. A stage only completes when the
// counter is back at zero.
type PauseLock struct {
	count int
}

// Acquire increments the counter. Acquiring past math.MaxInt is a programming error and panics.
func (l *PauseLock) Acquire() {
	if l.count == math.MaxInt {
		panic("gamestate: pause lock acquired too many times")
	}
	l.count++
}

// Release decrements the counter. Releasing an unheld lock is a programming error and panics.
func (l *PauseLock) Release() {
	if l.count == 0 {
		panic("gamestate: pause lock released more times than acquired")
	}
	l.count--
}

// Locked reports whether anyone holds the lock.
func (l *PauseLock) Locked() bool {
	return l.count > 0
}

// Reset drops every acquisition.
func (l *PauseLock) Reset() {
	l.count = 0
}

package gameserver

import (
	"sync"
	"time"
)

// scheduledTimer fires a callback after a duration unless stopped first.
// Cancellation is idempotent: firing after Stop is a no-op.
type scheduledTimer struct {
	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

// newScheduledTimer starts a timer that calls onFire after duration.
// onFire runs in its own goroutine.
//
// Precondition: duration > 0; onFire must not be nil.
// Postcondition: onFire will be called unless Stop is called first.
func newScheduledTimer(duration time.Duration, onFire func()) *scheduledTimer {
	st := &scheduledTimer{}
	st.timer = time.AfterFunc(duration, func() {
		st.mu.Lock()
		stopped := st.stopped
		st.mu.Unlock()
		if !stopped {
			onFire()
		}
	})
	return st
}

// Stop prevents the callback from firing. Safe to call multiple times.
//
// Postcondition: onFire will not be called after Stop returns.
func (st *scheduledTimer) Stop() {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.stopped = true
	st.timer.Stop()
}

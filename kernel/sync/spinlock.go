// Package sync provides the spinlock used to guard kernel data structures.
package sync

import (
	"runtime"
	"sync/atomic"
)

// spinAttempts is the number of acquisition attempts between yields.
const spinAttempts = 64

var (
	// yieldFn is invoked by a spinning task after a failed batch of
	// acquisition attempts so the lock holder gets a chance to run.
	yieldFn = runtime.Gosched
)

// Spinlock implements a lock where each task trying to acquire it busy-waits
// till the lock becomes available.
type Spinlock struct {
	state uint32
}

// Acquire blocks until the lock can be acquired by the currently active task.
// Any attempt to re-acquire a lock already held by the current task will cause
// a deadlock.
func (l *Spinlock) Acquire() {
	spin(&l.state, spinAttempts)
}

// TryToAcquire attempts to acquire the lock and returns true if the lock could
// be acquired or false otherwise.
func (l *Spinlock) TryToAcquire() bool {
	return atomic.SwapUint32(&l.state, 1) == 0
}

// Release relinquishes a held lock allowing other tasks to acquire it. Calling
// Release while the lock is free has no effect.
func (l *Spinlock) Release() {
	atomic.StoreUint32(&l.state, 0)
}

// spin busy-waits on state, calling yieldFn after every
// attemptsBeforeYielding failed attempts.
func spin(state *uint32, attemptsBeforeYielding uint32) {
	for {
		for attempt := uint32(0); attempt < attemptsBeforeYielding; attempt++ {
			if atomic.CompareAndSwapUint32(state, 0, 1) {
				return
			}
		}

		if yieldFn != nil {
			yieldFn()
		}
	}
}

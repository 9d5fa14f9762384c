package heap

import (
	"github.com/yawqi/blog-os-yawqi/kernel"
	"github.com/yawqi/blog-os-yawqi/kernel/irq"
	"github.com/yawqi/blog-os-yawqi/kernel/mm/allocator"
	"github.com/yawqi/blog-os-yawqi/kernel/sync"
)

var (
	// ErrHeapNotInitialized is returned when allocating from a heap whose
	// Init method has not been invoked.
	ErrHeapNotInitialized = &kernel.Error{Module: "heap", Message: "heap is not initialized"}
)

// Stats is a snapshot of the activity of a heap.
type Stats struct {
	AllocCalls      uint64
	FreeCalls       uint64
	FailedAllocs    uint64
	LiveAllocations uint64

	// LiveBytes is the sum of the requested sizes of live allocations.
	LiveBytes uint64
}

// Locked serializes access to a heap allocation strategy. Every operation
// disables interrupts and then acquires a spinlock for its duration.
// Interrupts raised while the lock is held are delivered after it is
// released so an interrupt handler that allocates never spins on a lock held
// by the code it interrupted.
//
// The zero value is an uninitialized heap; Init must be invoked before
// allocating.
type Locked[A any, P interface {
	*A
	allocator.Strategy
}] struct {
	lock        sync.Spinlock
	inner       A
	initialized bool
	stats       Stats
}

func (l *Locked[A, P]) acquire() {
	irq.Disable()
	l.lock.Acquire()
}

func (l *Locked[A, P]) release() {
	l.lock.Release()
	irq.Enable()
}

// Init initializes the wrapped strategy to serve allocations from
// [heapStart, heapStart+heapSize) and resets the heap statistics.
func (l *Locked[A, P]) Init(mem allocator.Memory, heapStart, heapSize uintptr) {
	l.acquire()
	defer l.release()

	P(&l.inner).Init(mem, heapStart, heapSize)
	l.initialized = true
	l.stats = Stats{}
}

// Alloc reserves size bytes aligned to align. A zero align is treated as 1.
func (l *Locked[A, P]) Alloc(size, align uintptr) (uintptr, *kernel.Error) {
	size, align, err := allocator.CheckLayout(size, align)
	if err != nil {
		return 0, err
	}

	l.acquire()
	defer l.release()

	if !l.initialized {
		return 0, ErrHeapNotInitialized
	}

	l.stats.AllocCalls++
	ptr, err := P(&l.inner).Alloc(size, align)
	if err != nil {
		l.stats.FailedAllocs++
		return 0, err
	}

	l.stats.LiveAllocations++
	l.stats.LiveBytes += uint64(size)
	return ptr, nil
}

// Free releases a block obtained by Alloc. The size and align arguments
// must match the ones passed to Alloc. Freeing into an uninitialized heap
// or with an invalid layout is a fatal error.
func (l *Locked[A, P]) Free(ptr, size, align uintptr) {
	size, align, err := allocator.CheckLayout(size, align)
	if err != nil {
		panic(err)
	}

	l.acquire()
	defer l.release()

	if !l.initialized {
		panic(ErrHeapNotInitialized)
	}

	P(&l.inner).Free(ptr, size, align)
	l.stats.FreeCalls++
	if l.stats.LiveAllocations != 0 {
		l.stats.LiveAllocations--
		l.stats.LiveBytes -= uint64(size)
	}
}

// Stats returns a snapshot of the heap statistics.
func (l *Locked[A, P]) Stats() Stats {
	l.acquire()
	defer l.release()

	return l.stats
}

// Initialized returns true once Init has been invoked.
func (l *Locked[A, P]) Initialized() bool {
	l.acquire()
	defer l.release()

	return l.initialized
}

// With invokes fn with the wrapped strategy while holding the lock. fn must
// not call back into l.
func (l *Locked[A, P]) With(fn func(P)) {
	l.acquire()
	defer l.release()

	fn(P(&l.inner))
}

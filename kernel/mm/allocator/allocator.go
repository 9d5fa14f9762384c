// Package allocator defines the contract shared by the kernel heap allocation
// strategies. Each strategy lives in its own sub-package; exactly one of them
// backs the kernel heap.
package allocator

import (
	"github.com/yawqi/blog-os-yawqi/kernel"
	"github.com/yawqi/blog-os-yawqi/kernel/mm"
)

var (
	// ErrOutOfMemory is returned when a strategy cannot satisfy an
	// allocation request.
	ErrOutOfMemory = &kernel.Error{Module: "allocator", Message: "out of memory"}

	// ErrInvalidLayout is returned for requests whose alignment is not a
	// power of two.
	ErrInvalidLayout = &kernel.Error{Module: "allocator", Message: "alignment must be a power of two"}
)

// Memory provides word access to the memory that backs a heap. Strategies
// that keep their bookkeeping inside the heap read and write it through this
// interface. Addresses passed to Memory are always 8-byte aligned.
type Memory interface {
	Uint64(addr uintptr) uint64
	PutUint64(addr uintptr, v uint64)
}

// Strategy is implemented by heap allocation strategies.
//
// Alloc and Free expect a valid layout: align is a power of two. Free must be
// passed the same size and align that were used to allocate ptr.
type Strategy interface {
	// Init prepares the strategy to serve allocations from the heap
	// [heapStart, heapStart+heapSize). Any previous state is discarded.
	Init(mem Memory, heapStart, heapSize uintptr)

	// Alloc reserves size bytes aligned to align and returns the start
	// address of the reserved block.
	Alloc(size, align uintptr) (uintptr, *kernel.Error)

	// Free releases a block previously returned by Alloc.
	Free(ptr, size, align uintptr)
}

// CheckLayout validates an allocation request. A zero alignment is treated
// as 1.
func CheckLayout(size, align uintptr) (uintptr, uintptr, *kernel.Error) {
	if align == 0 {
		align = 1
	}

	if !mm.IsPowerOfTwo(align) {
		return 0, 0, ErrInvalidLayout
	}

	return size, align, nil
}

// Dummy is a strategy that cannot allocate anything. Every call to Alloc
// fails with ErrOutOfMemory and Free panics as no pointer could have been
// obtained from it.
type Dummy struct{}

// Init implements Strategy.
func (Dummy) Init(Memory, uintptr, uintptr) {}

// Alloc implements Strategy.
func (Dummy) Alloc(uintptr, uintptr) (uintptr, *kernel.Error) {
	return 0, ErrOutOfMemory
}

// Free implements Strategy.
func (Dummy) Free(uintptr, uintptr, uintptr) {
	panic(errDummyFree)
}

var errDummyFree = &kernel.Error{Module: "allocator", Message: "dealloc should be never called"}

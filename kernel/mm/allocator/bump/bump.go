// Package bump implements a bump heap allocation strategy. Allocations are
// carved out of the heap in order and memory is only reclaimed once every
// allocation has been freed.
package bump

import (
	"github.com/yawqi/blog-os-yawqi/kernel"
	"github.com/yawqi/blog-os-yawqi/kernel/mm"
	"github.com/yawqi/blog-os-yawqi/kernel/mm/allocator"
)

// Allocator implements allocator.Strategy.
type Allocator struct {
	heapStart, heapEnd uintptr

	// next is the address where the next allocation will be placed.
	next uintptr

	// allocations tracks the number of live allocations.
	allocations uint64
}

// Init implements allocator.Strategy. The bump allocator keeps no state
// inside the heap so mem is not used.
func (a *Allocator) Init(_ allocator.Memory, heapStart, heapSize uintptr) {
	a.heapStart = heapStart
	a.heapEnd = heapStart + heapSize
	a.next = heapStart
	a.allocations = 0
}

// Alloc implements allocator.Strategy.
func (a *Allocator) Alloc(size, align uintptr) (uintptr, *kernel.Error) {
	allocStart := mm.AlignUp(a.next, align)
	allocEnd := allocStart + size
	if allocStart < a.next || allocEnd < allocStart || allocEnd > a.heapEnd {
		return 0, allocator.ErrOutOfMemory
	}

	a.next = allocEnd
	a.allocations++
	return allocStart, nil
}

// Free implements allocator.Strategy. The freed block is not reused until
// every live allocation has been freed; at that point the whole heap becomes
// available again.
func (a *Allocator) Free(_, _, _ uintptr) {
	if a.allocations == 0 {
		return
	}

	a.allocations--
	if a.allocations == 0 {
		a.next = a.heapStart
	}
}

// Allocations returns the number of live allocations.
func (a *Allocator) Allocations() uint64 {
	return a.allocations
}

// Used returns the number of heap bytes between the heap start and the
// next allocation address.
func (a *Allocator) Used() uintptr {
	return a.next - a.heapStart
}

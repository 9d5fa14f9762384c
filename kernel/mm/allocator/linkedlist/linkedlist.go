// Package linkedlist implements a free-list heap allocation strategy.
//
// Free regions are tracked by a singly linked list whose nodes are stored
// inside the free regions themselves. Each node is a 16-byte header holding
// the region size followed by the address of the next node. The list is kept
// in most-recently-freed-first order and adjacent free regions are never
// merged.
package linkedlist

import (
	"github.com/yawqi/blog-os-yawqi/kernel"
	"github.com/yawqi/blog-os-yawqi/kernel/mm"
	"github.com/yawqi/blog-os-yawqi/kernel/mm/allocator"
)

const (
	// HeaderSize is the size of a free region header. It is also the
	// smallest block that the allocator hands out.
	HeaderSize = uintptr(16)

	// HeaderAlign is the alignment of a free region header and the
	// minimum alignment of every block.
	HeaderAlign = uintptr(8)

	// nilNode terminates the free list.
	nilNode = uintptr(0)

	nextOffset = uintptr(8)
)

// Allocator implements allocator.Strategy.
type Allocator struct {
	mem  allocator.Memory
	head uintptr
}

// Init implements allocator.Strategy. The whole heap becomes a single free
// region. A heap start that is not header-aligned is rounded up; a heap that
// cannot hold a single header leaves the allocator empty.
func (a *Allocator) Init(mem allocator.Memory, heapStart, heapSize uintptr) {
	a.mem = mem
	a.head = nilNode

	start := mm.AlignUp(heapStart, HeaderAlign)
	if start < heapStart || start-heapStart >= heapSize {
		return
	}

	size := mm.AlignDown(heapSize-(start-heapStart), HeaderAlign)
	if size >= HeaderSize {
		a.pushFreeRegion(start, size)
	}
}

// Alloc implements allocator.Strategy. It performs a first-fit scan of the
// free list. If the region that satisfies the request is larger than needed,
// the unused tail becomes a new free region at the head of the list.
func (a *Allocator) Alloc(size, align uintptr) (uintptr, *kernel.Error) {
	size, align, ok := normalize(size, align)
	if !ok {
		return 0, allocator.ErrOutOfMemory
	}

	prev := nilNode
	for cur := a.head; cur != nilNode; {
		regionSize := uintptr(a.mem.Uint64(cur))
		next := uintptr(a.mem.Uint64(cur + nextOffset))

		if allocStart, ok := allocFromRegion(cur, regionSize, size, align); ok {
			// unlink the region
			if prev == nilNode {
				a.head = next
			} else {
				a.mem.PutUint64(prev+nextOffset, uint64(next))
			}

			allocEnd := allocStart + size
			if excess := cur + regionSize - allocEnd; excess > 0 {
				a.pushFreeRegion(allocEnd, excess)
			}

			return allocStart, nil
		}

		prev, cur = cur, next
	}

	return 0, allocator.ErrOutOfMemory
}

// Free implements allocator.Strategy. The block is pushed to the head of
// the free list.
func (a *Allocator) Free(ptr, size, align uintptr) {
	size, _, _ = normalize(size, align)
	a.pushFreeRegion(ptr, size)
}

// VisitFreeRegions invokes visitor for each free region in list order. The
// visitor must return true to continue or false to abort the scan.
func (a *Allocator) VisitFreeRegions(visitor func(addr, size uintptr) bool) {
	for cur := a.head; cur != nilNode; cur = uintptr(a.mem.Uint64(cur + nextOffset)) {
		if !visitor(cur, uintptr(a.mem.Uint64(cur))) {
			return
		}
	}
}

// FreeBytes returns the total size of the free regions.
func (a *Allocator) FreeBytes() uintptr {
	var total uintptr
	a.VisitFreeRegions(func(_, size uintptr) bool {
		total += size
		return true
	})
	return total
}

func (a *Allocator) pushFreeRegion(addr, size uintptr) {
	a.mem.PutUint64(addr, uint64(size))
	a.mem.PutUint64(addr+nextOffset, uint64(a.head))
	a.head = addr
}

// allocFromRegion returns the start address of a block of the requested
// size and alignment carved from the region at regionStart. The region is
// rejected if it is too small or if the unused tail could not hold a header.
func allocFromRegion(regionStart, regionSize, size, align uintptr) (uintptr, bool) {
	allocStart := mm.AlignUp(regionStart, align)
	allocEnd := allocStart + size
	regionEnd := regionStart + regionSize

	switch {
	case allocStart < regionStart, allocEnd < allocStart, allocEnd > regionEnd:
		return 0, false
	case regionEnd-allocEnd > 0 && regionEnd-allocEnd < HeaderSize:
		return 0, false
	}

	return allocStart, true
}

// normalize adjusts a request so that the returned block can hold a free
// region header once it is freed. It returns false if the rounded size does
// not fit in the address space.
func normalize(size, align uintptr) (uintptr, uintptr, bool) {
	if align < HeaderAlign {
		align = HeaderAlign
	}

	if size > ^uintptr(0)-(align-1) {
		return 0, 0, false
	}

	size = mm.AlignUp(size, align)
	if size < HeaderSize {
		size = HeaderSize
	}

	return size, align, true
}

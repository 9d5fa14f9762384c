// Package heap sets up the kernel heap and exposes the global allocation
// hook used by the rest of the kernel.
//
// The heap occupies a fixed virtual address range that is backed by frames
// from the physical frame allocator. Allocations inside it are served by one
// of the strategies under kernel/mm/allocator, selected at build time:
//
//	go build                      # fixed-size block strategy
//	go build -tags heaplinkedlist # linked-list strategy
//	go build -tags heapbump       # bump strategy
package heap

import (
	"github.com/yawqi/blog-os-yawqi/kernel"
	"github.com/yawqi/blog-os-yawqi/kernel/mm"
	"github.com/yawqi/blog-os-yawqi/kernel/mm/vmm"
)

const (
	// HeapStart is the default virtual address of the kernel heap.
	HeapStart = uintptr(0x_4444_4444_0000)

	// HeapSize is the default size of the kernel heap.
	HeapSize = uintptr(100 * mm.Kb)
)

var (
	// ErrMisalignedHeapRegion is returned when the heap start or size is
	// not a multiple of the page size.
	ErrMisalignedHeapRegion = &kernel.Error{Module: "heap", Message: "heap region must be page aligned"}
)

// Mapper is implemented by page directory tables that can install a page
// mapping, allocating any missing page tables from frames.
type Mapper interface {
	Map(page mm.Page, frame mm.Frame, flags vmm.PageTableEntryFlag, frames mm.FrameAllocator) *kernel.Error
}

// MapRegion backs the virtual range [start, start+size) with physical
// frames. For each page a frame is allocated from frames and mapped with
// FlagPresent|FlagRW. The first error aborts the operation and is returned
// as is; pages mapped up to that point stay mapped.
func MapRegion(mapper Mapper, frames mm.FrameAllocator, start, size uintptr) *kernel.Error {
	if !mm.IsAligned(start, mm.PageSize) || !mm.IsAligned(size, mm.PageSize) {
		return ErrMisalignedHeapRegion
	}

	startPage := mm.PageFromAddress(start)
	for page := startPage; page < startPage+mm.Page(size>>mm.PageShift); page++ {
		frame, err := frames.AllocFrame()
		if err != nil {
			return err
		}

		if err = mapper.Map(page, frame, vmm.FlagPresent|vmm.FlagRW, frames); err != nil {
			return err
		}
	}

	return nil
}

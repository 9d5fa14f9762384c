package pmm

import (
	"io"

	"github.com/yawqi/blog-os-yawqi/kernel"
	"github.com/yawqi/blog-os-yawqi/kernel/kfmt"
	"github.com/yawqi/blog-os-yawqi/kernel/mm"
	"github.com/yawqi/blog-os-yawqi/multiboot"
)

var (
	// ErrFrameExhausted is returned by AllocFrame once every usable frame
	// reported by the boot loader has been handed out.
	ErrFrameExhausted = &kernel.Error{Module: "boot_mem_alloc", Message: "out of memory"}
)

// frameRange describes the usable frames [start, end) of a memory region.
type frameRange struct {
	start, end mm.Frame
}

// BootMemAllocator implements a rudimentary physical memory allocator which is
// used to bootstrap the kernel.
//
// The allocator uses the memory region information provided by the
// bootloader to detect free memory blocks and returns the next available free
// frame in ascending region order. Allocations are tracked via a cursor that
// points to the next frame to hand out.
//
// Due to the way that the allocator works, it is not possible to free
// allocated frames.
type BootMemAllocator struct {
	regions []multiboot.MemoryMapEntry
	usable  []frameRange

	// (regionIndex, nextFrame) is the allocation cursor. Once regionIndex
	// reaches len(usable) the allocator is exhausted.
	regionIndex int
	nextFrame   mm.Frame

	// allocCount tracks the total number of allocated frames.
	allocCount uint64

	// frameCount is the total number of usable frames.
	frameCount uint64
}

// NewBootMemAllocator returns an allocator that serves frames from the
// available entries of the supplied memory map.
func NewBootMemAllocator(regions []multiboot.MemoryMapEntry) *BootMemAllocator {
	alloc := &BootMemAllocator{
		regions: append([]multiboot.MemoryMapEntry(nil), regions...),
	}

	pageSizeMinus1 := uint64(mm.PageSize - 1)
	for _, region := range alloc.regions {
		// Ignore reserved regions and regions smaller than a single page
		if region.Type != multiboot.MemAvailable || region.Length < uint64(mm.PageSize) {
			continue
		}

		// Reported addresses may not be page-aligned; round up to get
		// the start frame and round down to get the end frame
		startFrame := mm.Frame(((region.PhysAddress + pageSizeMinus1) &^ pageSizeMinus1) >> mm.PageShift)
		endFrame := mm.Frame(((region.PhysAddress + region.Length) &^ pageSizeMinus1) >> mm.PageShift)
		if endFrame <= startFrame {
			continue
		}

		alloc.usable = append(alloc.usable, frameRange{start: startFrame, end: endFrame})
		alloc.frameCount += uint64(endFrame - startFrame)
	}

	if len(alloc.usable) != 0 {
		alloc.nextFrame = alloc.usable[0].start
	}

	return alloc
}

// AllocFrame reserves the next available free frame. Frames are returned in
// ascending order within a region and regions are consumed in the order the
// bootloader reported them.
//
// AllocFrame returns ErrFrameExhausted if no more memory can be allocated.
// Once exhausted, every subsequent call fails.
func (alloc *BootMemAllocator) AllocFrame() (mm.Frame, *kernel.Error) {
	for alloc.regionIndex < len(alloc.usable) {
		region := alloc.usable[alloc.regionIndex]
		if alloc.nextFrame < region.end {
			frame := alloc.nextFrame
			alloc.nextFrame++
			alloc.allocCount++
			return frame, nil
		}

		alloc.regionIndex++
		if alloc.regionIndex < len(alloc.usable) {
			alloc.nextFrame = alloc.usable[alloc.regionIndex].start
		}
	}

	return mm.InvalidFrame, ErrFrameExhausted
}

// FrameCount returns the total number of usable frames.
func (alloc *BootMemAllocator) FrameCount() uint64 {
	return alloc.frameCount
}

// AllocCount returns the number of frames handed out so far.
func (alloc *BootMemAllocator) AllocCount() uint64 {
	return alloc.allocCount
}

// PrintMemoryMap prints out the system's memory map as reported by the
// bootloader followed by a summary of the usable memory.
func (alloc *BootMemAllocator) PrintMemoryMap(w io.Writer) {
	kfmt.Fprintf(w, "[boot_mem_alloc] system memory map:\n")

	var (
		totalFree mm.Size
		pw        = &kfmt.PrefixWriter{Sink: w, Prefix: []byte("\t")}
	)
	for _, region := range alloc.regions {
		kfmt.Fprintf(pw, "[0x%010x - 0x%010x], size: %10d, type: %s\n",
			region.PhysAddress, region.PhysAddress+region.Length, region.Length, region.Type.String())

		if region.Type == multiboot.MemAvailable {
			totalFree += mm.Size(region.Length)
		}
	}
	kfmt.Fprintf(w, "[boot_mem_alloc] available memory: %dKb\n", uint64(totalFree/mm.Kb))
	kfmt.Fprintf(w, "[boot_mem_alloc] usable frames: %d, allocated: %d\n", alloc.frameCount, alloc.allocCount)
}

// Package pmm implements the physical frame allocator used by the kernel
// while it boots.
package pmm

import (
	"github.com/yawqi/blog-os-yawqi/kernel"
	"github.com/yawqi/blog-os-yawqi/kernel/kfmt"
	"github.com/yawqi/blog-os-yawqi/kernel/mm"
	"github.com/yawqi/blog-os-yawqi/multiboot"
)

var (
	// bootMemAllocator is the frame allocator used when the kernel boots.
	bootMemAllocator *BootMemAllocator

	errNoUsableMemory = &kernel.Error{Module: "pmm", Message: "boot loader reported no usable memory"}
)

// Init sets up the kernel physical memory allocation sub-system using the
// memory map supplied by the boot loader and registers the boot allocator
// with mm.SetFrameAllocator.
func Init() *kernel.Error {
	var regions []multiboot.MemoryMapEntry
	multiboot.VisitMemRegions(func(region *multiboot.MemoryMapEntry) bool {
		regions = append(regions, *region)
		return true
	})

	alloc := NewBootMemAllocator(regions)
	if alloc.FrameCount() == 0 {
		return errNoUsableMemory
	}

	alloc.PrintMemoryMap(kfmt.GetOutputSink())

	bootMemAllocator = alloc
	mm.SetFrameAllocator(earlyAllocFrame)
	return nil
}

// BootAllocator returns the allocator installed by Init or nil if Init has
// not been invoked.
func BootAllocator() *BootMemAllocator {
	return bootMemAllocator
}

func earlyAllocFrame() (mm.Frame, *kernel.Error) {
	return bootMemAllocator.AllocFrame()
}

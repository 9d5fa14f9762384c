// Package kmain contains the kernel boot sequence.
package kmain

import (
	"strconv"

	"github.com/yawqi/blog-os-yawqi/kernel"
	"github.com/yawqi/blog-os-yawqi/kernel/mm"
	"github.com/yawqi/blog-os-yawqi/kernel/mm/heap"
	"github.com/yawqi/blog-os-yawqi/kernel/mm/physmem"
	"github.com/yawqi/blog-os-yawqi/kernel/mm/pmm"
	"github.com/yawqi/blog-os-yawqi/kernel/mm/vmm"
	"github.com/yawqi/blog-os-yawqi/multiboot"
)

const (
	// Boot command line keys that override the heap placement.
	heapStartParam = "heap_start"
	heapSizeParam  = "heap_size"
)

var (
	errInvalidHeapParam = &kernel.Error{Module: "kmain", Message: "invalid heap_start/heap_size boot parameter"}
)

// Kmain brings up the memory management sub-system of the kernel. It is
// invoked by the boot entry point with the multiboot info blob provided by
// the boot loader, the installed physical memory and the virtual address at
// which the boot loader mapped all of physical memory. The boot loader is
// expected to have loaded a valid page directory table into CR3.
//
// Kmain initializes, in order, the physical frame allocator, the virtual
// memory manager and the kernel heap and returns the kernel address space
// through which heap memory can be accessed. Any initialization failure is
// fatal and is reported with panic; the boot entry point is expected to hand
// the recovered value to kfmt.Panic.
func Kmain(multibootInfo []byte, mem *physmem.Memory, physOffset uintptr) *vmm.AddressSpace {
	multiboot.SetInfo(multibootInfo)

	var (
		as                  *vmm.AddressSpace
		heapStart, heapSize uintptr
		err                 *kernel.Error
	)

	if err = pmm.Init(); err != nil {
		panic(err)
	} else if as, err = vmm.Init(mem, physOffset); err != nil {
		panic(err)
	} else if heapStart, heapSize, err = heapRegion(multiboot.GetBootCmdLine()); err != nil {
		panic(err)
	} else if err = heap.Init(vmm.ActivePDT(mem, physOffset), mm.ActiveFrameAllocator(), as, heapStart, heapSize); err != nil {
		panic(err)
	}

	return as
}

// heapRegion returns the location of the kernel heap taking into account
// any overrides specified in the boot command line. Values may use any
// prefix accepted by strconv.ParseUint with a zero base.
func heapRegion(cmdLine map[string]string) (uintptr, uintptr, *kernel.Error) {
	start, size := heap.HeapStart, heap.HeapSize

	for key, dst := range map[string]*uintptr{heapStartParam: &start, heapSizeParam: &size} {
		v, ok := cmdLine[key]
		if !ok {
			continue
		}

		parsed, err := strconv.ParseUint(v, 0, 64)
		if err != nil {
			return 0, 0, errInvalidHeapParam
		}
		*dst = uintptr(parsed)
	}

	return start, size, nil
}

// Package vmm implements the virtual memory manager: 4-level page table
// walks, page mapping and translation, and the kernel's view of the virtual
// address space.
package vmm

import (
	"github.com/yawqi/blog-os-yawqi/kernel"
	"github.com/yawqi/blog-os-yawqi/kernel/cpu"
	"github.com/yawqi/blog-os-yawqi/kernel/irq"
	"github.com/yawqi/blog-os-yawqi/kernel/kfmt"
	"github.com/yawqi/blog-os-yawqi/kernel/mm"
	"github.com/yawqi/blog-os-yawqi/kernel/mm/physmem"
)

var (
	// the following functions are mocked by tests and are automatically
	// inlined by the compiler.
	readCR2Fn                 = cpu.ReadCR2
	handleExceptionWithCodeFn = irq.HandleExceptionWithCode

	errUnrecoverableFault = &kernel.Error{Module: "vmm", Message: "page/gpf fault"}
	errNoActivePDT        = &kernel.Error{Module: "vmm", Message: "active page directory is not backed by physical memory"}
)

// Init checks that the page directory loaded by the boot loader lives in
// physical memory, installs paging-related exception handlers and returns
// the kernel's address space.
func Init(mem *physmem.Memory, physOffset uintptr) (*AddressSpace, *kernel.Error) {
	pdt := ActivePDT(mem, physOffset)
	if !mem.Contains(pdt.Frame().Address(), mm.PageSize) {
		return nil, errNoActivePDT
	}

	installFaultHandlers()

	kfmt.Printf("[vmm] page directory at 0x%x, physical memory mapped at 0x%x\n", pdt.Frame().Address(), physOffset)
	return NewAddressSpace(mem, physOffset), nil
}

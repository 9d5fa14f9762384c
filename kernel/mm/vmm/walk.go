package vmm

import (
	"unsafe"

	"github.com/yawqi/blog-os-yawqi/kernel"
	"github.com/yawqi/blog-os-yawqi/kernel/mm"
	"github.com/yawqi/blog-os-yawqi/kernel/mm/physmem"
)

// physWindow describes the region of the virtual address space where the
// boot loader maps all of physical memory at a fixed offset. Page tables are
// always accessed through this window.
type physWindow struct {
	mem    *physmem.Memory
	offset uintptr
}

// toPhys returns the physical address backing a virtual address inside the
// window. The second result is false if virtAddr lies outside the window.
func (w physWindow) toPhys(virtAddr uintptr) (uintptr, bool) {
	if virtAddr < w.offset || virtAddr-w.offset >= uintptr(w.mem.Size()) {
		return 0, false
	}
	return virtAddr - w.offset, true
}

// tableEntry returns a pointer to the entry at entryIndex of the page table
// stored in tableFrame or nil if the table is not backed by physical memory.
func (w physWindow) tableEntry(tableFrame mm.Frame, entryIndex uintptr) *pageTableEntry {
	if !w.mem.Contains(tableFrame.Address(), mm.PageSize) {
		return nil
	}

	entryAddr := w.offset + tableFrame.Address() + (entryIndex << mm.PointerShift)
	physAddr, _ := w.toPhys(entryAddr)
	return (*pageTableEntry)(ptePtrFn(w.mem, physAddr))
}

var (
	// ptePtrFn returns a pointer to the page table entry at the supplied
	// physical address. It is used by tests to observe the entries visited
	// by walk.
	ptePtrFn = func(mem *physmem.Memory, physAddr uintptr) unsafe.Pointer {
		return mem.Ptr(physAddr)
	}

	errTableOutOfRange = &kernel.Error{Module: "vmm", Message: "page table frame is not backed by physical memory"}
)

// pageTableWalker is a function that can be passed to the walk method. The
// function receives the current page level and page table entry as its
// arguments.  If the function returns false, then the page walk is aborted.
type pageTableWalker func(pteLevel uint8, pte *pageTableEntry) bool

// walk performs a page table walk for the given virtual address starting at
// the P4 table stored in pdtFrame. It calls the suppplied walkFn with the page
// table entry that corresponds to each page table level. If walkFn returns
// false then the walk is aborted.
//
// The table for the next level is looked up after walkFn returns so walkFn
// may install a missing table. walk returns errTableOutOfRange if an entry
// points to a table outside of physical memory.
func (w physWindow) walk(pdtFrame mm.Frame, virtAddr uintptr, walkFn pageTableWalker) *kernel.Error {
	tableFrame := pdtFrame
	for level := uint8(0); level < pageLevels; level++ {
		// Extract the bits from virtual address that correspond to the
		// index in this level's page table
		entryIndex := (virtAddr >> pageLevelShifts[level]) & ((1 << pageLevelBits[level]) - 1)

		pte := w.tableEntry(tableFrame, entryIndex)
		if pte == nil {
			return errTableOutOfRange
		}

		if !walkFn(level, pte) {
			return nil
		}

		tableFrame = pte.Frame()
	}

	return nil
}

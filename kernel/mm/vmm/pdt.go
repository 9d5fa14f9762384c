package vmm

import (
	"github.com/yawqi/blog-os-yawqi/kernel"
	"github.com/yawqi/blog-os-yawqi/kernel/cpu"
	"github.com/yawqi/blog-os-yawqi/kernel/mm"
	"github.com/yawqi/blog-os-yawqi/kernel/mm/physmem"
)

var (
	// activePDTFn is used by tests to override calls to activePDT.
	activePDTFn = cpu.ActivePDT

	// switchPDTFn is used by tests to override calls to switchPDT.
	switchPDTFn = cpu.SwitchPDT

	// flushTLBEntryFn is used by tests to override calls to flushTLBEntry.
	flushTLBEntryFn = cpu.FlushTLBEntry

	// ErrInvalidMapping is returned when trying to lookup a virtual memory address that is not yet mapped.
	ErrInvalidMapping = &kernel.Error{Module: "vmm", Message: "virtual address does not point to a mapped physical page"}

	// ErrPageAlreadyMapped is returned by Map when the target page is
	// already mapped to a frame.
	ErrPageAlreadyMapped = &kernel.Error{Module: "vmm", Message: "page is already mapped"}

	// ErrFrameAllocFailed is returned by Map when a frame for a missing
	// intermediate page table cannot be allocated.
	ErrFrameAllocFailed = &kernel.Error{Module: "vmm", Message: "unable to allocate frame for page table"}

	// ErrNoHugePageSupport is returned when a page walk encounters an entry
	// that maps a huge page.
	ErrNoHugePageSupport = &kernel.Error{Module: "vmm", Message: "huge pages are not supported"}

	errUnmapPhysWindow = &kernel.Error{Module: "vmm", Message: "pages of the physical memory window cannot be unmapped"}
)

// PageDirectoryTable describes the top-most table in a multi-level paging scheme.
type PageDirectoryTable struct {
	pdtFrame mm.Frame
	window   physWindow
}

// Init sets up a new page table directory in the supplied physical frame
// and clears its contents. Physical memory is accessed through the window
// at physOffset.
func (pdt *PageDirectoryTable) Init(pdtFrame mm.Frame, mem *physmem.Memory, physOffset uintptr) *kernel.Error {
	table, err := mem.Frame(pdtFrame)
	if err != nil {
		return err
	}

	kernel.Memset(table, 0)
	pdt.pdtFrame = pdtFrame
	pdt.window = physWindow{mem: mem, offset: physOffset}
	return nil
}

// ActivePDT returns the page directory table that is currently loaded in the
// CR3 register.
func ActivePDT(mem *physmem.Memory, physOffset uintptr) PageDirectoryTable {
	return PageDirectoryTable{
		pdtFrame: mm.FrameFromAddress(activePDTFn()),
		window:   physWindow{mem: mem, offset: physOffset},
	}
}

// Frame returns the physical frame that holds the P4 table.
func (pdt PageDirectoryTable) Frame() mm.Frame {
	return pdt.pdtFrame
}

// Activate enables this page directory table and flushes the TLB
func (pdt PageDirectoryTable) Activate() {
	switchPDTFn(pdt.pdtFrame.Address())
}

// Map establishes a mapping between a virtual page and a physical memory
// frame using this PDT. Missing page tables at each paging level are
// allocated from frames, cleared and installed with FlagPresent|FlagRW.
// The TLB entry for page is flushed once the mapping is in place.
//
// Map returns ErrPageAlreadyMapped if page is already mapped or lies in the
// physical memory window, ErrFrameAllocFailed if frames cannot supply a
// frame for a missing table and ErrNoHugePageSupport if the walk runs into a
// huge page entry.
func (pdt PageDirectoryTable) Map(page mm.Page, frame mm.Frame, flags PageTableEntryFlag, frames mm.FrameAllocator) *kernel.Error {
	if _, inWindow := pdt.window.toPhys(page.Address()); inWindow {
		return ErrPageAlreadyMapped
	}

	var err *kernel.Error

	walkErr := pdt.window.walk(pdt.pdtFrame, page.Address(), func(pteLevel uint8, pte *pageTableEntry) bool {
		// If we reached the last level all we need to do is to map the
		// frame in place and flag it as present and flush its TLB entry
		if pteLevel == pageLevels-1 {
			if pte.HasFlags(FlagPresent) {
				err = ErrPageAlreadyMapped
				return false
			}

			*pte = 0
			pte.SetFrame(frame)
			pte.SetFlags(flags)
			flushTLBEntryFn(page.Address())
			return true
		}

		if pte.HasFlags(FlagPresent | FlagHugePage) {
			err = ErrNoHugePageSupport
			return false
		}

		// Next table does not yet exist; we need to allocate a
		// physical frame for it and clear its contents.
		if !pte.HasFlags(FlagPresent) {
			newTableFrame, allocErr := frames.AllocFrame()
			if allocErr != nil {
				err = ErrFrameAllocFailed
				return false
			}

			table, tableErr := pdt.window.mem.Frame(newTableFrame)
			if tableErr != nil {
				err = tableErr
				return false
			}
			kernel.Memset(table, 0)

			*pte = 0
			pte.SetFrame(newTableFrame)
			pte.SetFlags(FlagPresent | FlagRW)
		}

		return true
	})

	if walkErr != nil {
		return walkErr
	}
	return err
}

// MapRegion maps pageCount consecutive pages starting at startPage to the
// consecutive frames starting at startFrame. It stops at the first error.
func (pdt PageDirectoryTable) MapRegion(startPage mm.Page, startFrame mm.Frame, pageCount uintptr, flags PageTableEntryFlag, frames mm.FrameAllocator) *kernel.Error {
	for page, frame := startPage, startFrame; pageCount > 0; pageCount, page, frame = pageCount-1, page+1, frame+1 {
		if err := pdt.Map(page, frame, flags, frames); err != nil {
			return err
		}
	}

	return nil
}

// Unmap removes a mapping previously installed via a call to Map.
func (pdt PageDirectoryTable) Unmap(page mm.Page) *kernel.Error {
	if _, inWindow := pdt.window.toPhys(page.Address()); inWindow {
		return errUnmapPhysWindow
	}

	var err *kernel.Error

	walkErr := pdt.window.walk(pdt.pdtFrame, page.Address(), func(pteLevel uint8, pte *pageTableEntry) bool {
		if !pte.HasFlags(FlagPresent) {
			err = ErrInvalidMapping
			return false
		}

		// If we reached the last level all we need to do is to set the
		// page as non-present and flush its TLB entry
		if pteLevel == pageLevels-1 {
			pte.ClearFlags(FlagPresent)
			flushTLBEntryFn(page.Address())
			return true
		}

		if pte.HasFlags(FlagHugePage) {
			err = ErrNoHugePageSupport
			return false
		}

		return true
	})

	if walkErr != nil {
		return walkErr
	}
	return err
}

// Translate returns the physical address that corresponds to the supplied
// virtual address or ErrInvalidMapping if the virtual address does not
// correspond to a mapped physical address. Addresses inside the physical
// memory window translate to their offset from the start of the window.
//
// Huge page mappings cannot be translated; encountering one is a fatal
// error and Translate panics with ErrNoHugePageSupport.
func (pdt PageDirectoryTable) Translate(virtAddr uintptr) (uintptr, *kernel.Error) {
	physAddr, err := pdt.lookup(virtAddr)
	if err == ErrNoHugePageSupport {
		panic(err)
	}

	return physAddr, err
}

// lookup performs the page walk for Translate, reporting huge pages as an
// error instead of panicking.
func (pdt PageDirectoryTable) lookup(virtAddr uintptr) (uintptr, *kernel.Error) {
	if physAddr, inWindow := pdt.window.toPhys(virtAddr); inWindow {
		return physAddr, nil
	}

	var (
		err   *kernel.Error
		entry *pageTableEntry
	)

	walkErr := pdt.window.walk(pdt.pdtFrame, virtAddr, func(pteLevel uint8, pte *pageTableEntry) bool {
		if !pte.HasFlags(FlagPresent) {
			err = ErrInvalidMapping
			return false
		}

		if pte.HasFlags(FlagHugePage) {
			err = ErrNoHugePageSupport
			return false
		}

		entry = pte
		return true
	})

	switch {
	case walkErr != nil:
		return 0, walkErr
	case err != nil:
		return 0, err
	}

	// Calculate the physical address by taking the physical frame address and
	// appending the offset from the virtual address
	return entry.Frame().Address() + PageOffset(virtAddr), nil
}

// PageOffset returns the offset within the page specified by a virtual
// address.
func PageOffset(virtAddr uintptr) uintptr {
	return (virtAddr & ((1 << pageLevelShifts[pageLevels-1]) - 1))
}

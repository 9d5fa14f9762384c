package vmm

const (
	// pageLevels is the depth of the amd64 page table hierarchy (P4 to P1).
	pageLevels = 4

	// ptePhysPageMask selects bits 12-51 of a page table entry, which hold
	// the physical address of the referenced frame.
	ptePhysPageMask = uint64(0x000ffffffffff000)

	// PhysicalMemoryOffset is the virtual address at which the boot loader
	// maps the whole of physical memory. Physical address P is reachable
	// at virtual address PhysicalMemoryOffset + P.
	PhysicalMemoryOffset = uintptr(0x_0000_1000_0000_0000)
)

var (
	// Each level consumes 9 bits of the virtual address (512 entries per
	// table); pageLevelShifts locates those bits for P4, P3, P2 and P1.
	pageLevelBits   = [pageLevels]uint8{9, 9, 9, 9}
	pageLevelShifts = [pageLevels]uint8{39, 30, 21, 12}
)

// Page table entry flags. The bit positions are fixed by the amd64 paging
// format.
const (
	FlagPresent PageTableEntryFlag = 1 << iota
	FlagRW
	FlagUserAccessible
	FlagWriteThroughCaching
	FlagDoNotCache

	// FlagAccessed and FlagDirty are set by the MMU.
	FlagAccessed
	FlagDirty

	// FlagHugePage marks a P3 or P2 entry that maps a 1G or 2M page
	// directly instead of pointing to the next table.
	FlagHugePage

	// FlagGlobal keeps the translation cached across CR3 reloads.
	FlagGlobal

	FlagNoExecute PageTableEntryFlag = 1 << 63
)

package vmm

import (
	"encoding/binary"

	"github.com/yawqi/blog-os-yawqi/kernel"
	"github.com/yawqi/blog-os-yawqi/kernel/cpu"
	"github.com/yawqi/blog-os-yawqi/kernel/irq"
	"github.com/yawqi/blog-os-yawqi/kernel/mm"
	"github.com/yawqi/blog-os-yawqi/kernel/mm/physmem"
)

// Page fault error codes pushed by the MMU for accesses to non-present pages.
const (
	faultCodeRead  = uint64(0)
	faultCodeWrite = uint64(faultBitWrite)
)

var raiseExceptionFn = irq.RaiseException

// AddressSpace performs loads and stores on virtual addresses the way the
// MMU does. Addresses inside the physical memory window resolve directly;
// any other address is translated through the TLB and, on a miss, by walking
// the page tables of the active PDT.
//
// Translations cached in the TLB are only dropped by an explicit flush so a
// mapping that changes without a flush keeps resolving to the old frame.
//
// An access to an unmapped page raises a page fault exception.
type AddressSpace struct {
	window physWindow
}

// NewAddressSpace returns the address space of the simulated machine whose
// physical memory is mapped at physOffset.
func NewAddressSpace(mem *physmem.Memory, physOffset uintptr) *AddressSpace {
	return &AddressSpace{window: physWindow{mem: mem, offset: physOffset}}
}

// Uint64 loads the little-endian 64-bit word stored at virtAddr.
func (as *AddressSpace) Uint64(virtAddr uintptr) uint64 {
	var buf [8]byte
	as.ReadBytes(virtAddr, buf[:])
	return binary.LittleEndian.Uint64(buf[:])
}

// PutUint64 stores v as a little-endian 64-bit word at virtAddr.
func (as *AddressSpace) PutUint64(virtAddr uintptr, v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	as.WriteBytes(virtAddr, buf[:])
}

// ReadBytes fills p with the bytes stored at virtAddr.
func (as *AddressSpace) ReadBytes(virtAddr uintptr, p []byte) {
	for len(p) > 0 {
		chunk := as.access(virtAddr, len(p), false)
		n := kernel.Memcopy(chunk, p)
		p, virtAddr = p[n:], virtAddr+uintptr(n)
	}
}

// WriteBytes copies p to the memory at virtAddr.
func (as *AddressSpace) WriteBytes(virtAddr uintptr, p []byte) {
	for len(p) > 0 {
		chunk := as.access(virtAddr, len(p), true)
		n := kernel.Memcopy(p, chunk)
		p, virtAddr = p[n:], virtAddr+uintptr(n)
	}
}

// access returns the physical memory backing virtAddr, limited to size bytes
// and to the end of the page that contains virtAddr.
func (as *AddressSpace) access(virtAddr uintptr, size int, write bool) []byte {
	n := mm.PageSize - PageOffset(virtAddr)
	if uintptr(size) < n {
		n = uintptr(size)
	}

	physAddr := as.resolve(virtAddr, write)
	data, err := as.window.mem.Bytes(physAddr, n)
	if err != nil {
		// The page is mapped to a frame that does not exist
		panic(err)
	}

	return data
}

// resolve returns the physical address for virtAddr. If the address is not
// mapped, resolve raises a page fault and retries once the handler returns.
func (as *AddressSpace) resolve(virtAddr uintptr, write bool) uintptr {
	if physAddr, ok := as.window.toPhys(virtAddr); ok {
		return physAddr
	}

	if !isCanonical(virtAddr) {
		cpu.LoadCR2(uint64(virtAddr))
		raiseExceptionFn(irq.GPFException, 0, &irq.Frame{RIP: uint64(virtAddr)}, &irq.Regs{})
		panic(errUnrecoverableFault)
	}

	for faulted := false; ; faulted = true {
		if frameAddr, ok := cpu.LookupTLB(virtAddr); ok {
			return frameAddr + PageOffset(virtAddr)
		}

		pdt := PageDirectoryTable{
			pdtFrame: mm.FrameFromAddress(activePDTFn()),
			window:   as.window,
		}
		if physAddr, err := pdt.lookup(virtAddr); err == nil {
			cpu.FillTLB(virtAddr, physAddr-PageOffset(virtAddr))
			return physAddr
		}

		if faulted {
			panic(errUnrecoverableFault)
		}

		errorCode := faultCodeRead
		if write {
			errorCode = faultCodeWrite
		}
		cpu.LoadCR2(uint64(virtAddr))
		raiseExceptionFn(irq.PageFaultException, errorCode, &irq.Frame{RIP: uint64(virtAddr)}, &irq.Regs{})
	}
}

// isCanonical returns true if bits 48-63 of virtAddr are copies of bit 47.
func isCanonical(virtAddr uintptr) bool {
	upper := uint64(virtAddr) >> 47
	return upper == 0 || upper == 0x1ffff
}

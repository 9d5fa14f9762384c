// Package cpu models the parts of an amd64 processor that the memory
// management code interacts with: the CR3 register holding the active page
// directory, the interrupt flag, and the translation lookaside buffer.
//
// The model describes a single core. Interrupt masking nests so that
// concurrently running flows of control that each disable interrupts keep
// them disabled until the last one re-enables them.
package cpu

import (
	"os"
	"sync/atomic"

	"github.com/yawqi/blog-os-yawqi/kernel/sync"
)

var (
	// haltFn is invoked by Halt. It is mocked by tests.
	haltFn = func() { os.Exit(1) }

	cr3 uintptr
	cr2 uint64

	// irqDisableDepth counts outstanding DisableInterrupts calls.
	irqDisableDepth int32

	halted uint32

	tlbLock sync.Spinlock
	tlb     = make(map[uintptr]uintptr)
)

// EnableInterrupts re-enables interrupt handling that was disabled by a
// previous call to DisableInterrupts. It returns true if interrupts are
// enabled after the call.
func EnableInterrupts() bool {
	for {
		depth := atomic.LoadInt32(&irqDisableDepth)
		if depth == 0 {
			return true
		}

		if atomic.CompareAndSwapInt32(&irqDisableDepth, depth, depth-1) {
			return depth-1 == 0
		}
	}
}

// DisableInterrupts disables interrupt handling.
func DisableInterrupts() {
	atomic.AddInt32(&irqDisableDepth, 1)
}

// InterruptsEnabled returns true if the interrupt flag is set.
func InterruptsEnabled() bool {
	return atomic.LoadInt32(&irqDisableDepth) == 0
}

// Halt stops instruction execution.
func Halt() {
	atomic.StoreUint32(&halted, 1)
	haltFn()
}

// Halted returns true if Halt has been invoked.
func Halted() bool {
	return atomic.LoadUint32(&halted) == 1
}

// FlushTLBEntry flushes a TLB entry for a particular virtual address.
func FlushTLBEntry(virtAddr uintptr) {
	tlbLock.Acquire()
	delete(tlb, pageAddr(virtAddr))
	tlbLock.Release()
}

// LookupTLB returns the physical frame address cached for the page that
// contains virtAddr.
func LookupTLB(virtAddr uintptr) (uintptr, bool) {
	tlbLock.Acquire()
	frameAddr, ok := tlb[pageAddr(virtAddr)]
	tlbLock.Release()
	return frameAddr, ok
}

// FillTLB caches the physical frame address for the page that contains
// virtAddr. It is invoked by the MMU after a successful page table walk.
func FillTLB(virtAddr, frameAddr uintptr) {
	tlbLock.Acquire()
	tlb[pageAddr(virtAddr)] = frameAddr
	tlbLock.Release()
}

// SwitchPDT sets the root page table directory to point to the specified
// physical address and flushes the TLB.
func SwitchPDT(pdtPhysAddr uintptr) {
	tlbLock.Acquire()
	cr3 = pdtPhysAddr
	tlb = make(map[uintptr]uintptr)
	tlbLock.Release()
}

// ActivePDT returns the physical address of the currently active page table.
func ActivePDT() uintptr {
	tlbLock.Acquire()
	defer tlbLock.Release()
	return cr3
}

// LoadCR2 records the virtual address whose access caused the last page
// fault. It is invoked by the MMU before raising a page fault exception.
func LoadCR2(faultAddr uint64) {
	atomic.StoreUint64(&cr2, faultAddr)
}

// ReadCR2 returns the virtual address that caused the last page fault.
func ReadCR2() uint64 {
	return atomic.LoadUint64(&cr2)
}

// Reset restores the power-on state of the processor: no active page
// directory, interrupts enabled and an empty TLB.
func Reset() {
	SwitchPDT(0)
	atomic.StoreInt32(&irqDisableDepth, 0)
	atomic.StoreUint32(&halted, 0)
	atomic.StoreUint64(&cr2, 0)
}

func pageAddr(virtAddr uintptr) uintptr {
	return virtAddr &^ uintptr(4095)
}

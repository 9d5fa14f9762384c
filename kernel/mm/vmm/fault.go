package vmm

import (
	"strings"

	"github.com/yawqi/blog-os-yawqi/kernel"
	"github.com/yawqi/blog-os-yawqi/kernel/irq"
	"github.com/yawqi/blog-os-yawqi/kernel/kfmt"
)

// Bits of the error code pushed by the MMU for a page fault.
const (
	faultBitProtection = 1 << iota
	faultBitWrite
	faultBitUser
	faultBitReserved
	faultBitFetch
)

func installFaultHandlers() {
	handleExceptionWithCodeFn(irq.PageFaultException, pageFaultHandler)
	handleExceptionWithCodeFn(irq.GPFException, generalProtectionFaultHandler)
}

// pageFaultHandler runs when an access hits a non-present page or fails a
// protection check. There is no demand paging so every page fault is fatal.
func pageFaultHandler(errorCode uint64, frame *irq.Frame, regs *irq.Regs) {
	nonRecoverablePageFault(uintptr(readCR2Fn()), errorCode, frame, regs, errUnrecoverableFault)
}

func nonRecoverablePageFault(faultAddress uintptr, errorCode uint64, frame *irq.Frame, regs *irq.Regs, err *kernel.Error) {
	kfmt.Printf("\nPage fault while accessing address: 0x%016x\nReason: %s\n", faultAddress, pageFaultReason(errorCode))
	kfmt.Printf("\nRegisters:\n")
	regs.Print()
	frame.Print()

	panic(err)
}

// pageFaultReason describes the access that triggered a page fault with the
// supplied error code.
func pageFaultReason(errorCode uint64) string {
	if errorCode >= faultBitFetch<<1 {
		return "unknown"
	}

	var reasons []string
	switch {
	case errorCode&faultBitFetch != 0:
		reasons = append(reasons, "instruction fetch")
	case errorCode&faultBitProtection != 0 && errorCode&faultBitWrite != 0:
		reasons = append(reasons, "page protection violation (write)")
	case errorCode&faultBitProtection != 0:
		reasons = append(reasons, "page protection violation (read)")
	case errorCode&faultBitWrite != 0:
		reasons = append(reasons, "write to non-present page")
	default:
		reasons = append(reasons, "read from non-present page")
	}

	if errorCode&faultBitUser != 0 {
		reasons = append(reasons, "in user-mode")
	}
	if errorCode&faultBitReserved != 0 {
		reasons = append(reasons, "page table has reserved bit set")
	}

	return strings.Join(reasons, ", ")
}

// generalProtectionFaultHandler reports a general protection fault. In the
// simulated machine these are raised for non-canonical addresses.
func generalProtectionFaultHandler(_ uint64, frame *irq.Frame, regs *irq.Regs) {
	kfmt.Printf("\nGeneral protection fault while accessing address: 0x%x\nRegisters:\n", readCR2Fn())
	regs.Print()
	frame.Print()

	panic(errUnrecoverableFault)
}

package irq

import "github.com/yawqi/blog-os-yawqi/kernel/kfmt"

// Regs contains a snapshot of the register values when an interrupt occurred.
type Regs struct {
	RAX uint64
	RBX uint64
	RCX uint64
	RDX uint64
	RSI uint64
	RDI uint64
	RBP uint64
}

// Print outputs a dump of the register values to the active console.
func (r *Regs) Print() {
	kfmt.Printf("RAX = %016x RBX = %016x\n", r.RAX, r.RBX)
	kfmt.Printf("RCX = %016x RDX = %016x\n", r.RCX, r.RDX)
	kfmt.Printf("RSI = %016x RDI = %016x\n", r.RSI, r.RDI)
	kfmt.Printf("RBP = %016x\n", r.RBP)
}

// Frame describes the exception frame pushed when an exception occurs.
// For faults raised by memory accesses RIP holds the accessed address.
type Frame struct {
	RIP    uint64
	RFlags uint64
	RSP    uint64
}

// Print outputs a dump of the exception frame to the active console.
func (f *Frame) Print() {
	kfmt.Printf("RIP = %016x RSP = %016x\n", f.RIP, f.RSP)
	kfmt.Printf("RFL = %016x\n", f.RFlags)
}

// Package physmem provides the physical RAM of the simulated machine. The
// memory is a single contiguous arena that starts at physical address 0.
package physmem

import (
	"unsafe"

	"github.com/yawqi/blog-os-yawqi/kernel"
	"github.com/yawqi/blog-os-yawqi/kernel/mm"
)

var (
	// ErrOutOfRange is returned when an access falls outside of the
	// installed physical memory.
	ErrOutOfRange = &kernel.Error{Module: "physmem", Message: "physical address out of range"}

	errInvalidSize = &kernel.Error{Module: "physmem", Message: "memory size must be a non-zero multiple of the page size"}
)

// Memory models the installed physical RAM.
type Memory struct {
	data    []byte
	release func([]byte) error
}

// New reserves size bytes of physical memory. The size must be a non-zero
// multiple of mm.PageSize.
func New(size mm.Size) (*Memory, *kernel.Error) {
	if size == 0 || uintptr(size)&(mm.PageSize-1) != 0 {
		return nil, errInvalidSize
	}

	data, release, err := reserve(int(size))
	if err != nil {
		return nil, err
	}

	return &Memory{data: data, release: release}, nil
}

// Size returns the amount of installed memory in bytes.
func (m *Memory) Size() mm.Size {
	return mm.Size(len(m.data))
}

// FrameCount returns the number of page frames backed by this memory.
func (m *Memory) FrameCount() uintptr {
	return uintptr(len(m.data)) >> mm.PageShift
}

// Contains returns true if the [physAddr, physAddr+size) range is backed by
// installed memory.
func (m *Memory) Contains(physAddr, size uintptr) bool {
	end := physAddr + size
	return end >= physAddr && end <= uintptr(len(m.data))
}

// Bytes returns a slice overlaying size bytes of physical memory starting at
// physAddr. Writes to the slice update the memory contents.
func (m *Memory) Bytes(physAddr, size uintptr) ([]byte, *kernel.Error) {
	if !m.Contains(physAddr, size) {
		return nil, ErrOutOfRange
	}

	return m.data[physAddr : physAddr+size : physAddr+size], nil
}

// Frame returns the contents of the supplied physical frame.
func (m *Memory) Frame(frame mm.Frame) ([]byte, *kernel.Error) {
	return m.Bytes(frame.Address(), mm.PageSize)
}

// Ptr returns a pointer to the byte at physAddr or nil if the address is not
// backed by installed memory. Callers that overlay multi-byte values must
// supply a suitably aligned address.
func (m *Memory) Ptr(physAddr uintptr) unsafe.Pointer {
	if physAddr >= uintptr(len(m.data)) {
		return nil
	}

	return unsafe.Pointer(&m.data[physAddr])
}

// Close releases the memory backing the arena. The Memory must not be used
// after Close returns.
func (m *Memory) Close() error {
	if m.release == nil {
		return nil
	}

	data, release := m.data, m.release
	m.data, m.release = nil, nil
	return release(data)
}

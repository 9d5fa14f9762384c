package vmm

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/yawqi/blog-os-yawqi/kernel/cpu"
	"github.com/yawqi/blog-os-yawqi/kernel/mm"
	"github.com/yawqi/blog-os-yawqi/kernel/mm/physmem"
	"github.com/yawqi/blog-os-yawqi/kernel/mm/pmm"
	"github.com/yawqi/blog-os-yawqi/multiboot"
)

// testMachine bundles the physical memory, frame allocator and an active
// page directory of a small simulated machine.
type testMachine struct {
	mem    *physmem.Memory
	frames *pmm.BootMemAllocator
	pdt    PageDirectoryTable
}

func newTestMachine(t *testing.T, frameCount uintptr) *testMachine {
	t.Helper()

	size := frameCount * mm.PageSize
	mem, err := physmem.New(mm.Size(size))
	require.Nil(t, err)

	m := &testMachine{
		mem: mem,
		frames: pmm.NewBootMemAllocator([]multiboot.MemoryMapEntry{
			{PhysAddress: 0, Length: uint64(size), Type: multiboot.MemAvailable},
		}),
	}

	pdtFrame, err := m.frames.AllocFrame()
	require.Nil(t, err)
	require.Nil(t, m.pdt.Init(pdtFrame, mem, PhysicalMemoryOffset))
	m.pdt.Activate()

	t.Cleanup(func() {
		cpu.Reset()
		_ = mem.Close()
	})

	return m
}

// frameBytes returns the contents of the supplied frame.
func (m *testMachine) frameBytes(t *testing.T, frame mm.Frame) []byte {
	t.Helper()
	data, err := m.mem.Frame(frame)
	require.Nil(t, err)
	return data
}

package heap

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/yawqi/blog-os-yawqi/kernel/cpu"
	"github.com/yawqi/blog-os-yawqi/kernel/mm"
	"github.com/yawqi/blog-os-yawqi/kernel/mm/physmem"
	"github.com/yawqi/blog-os-yawqi/kernel/mm/pmm"
	"github.com/yawqi/blog-os-yawqi/kernel/mm/vmm"
	"github.com/yawqi/blog-os-yawqi/multiboot"
)

// testKernel is a booted simulated machine with an active page directory.
type testKernel struct {
	mem    *physmem.Memory
	frames *pmm.BootMemAllocator
	pdt    vmm.PageDirectoryTable
	as     *vmm.AddressSpace
}

func newTestKernel(t *testing.T, memSize mm.Size) *testKernel {
	t.Helper()

	mem, err := physmem.New(memSize)
	require.Nil(t, err)

	k := &testKernel{
		mem: mem,
		frames: pmm.NewBootMemAllocator([]multiboot.MemoryMapEntry{
			{PhysAddress: 0, Length: uint64(memSize), Type: multiboot.MemAvailable},
		}),
		as: vmm.NewAddressSpace(mem, vmm.PhysicalMemoryOffset),
	}

	pdtFrame, err := k.frames.AllocFrame()
	require.Nil(t, err)
	require.Nil(t, k.pdt.Init(pdtFrame, mem, vmm.PhysicalMemoryOffset))
	k.pdt.Activate()

	t.Cleanup(func() {
		cpu.Reset()
		_ = mem.Close()
	})

	return k
}

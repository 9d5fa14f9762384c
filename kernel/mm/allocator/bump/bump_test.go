package bump

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yawqi/blog-os-yawqi/kernel/mm/allocator"
	"github.com/yawqi/blog-os-yawqi/kernel/mm/allocator/allocatortest"
)

const (
	heapStart = uintptr(0x4444_4444_0000)
	heapSize  = uintptr(100 * 1024)
)

var _ allocator.Strategy = (*Allocator)(nil)

func TestAlloc(t *testing.T) {
	var a Allocator
	a.Init(nil, heapStart, heapSize)

	specs := []struct {
		size, align uintptr
		exp         uintptr
	}{
		{10, 1, heapStart},
		{8, 8, heapStart + 16},
		{1, 1, heapStart + 24},
		{64, 64, heapStart + 64},
		{0, 4096, heapStart + 4096},
		{100, 2, heapStart + 4096},
	}

	for specIndex, spec := range specs {
		ptr, err := a.Alloc(spec.size, spec.align)
		require.Nil(t, err, "[spec %d]", specIndex)
		assert.Equal(t, spec.exp, ptr, "[spec %d]", specIndex)
	}

	assert.Equal(t, uint64(len(specs)), a.Allocations())
	assert.Equal(t, uintptr(4096+100), a.Used())
}

func TestAllocExhaustion(t *testing.T) {
	var a Allocator
	a.Init(nil, heapStart, heapSize)

	ptr, err := a.Alloc(heapSize, 1)
	require.Nil(t, err)
	assert.Equal(t, heapStart, ptr)

	_, err = a.Alloc(1, 1)
	assert.Equal(t, allocator.ErrOutOfMemory, err)

	// failed allocations are not counted
	assert.Equal(t, uint64(1), a.Allocations())

	t.Run("size overflow", func(t *testing.T) {
		var a Allocator
		a.Init(nil, heapStart, heapSize)
		_, err := a.Alloc(^uintptr(0)-heapStart+1, 1)
		assert.Equal(t, allocator.ErrOutOfMemory, err)
	})

	t.Run("huge alignment", func(t *testing.T) {
		var a Allocator
		a.Init(nil, heapStart, heapSize)
		_, err := a.Alloc(1, uintptr(1)<<63)
		assert.Equal(t, allocator.ErrOutOfMemory, err)
	})
}

func TestFreeReusesHeapOnceDrained(t *testing.T) {
	var a Allocator
	a.Init(nil, heapStart, heapSize)

	ptrA, err := a.Alloc(128, 8)
	require.Nil(t, err)
	ptrB, err := a.Alloc(256, 8)
	require.Nil(t, err)

	a.Free(ptrA, 128, 8)

	// B is still live so nothing is reclaimed
	ptrC, err := a.Alloc(16, 8)
	require.Nil(t, err)
	assert.Equal(t, ptrB+256, ptrC)

	a.Free(ptrC, 16, 8)
	a.Free(ptrB, 256, 8)
	assert.Zero(t, a.Allocations())

	ptrD, err := a.Alloc(128, 8)
	require.Nil(t, err)
	assert.Equal(t, ptrA, ptrD, "expected the heap to be reused once every allocation was freed")

	t.Run("extra frees are ignored", func(t *testing.T) {
		a.Free(ptrD, 128, 8)
		a.Free(ptrD, 128, 8)
		assert.Zero(t, a.Allocations())
	})
}

func TestRandomWorkload(t *testing.T) {
	var a Allocator
	mem := allocatortest.NewMemory(heapStart, heapSize)
	a.Init(mem, heapStart, heapSize)

	w := allocatortest.Workload{Seed: 42, Ops: 5000, MaxSize: 512, Aligns: []uintptr{1, 2, 8, 64}}
	live := w.Run(t, &a, mem, heapStart, heapSize)
	assert.Equal(t, uint64(live.Len()), a.Allocations())
}

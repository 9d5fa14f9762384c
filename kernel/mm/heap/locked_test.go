package heap

import (
	gosync "sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yawqi/blog-os-yawqi/kernel"
	"github.com/yawqi/blog-os-yawqi/kernel/cpu"
	"github.com/yawqi/blog-os-yawqi/kernel/irq"
	"github.com/yawqi/blog-os-yawqi/kernel/mm/allocator"
	"github.com/yawqi/blog-os-yawqi/kernel/mm/allocator/allocatortest"
	"github.com/yawqi/blog-os-yawqi/kernel/mm/allocator/bump"
	"github.com/yawqi/blog-os-yawqi/kernel/mm/allocator/fixedsize"
	"github.com/yawqi/blog-os-yawqi/kernel/mm/allocator/linkedlist"
)

func TestLockedUninitialized(t *testing.T) {
	var l Locked[linkedlist.Allocator, *linkedlist.Allocator]

	assert.False(t, l.Initialized())

	_, err := l.Alloc(16, 8)
	assert.Equal(t, ErrHeapNotInitialized, err)

	assert.PanicsWithValue(t, ErrHeapNotInitialized, func() { l.Free(HeapStart, 16, 8) })

	// the lock is released and interrupts re-enabled on the panic path
	assert.True(t, cpu.InterruptsEnabled())
	_, err = l.Alloc(16, 8)
	assert.Equal(t, ErrHeapNotInitialized, err)
}

func TestLockedFreeInvalidLayout(t *testing.T) {
	var l Locked[linkedlist.Allocator, *linkedlist.Allocator]
	l.Init(allocatortest.NewMemory(HeapStart, HeapSize), HeapStart, HeapSize)

	ptr, err := l.Alloc(16, 8)
	require.Nil(t, err)

	var freeBytes uintptr
	l.With(func(a *linkedlist.Allocator) { freeBytes = a.FreeBytes() })

	for specIndex, align := range []uintptr{3, 12, 24} {
		assert.PanicsWithValue(t, allocator.ErrInvalidLayout, func() { l.Free(ptr, 16, align) }, "[spec %d]", specIndex)
	}

	// the free list and the statistics are left untouched
	l.With(func(a *linkedlist.Allocator) { assert.Equal(t, freeBytes, a.FreeBytes()) })
	assert.Equal(t, Stats{AllocCalls: 1, LiveAllocations: 1, LiveBytes: 16}, l.Stats())
	assert.True(t, cpu.InterruptsEnabled())

	// a zero alignment is treated as 1 just like in Alloc
	l.Free(ptr, 16, 0)
	assert.Zero(t, l.Stats().LiveAllocations)
}

func TestLockedStrategies(t *testing.T) {
	specs := []struct {
		name string
		heap interface {
			Init(allocator.Memory, uintptr, uintptr)
			Alloc(uintptr, uintptr) (uintptr, *kernel.Error)
			Free(uintptr, uintptr, uintptr)
			Stats() Stats
		}
	}{
		{"bump", new(Locked[bump.Allocator, *bump.Allocator])},
		{"linked-list", new(Locked[linkedlist.Allocator, *linkedlist.Allocator])},
		{"fixed-size block", new(Locked[fixedsize.Allocator, *fixedsize.Allocator])},
	}

	for _, spec := range specs {
		t.Run(spec.name, func(t *testing.T) {
			mem := allocatortest.NewMemory(HeapStart, HeapSize)
			spec.heap.Init(mem, HeapStart, HeapSize)
			live := allocatortest.NewLiveSet(t, HeapStart, HeapSize)

			var blocks []allocatortest.Block
			for _, size := range []uintptr{1, 24, 100, 4000, 64} {
				ptr, err := spec.heap.Alloc(size, 8)
				require.Nil(t, err)

				b := allocatortest.Block{Ptr: ptr, Size: size, Align: 8}
				live.Add(b)
				blocks = append(blocks, b)
			}

			assert.Equal(t, Stats{AllocCalls: 5, LiveAllocations: 5, LiveBytes: 4189}, spec.heap.Stats())

			for _, b := range blocks {
				spec.heap.Free(b.Ptr, b.Size, b.Align)
			}
			assert.Equal(t, Stats{AllocCalls: 5, FreeCalls: 5}, spec.heap.Stats())

			_, err := spec.heap.Alloc(HeapSize*2, 8)
			assert.Equal(t, allocator.ErrOutOfMemory, err)
			assert.Equal(t, uint64(1), spec.heap.Stats().FailedAllocs)

			_, err = spec.heap.Alloc(8, 3)
			assert.Equal(t, allocator.ErrInvalidLayout, err)
		})
	}
}

func TestLockedDummy(t *testing.T) {
	var l Locked[allocator.Dummy, *allocator.Dummy]
	l.Init(nil, HeapStart, HeapSize)

	_, err := l.Alloc(8, 8)
	assert.Equal(t, allocator.ErrOutOfMemory, err)
	assert.Equal(t, Stats{AllocCalls: 1, FailedAllocs: 1}, l.Stats())
}

func TestLockedInitResetsState(t *testing.T) {
	var l Locked[bump.Allocator, *bump.Allocator]
	l.Init(nil, HeapStart, HeapSize)

	first, err := l.Alloc(64, 8)
	require.Nil(t, err)
	_, err = l.Alloc(64, 8)
	require.Nil(t, err)

	l.Init(nil, HeapStart, HeapSize)
	assert.Equal(t, Stats{}, l.Stats())

	ptr, err := l.Alloc(64, 8)
	require.Nil(t, err)
	assert.Equal(t, first, ptr)

	l.With(func(s *bump.Allocator) {
		assert.Equal(t, uint64(1), s.Allocations())
	})
}

// interruptingAllocator raises an interrupt from inside the locked section
// the first time Alloc is called.
type interruptingAllocator struct {
	linkedlist.Allocator
	onAlloc func()
}

func (a *interruptingAllocator) Alloc(size, align uintptr) (uintptr, *kernel.Error) {
	if fn := a.onAlloc; fn != nil {
		a.onAlloc = nil
		fn()
	}
	return a.Allocator.Alloc(size, align)
}

func TestLockedInterruptDuringAlloc(t *testing.T) {
	defer cpu.Reset()
	cpu.Reset()

	var (
		l      Locked[interruptingAllocator, *interruptingAllocator]
		mem    = allocatortest.NewMemory(HeapStart, HeapSize)
		isrPtr uintptr
		isrErr *kernel.Error
		isrRan bool
	)
	l.Init(mem, HeapStart, HeapSize)

	l.With(func(a *interruptingAllocator) {
		a.onAlloc = func() {
			require.False(t, cpu.InterruptsEnabled(), "expected interrupts to be disabled while the lock is held")

			// The handler allocates from the same heap. If it ran
			// right away it would spin on the lock forever.
			irq.Raise(func() {
				isrRan = true
				isrPtr, isrErr = l.Alloc(32, 8)
			})
			require.False(t, isrRan, "expected the interrupt to be held pending")
		}
	})

	ptr, err := l.Alloc(64, 8)
	require.Nil(t, err)

	require.True(t, isrRan, "expected the pending interrupt to run once the lock was released")
	require.Nil(t, isrErr)
	assert.NotEqual(t, ptr, isrPtr)
	assert.True(t, cpu.InterruptsEnabled())
	assert.Equal(t, uint64(2), l.Stats().LiveAllocations)
}

func TestLockedConcurrentUse(t *testing.T) {
	defer cpu.Reset()

	var (
		l    Locked[fixedsize.Allocator, *fixedsize.Allocator]
		mu   gosync.Mutex
		live = allocatortest.NewLiveSet(t, HeapStart, HeapSize)
		wg   gosync.WaitGroup
	)
	l.Init(allocatortest.NewMemory(HeapStart, HeapSize), HeapStart, HeapSize)

	for worker := 0; worker < 8; worker++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()

			size := uintptr(8 << (worker % 6))
			for i := 0; i < 200; i++ {
				ptr, err := l.Alloc(size, 8)
				if err != nil {
					t.Errorf("[worker %d] unexpected error: %v", worker, err)
					return
				}

				mu.Lock()
				live.Add(allocatortest.Block{Ptr: ptr, Size: size, Align: 8})
				mu.Unlock()

				if i%2 == 0 {
					mu.Lock()
					live.Remove(ptr)
					mu.Unlock()
					l.Free(ptr, size, 8)
				}
			}
		}(worker)
	}
	wg.Wait()

	assert.Equal(t, uint64(live.Len()), l.Stats().LiveAllocations)
}

// Package allocatortest provides fixtures shared by the tests of the heap
// allocation strategies.
package allocatortest

import (
	"encoding/binary"
	"fmt"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/yawqi/blog-os-yawqi/kernel/mm/allocator"
)

// Memory is a slice-backed allocator.Memory whose first byte lives at Base.
type Memory struct {
	Base uintptr
	data []byte
}

// NewMemory returns a zeroed Memory covering [base, base+size).
func NewMemory(base, size uintptr) *Memory {
	return &Memory{Base: base, data: make([]byte, size)}
}

// Uint64 implements allocator.Memory.
func (m *Memory) Uint64(addr uintptr) uint64 {
	return binary.LittleEndian.Uint64(m.word(addr))
}

// PutUint64 implements allocator.Memory.
func (m *Memory) PutUint64(addr uintptr, v uint64) {
	binary.LittleEndian.PutUint64(m.word(addr), v)
}

func (m *Memory) word(addr uintptr) []byte {
	if addr%8 != 0 {
		panic(fmt.Sprintf("unaligned word access at 0x%x", addr))
	}
	if addr < m.Base || addr-m.Base+8 > uintptr(len(m.data)) {
		panic(fmt.Sprintf("word access at 0x%x outside [0x%x, 0x%x)", addr, m.Base, m.Base+uintptr(len(m.data))))
	}

	off := addr - m.Base
	return m.data[off : off+8]
}

// Block describes a live allocation.
type Block struct {
	Ptr, Size, Align uintptr
}

// LiveSet tracks the live allocations of a heap and fails the test as soon
// as an allocation falls outside the heap, violates its alignment or
// overlaps another live allocation.
type LiveSet struct {
	t          testing.TB
	start, end uintptr
	live       map[uintptr]Block
}

// NewLiveSet returns a LiveSet for the heap [start, start+size).
func NewLiveSet(t testing.TB, start, size uintptr) *LiveSet {
	return &LiveSet{t: t, start: start, end: start + size, live: make(map[uintptr]Block)}
}

// Add records a new allocation.
func (s *LiveSet) Add(b Block) {
	s.t.Helper()

	require.GreaterOrEqual(s.t, b.Ptr, s.start, "allocation 0x%x starts before the heap", b.Ptr)
	require.LessOrEqual(s.t, b.Ptr+b.Size, s.end, "allocation 0x%x (%d bytes) ends after the heap", b.Ptr, b.Size)
	require.Zero(s.t, b.Ptr&(b.Align-1), "allocation 0x%x is not aligned to %d", b.Ptr, b.Align)

	for _, other := range s.live {
		if b.Ptr < other.Ptr+other.Size && other.Ptr < b.Ptr+b.Size {
			s.t.Fatalf("allocation [0x%x, 0x%x) overlaps live allocation [0x%x, 0x%x)",
				b.Ptr, b.Ptr+b.Size, other.Ptr, other.Ptr+other.Size)
		}
	}

	s.live[b.Ptr] = b
}

// Remove forgets a freed allocation.
func (s *LiveSet) Remove(ptr uintptr) {
	delete(s.live, ptr)
}

// Len returns the number of live allocations.
func (s *LiveSet) Len() int {
	return len(s.live)
}

// Blocks returns the live allocations ordered by address.
func (s *LiveSet) Blocks() []Block {
	blocks := make([]Block, 0, len(s.live))
	for _, b := range s.live {
		blocks = append(blocks, b)
	}
	sort.Slice(blocks, func(i, j int) bool { return blocks[i].Ptr < blocks[j].Ptr })
	return blocks
}

// Workload describes a randomized sequence of allocations and frees.
type Workload struct {
	Seed    int64
	Ops     int
	MaxSize uintptr
	Aligns  []uintptr
}

// Run drives strategy with the workload. Every live allocation of at least
// 8 bytes is stamped with a marker that is verified when the block is freed
// so that bookkeeping written into live memory is detected. Allocation
// failures are tolerated; they are expected once the heap fills up.
func (w Workload) Run(t testing.TB, strategy allocator.Strategy, mem *Memory, heapStart, heapSize uintptr) *LiveSet {
	t.Helper()

	var (
		rng    = rand.New(rand.NewSource(w.Seed))
		live   = NewLiveSet(t, heapStart, heapSize)
		order  []uintptr
		aligns = w.Aligns
	)
	if len(aligns) == 0 {
		aligns = []uintptr{1, 8, 16}
	}

	for op := 0; op < w.Ops; op++ {
		if len(order) != 0 && rng.Intn(3) == 0 {
			idx := rng.Intn(len(order))
			ptr := order[idx]
			order = append(order[:idx], order[idx+1:]...)

			b := live.live[ptr]
			if stampable(b) {
				require.Equal(t, stamp(b), mem.Uint64(b.Ptr), "live block 0x%x was overwritten", b.Ptr)
			}
			strategy.Free(b.Ptr, b.Size, b.Align)
			live.Remove(ptr)
			continue
		}

		b := Block{
			Size:  1 + uintptr(rng.Int63n(int64(w.MaxSize))),
			Align: aligns[rng.Intn(len(aligns))],
		}

		ptr, err := strategy.Alloc(b.Size, b.Align)
		if err != nil {
			require.Equal(t, allocator.ErrOutOfMemory, err)
			continue
		}

		b.Ptr = ptr
		live.Add(b)
		order = append(order, ptr)
		if stampable(b) {
			mem.PutUint64(b.Ptr, stamp(b))
		}
	}

	for _, b := range live.Blocks() {
		if stampable(b) {
			require.Equal(t, stamp(b), mem.Uint64(b.Ptr), "live block 0x%x was overwritten", b.Ptr)
		}
	}

	return live
}

func stampable(b Block) bool {
	return b.Size >= 8 && b.Ptr%8 == 0
}

func stamp(b Block) uint64 {
	return uint64(b.Ptr)*31 ^ uint64(b.Size)
}

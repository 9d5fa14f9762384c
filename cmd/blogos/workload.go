package main

import (
	"fmt"
	"math/rand"

	"github.com/yawqi/blog-os-yawqi/kernel/kfmt"
	"github.com/yawqi/blog-os-yawqi/kernel/mm/heap"
	"github.com/yawqi/blog-os-yawqi/kernel/mm/vmm"
)

var (
	workloadSizes  = []uintptr{8, 16, 24, 64, 100, 256, 512, 1024, 3000}
	workloadAligns = []uintptr{8, 16, 64}
)

type liveBlock struct {
	ptr, size, align uintptr
	stamp            uint64
}

// workload issues a pseudo-random sequence of allocations and frees through
// the global heap hook. Each live block carries a stamp in its first word
// that is verified before the block is freed.
type workload struct {
	as   *vmm.AddressSpace
	rng  *rand.Rand
	live []liveBlock

	allocs, frees, failed int
}

func newWorkload(as *vmm.AddressSpace, seed int64) *workload {
	return &workload{
		as:  as,
		rng: rand.New(rand.NewSource(seed)),
	}
}

func (w *workload) run(ops int) error {
	for op := 0; op < ops; op++ {
		if len(w.live) != 0 && w.rng.Intn(3) == 0 {
			if err := w.free(w.rng.Intn(len(w.live))); err != nil {
				return err
			}
			continue
		}

		size := workloadSizes[w.rng.Intn(len(workloadSizes))]
		align := workloadAligns[w.rng.Intn(len(workloadAligns))]
		ptr, err := heap.Alloc(size, align)
		if err != nil {
			w.failed++
			continue
		}
		w.allocs++

		block := liveBlock{ptr: ptr, size: size, align: align, stamp: uint64(ptr) ^ uint64(op)<<32}
		w.as.PutUint64(ptr, block.stamp)
		w.live = append(w.live, block)
	}

	for len(w.live) != 0 {
		if err := w.free(len(w.live) - 1); err != nil {
			return err
		}
	}

	return nil
}

func (w *workload) free(index int) error {
	block := w.live[index]
	if got := w.as.Uint64(block.ptr); got != block.stamp {
		return fmt.Errorf("heap block at 0x%x corrupted: expected stamp 0x%x, got 0x%x", block.ptr, block.stamp, got)
	}

	heap.Free(block.ptr, block.size, block.align)
	w.frees++

	last := len(w.live) - 1
	w.live[index] = w.live[last]
	w.live = w.live[:last]
	return nil
}

func (w *workload) printSummary() {
	kfmt.Printf("[blogos] workload: %d allocations, %d frees, %d failed allocations\n", w.allocs, w.frees, w.failed)
}

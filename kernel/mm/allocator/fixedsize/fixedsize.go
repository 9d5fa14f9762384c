// Package fixedsize implements a size-classed heap allocation strategy.
//
// Requests are rounded up to one of the BlockSizes classes and served from a
// per-class stack of freed blocks. Blocks are carved from an embedded
// linked-list allocator one at a time when a class stack is empty, and
// requests larger than the biggest class go to that allocator directly.
package fixedsize

import (
	"github.com/yawqi/blog-os-yawqi/kernel"
	"github.com/yawqi/blog-os-yawqi/kernel/mm"
	"github.com/yawqi/blog-os-yawqi/kernel/mm/allocator"
	"github.com/yawqi/blog-os-yawqi/kernel/mm/allocator/linkedlist"
)

// BlockSizes lists the supported size classes. Each class must be a power of
// two so that a class-sized, class-aligned block satisfies any alignment up
// to the class size. Classes must also be large enough to store the 8-byte
// link of a free block.
var BlockSizes = [...]uintptr{8, 16, 32, 64, 128, 256, 512, 1024, 2048}

const nilBlock = uintptr(0)

var errInvalidBlockSizes = &kernel.Error{Module: "fixedsize", Message: "block sizes must be increasing powers of two of at least 8 bytes"}

func init() {
	if err := checkBlockSizes(BlockSizes[:]); err != nil {
		panic(err)
	}
}

func checkBlockSizes(sizes []uintptr) *kernel.Error {
	for i, size := range sizes {
		if size < 8 || !mm.IsPowerOfTwo(size) || (i > 0 && size <= sizes[i-1]) {
			return errInvalidBlockSizes
		}
	}
	return nil
}

// Allocator implements allocator.Strategy.
type Allocator struct {
	mem allocator.Memory

	// heads holds the top of the free block stack for each class. Each
	// free block stores the address of the next block in its first word.
	heads [len(BlockSizes)]uintptr

	fallback linkedlist.Allocator
}

// Init implements allocator.Strategy. All class stacks start empty and the
// whole heap is handed to the fallback allocator.
func (a *Allocator) Init(mem allocator.Memory, heapStart, heapSize uintptr) {
	a.mem = mem
	a.heads = [len(BlockSizes)]uintptr{}
	a.fallback.Init(mem, heapStart, heapSize)
}

// Alloc implements allocator.Strategy.
func (a *Allocator) Alloc(size, align uintptr) (uintptr, *kernel.Error) {
	index, ok := classIndex(size, align)
	if !ok {
		return a.fallback.Alloc(size, align)
	}

	if block := a.heads[index]; block != nilBlock {
		a.heads[index] = uintptr(a.mem.Uint64(block))
		return block, nil
	}

	// The class stack is empty; carve out a single block. The fallback is
	// called directly as the caller already holds the heap lock.
	blockSize := BlockSizes[index]
	return a.fallback.Alloc(blockSize, blockSize)
}

// Free implements allocator.Strategy. Blocks are classified the same way as
// in Alloc so size and align must match the original request.
func (a *Allocator) Free(ptr, size, align uintptr) {
	index, ok := classIndex(size, align)
	if !ok {
		a.fallback.Free(ptr, size, align)
		return
	}

	a.mem.PutUint64(ptr, uint64(a.heads[index]))
	a.heads[index] = ptr
}

// FreeBlocks returns the number of blocks on the free stack of the class
// with the supplied index.
func (a *Allocator) FreeBlocks(class int) int {
	var count int
	for block := a.heads[class]; block != nilBlock; block = uintptr(a.mem.Uint64(block)) {
		count++
	}
	return count
}

// Fallback returns the allocator that backs the size classes.
func (a *Allocator) Fallback() *linkedlist.Allocator {
	return &a.fallback
}

// classIndex returns the index of the smallest class that can hold a block
// of the requested size and alignment. It returns false if the request does
// not fit in any class.
func classIndex(size, align uintptr) (int, bool) {
	required := size
	if align > required {
		required = align
	}

	for index, blockSize := range BlockSizes {
		if blockSize >= required {
			return index, true
		}
	}

	return 0, false
}

//go:build !heapbump && !heaplinkedlist

package heap

import (
	"io"

	"github.com/yawqi/blog-os-yawqi/kernel/kfmt"
	"github.com/yawqi/blog-os-yawqi/kernel/mm/allocator/fixedsize"
)

// ActiveStrategy names the strategy that backs the kernel heap.
const ActiveStrategy = "fixed-size block"

type strategy = fixedsize.Allocator

var kernelHeap Locked[strategy, *strategy]

func printStrategyStats(w io.Writer, s *strategy) {
	for class, blockSize := range fixedsize.BlockSizes {
		if free := s.FreeBlocks(class); free != 0 {
			kfmt.Fprintf(w, "class %4d: %d free blocks\n", blockSize, free)
		}
	}
	kfmt.Fprintf(w, "fallback free bytes: %d\n", s.Fallback().FreeBytes())
}

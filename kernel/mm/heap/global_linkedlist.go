//go:build heaplinkedlist && !heapbump

package heap

import (
	"io"

	"github.com/yawqi/blog-os-yawqi/kernel/kfmt"
	"github.com/yawqi/blog-os-yawqi/kernel/mm/allocator/linkedlist"
)

// ActiveStrategy names the strategy that backs the kernel heap.
const ActiveStrategy = "linked-list"

type strategy = linkedlist.Allocator

var kernelHeap Locked[strategy, *strategy]

func printStrategyStats(w io.Writer, s *strategy) {
	var regions int
	s.VisitFreeRegions(func(_, _ uintptr) bool {
		regions++
		return true
	})
	kfmt.Fprintf(w, "free regions: %d, free bytes: %d\n", regions, s.FreeBytes())
}

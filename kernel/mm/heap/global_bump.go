//go:build heapbump

package heap

import (
	"io"

	"github.com/yawqi/blog-os-yawqi/kernel/kfmt"
	"github.com/yawqi/blog-os-yawqi/kernel/mm/allocator/bump"
)

// ActiveStrategy names the strategy that backs the kernel heap.
const ActiveStrategy = "bump"

type strategy = bump.Allocator

var kernelHeap Locked[strategy, *strategy]

func printStrategyStats(w io.Writer, s *strategy) {
	kfmt.Fprintf(w, "live allocations: %d, used bytes: %d\n", s.Allocations(), s.Used())
}

package heap

import (
	"io"

	"github.com/yawqi/blog-os-yawqi/kernel"
	"github.com/yawqi/blog-os-yawqi/kernel/kfmt"
	"github.com/yawqi/blog-os-yawqi/kernel/mm"
	"github.com/yawqi/blog-os-yawqi/kernel/mm/allocator"
)

// Init maps the heap region [start, start+size) and initializes the kernel
// heap strategy over it. The strategy is only initialized once every page of
// the region has been mapped.
func Init(mapper Mapper, frames mm.FrameAllocator, mem allocator.Memory, start, size uintptr) *kernel.Error {
	if err := MapRegion(mapper, frames, start, size); err != nil {
		return err
	}

	kernelHeap.Init(mem, start, size)
	kfmt.Printf("[heap] %s strategy managing %d bytes at 0x%x\n", ActiveStrategy, size, start)
	return nil
}

// Alloc reserves size bytes aligned to align from the kernel heap.
func Alloc(size, align uintptr) (uintptr, *kernel.Error) {
	return kernelHeap.Alloc(size, align)
}

// Free returns a block obtained by Alloc to the kernel heap. The size and
// align arguments must match the ones passed to Alloc.
func Free(ptr, size, align uintptr) {
	kernelHeap.Free(ptr, size, align)
}

// GetStats returns a snapshot of the kernel heap statistics.
func GetStats() Stats {
	return kernelHeap.Stats()
}

// PrintStats writes a report of the kernel heap activity to w.
func PrintStats(w io.Writer) {
	if w == nil {
		w = kfmt.GetOutputSink()
	}

	stats := kernelHeap.Stats()

	kfmt.Fprintf(w, "[heap] strategy: %s\n", ActiveStrategy)
	kfmt.Fprintf(w, "[heap] alloc calls: %d, failed: %d, free calls: %d\n", stats.AllocCalls, stats.FailedAllocs, stats.FreeCalls)
	kfmt.Fprintf(w, "[heap] live allocations: %d (%d bytes)\n", stats.LiveAllocations, stats.LiveBytes)

	if kernelHeap.Initialized() {
		kernelHeap.With(func(s *strategy) {
			printStrategyStats(&kfmt.PrefixWriter{Sink: w, Prefix: []byte("[heap] ")}, s)
		})
	}
}

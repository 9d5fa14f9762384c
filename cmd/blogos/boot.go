package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/yawqi/blog-os-yawqi/kernel"
	"github.com/yawqi/blog-os-yawqi/kernel/cpu"
	"github.com/yawqi/blog-os-yawqi/kernel/kfmt"
	"github.com/yawqi/blog-os-yawqi/kernel/kmain"
	"github.com/yawqi/blog-os-yawqi/kernel/mm"
	"github.com/yawqi/blog-os-yawqi/kernel/mm/heap"
	"github.com/yawqi/blog-os-yawqi/kernel/mm/physmem"
	"github.com/yawqi/blog-os-yawqi/kernel/mm/vmm"
	"github.com/yawqi/blog-os-yawqi/multiboot"
)

// examplePage is the page used to demonstrate a mapping established after
// boot.
const examplePage = mm.Page(0xdeadbeaf000 >> mm.PageShift)

var (
	// kernelPanicFn is mocked by tests.
	kernelPanicFn = kfmt.Panic

	errKernelPanic = errors.New("kernel panic")
)

type bootOptions struct {
	memKb    uint64
	reserved uint64
	cmdLine  string
	allocs   int
	seed     int64
}

var bootOpts bootOptions

func init() {
	cmd := newBootCmd()
	cmd.Flags().Uint64Var(&bootOpts.memKb, "mem", 1024, "Installed physical memory in KiB")
	cmd.Flags().Uint64Var(&bootOpts.reserved, "reserved", 16, "Frames at the bottom of memory reserved for the kernel image")
	cmd.Flags().StringVar(&bootOpts.cmdLine, "cmdline", "", "Kernel command line (e.g. \"heap_start=0x10000000 heap_size=65536\")")
	cmd.Flags().IntVar(&bootOpts.allocs, "allocs", 1000, "Number of heap operations to run after boot")
	cmd.Flags().Int64Var(&bootOpts.seed, "seed", 1, "Seed for the allocation workload")
	rootCmd.AddCommand(cmd)
}

func newBootCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "boot",
		Short: "Boot the simulated machine and run a heap workload",
		Long: `The boot command installs the requested amount of physical memory, places
the boot page directory in the first reserved frame and hands a multiboot
memory map describing the machine to the kernel. Once the kernel heap is up,
a random sequence of allocations and frees is issued through the global heap
hook and every live block is checked for corruption.

Example:
  blogos boot
  blogos boot --mem 4096 --allocs 10000 --seed 42
  blogos boot --cmdline "heap_size=0x40000"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBoot(cmd.OutOrStdout(), bootOpts)
		},
	}
}

func runBoot(out io.Writer, opts bootOptions) (err error) {
	memSize := mm.Size(opts.memKb) * mm.Kb
	mem, kErr := physmem.New(memSize)
	if kErr != nil {
		return fmt.Errorf("failed to install %d KiB of memory: %w", opts.memKb, kErr)
	}
	defer func() { _ = mem.Close() }()
	defer cpu.Reset()

	if opts.reserved == 0 || opts.reserved >= uint64(mem.FrameCount()) {
		return fmt.Errorf("reserved frame count must be in [1, %d)", mem.FrameCount())
	}

	// The boot loader leaves an empty page directory in the first frame
	var pdt vmm.PageDirectoryTable
	if kErr = pdt.Init(mm.Frame(0), mem, vmm.PhysicalMemoryOffset); kErr != nil {
		return kErr
	}
	pdt.Activate()

	reservedSize := opts.reserved << mm.PageShift
	info := new(multiboot.Builder).
		SetCmdLine(opts.cmdLine).
		AddMemRegion(0, reservedSize, multiboot.MemReserved).
		AddMemRegion(reservedSize, uint64(memSize)-reservedSize, multiboot.MemAvailable).
		Build()

	kfmt.SetOutputSink(out)
	defer kfmt.SetOutputSink(nil)

	defer func() {
		if r := recover(); r != nil {
			kernelPanicFn(r)
			err = errKernelPanic
		}
	}()

	as := kmain.Kmain(info, mem, vmm.PhysicalMemoryOffset)

	if kErr = mapExamplePage(as, mem); kErr != nil {
		panic(kErr)
	}

	w := newWorkload(as, opts.seed)
	if err = w.run(opts.allocs); err != nil {
		return err
	}
	w.printSummary()

	heap.PrintStats(nil)
	return nil
}

// mapExamplePage maps examplePage to a freshly allocated frame, writes a
// marker through the new mapping and reads it back through the physical
// memory window.
func mapExamplePage(as *vmm.AddressSpace, mem *physmem.Memory) *kernel.Error {
	pdt := vmm.ActivePDT(mem, vmm.PhysicalMemoryOffset)

	frame, err := mm.AllocFrame()
	if err != nil {
		return err
	}

	if err = pdt.Map(examplePage, frame, vmm.FlagPresent|vmm.FlagRW, mm.ActiveFrameAllocator()); err != nil {
		return err
	}

	// "New!" in white on black VGA text cells
	const marker = uint64(0x_f021_f077_f065_f04e)
	as.PutUint64(examplePage.Address(), marker)

	physAddr, err := pdt.Translate(examplePage.Address())
	if err != nil {
		return err
	}

	kfmt.Printf("[blogos] mapped page 0x%x to frame 0x%x; marker via physical window: 0x%x\n",
		examplePage.Address(), physAddr, as.Uint64(vmm.PhysicalMemoryOffset+physAddr))
	return nil
}

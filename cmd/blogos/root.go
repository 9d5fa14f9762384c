package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "blogos",
	Short: "Boot the kernel memory manager on a simulated machine",
	Long: `blogos builds a simulated amd64 machine (physical memory, CR3, TLB and a
boot loader memory map), runs the kernel memory initialization sequence on it
and then drives the kernel heap with an allocation workload.

The heap allocation strategy is selected when building blogos:

  go build ./cmd/blogos                       # fixed-size block
  go build -tags heaplinkedlist ./cmd/blogos  # linked-list
  go build -tags heapbump ./cmd/blogos        # bump`,
	Version:      version,
	SilenceUsage: true,
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

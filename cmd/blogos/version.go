package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yawqi/blog-os-yawqi/kernel/mm/heap"
)

var (
	version = "dev"
	commit  = "none"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "blogos %s\n", version)
		fmt.Fprintf(cmd.OutOrStdout(), "  commit: %s\n", commit)
		fmt.Fprintf(cmd.OutOrStdout(), "  heap strategy: %s\n", heap.ActiveStrategy)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

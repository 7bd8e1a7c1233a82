// Command pico is the process entry point (§6.3): it loads a .pbc file,
// discovers native extensions in a library directory, and runs the
// interpreter to completion.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const version = "0.1.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "pico",
		Short:         "Pico bytecode VM",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCmd(), newDisasmCmd(), newReplCmd(), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the pico version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("pico version %s\n", version)
			return nil
		},
	}
}

package main

import (
	"github.com/spf13/cobra"

	"github.com/kristofer/pico/internal/ext"
	"github.com/kristofer/pico/internal/loader"
	"github.com/kristofer/pico/internal/vm"
)

const (
	defaultBytecodeFile = "main.pbc"
	defaultLibDir       = "libs"
)

func newRunCmd() *cobra.Command {
	var heapBytes int
	var trace bool

	cmd := &cobra.Command{
		Use:   "run [file] [libdir]",
		Short: "Run a compiled .pbc program",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			file := defaultBytecodeFile
			if len(args) > 0 {
				file = args[0]
			}
			libDir := defaultLibDir
			if len(args) > 1 {
				libDir = args[1]
			}

			unit, err := loader.Load(file)
			if err != nil {
				return err
			}

			env := vm.NewEnvironment(unit, heapBytes)
			if err := ext.LoadDir(env, libDir); err != nil {
				return err
			}
			if err := env.ValidateExterns(unit); err != nil {
				return err
			}

			runErr := env.Run()
			if trace {
				stats := env.Stats()
				env.Log("collections=%d growths=%d heap_bytes=%d total_objects=%d",
					stats.Collections, stats.Growths, stats.HeapBytes, stats.TotalObjects)
			}
			if shutdownErr := env.Shutdown(); runErr == nil {
				runErr = shutdownErr
			}
			return runErr
		},
	}

	cmd.Flags().IntVar(&heapBytes, "heap-bytes", 0, "initial GC per-space size in bytes (0 = default)")
	cmd.Flags().BoolVar(&trace, "trace", false, "print GC statistics after the run")
	return cmd
}

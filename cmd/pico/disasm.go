package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kristofer/pico/internal/disasm"
	"github.com/kristofer/pico/internal/loader"
)

func newDisasmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disasm <file>",
		Short: "Disassemble a .pbc file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			unit, err := loader.Load(args[0])
			if err != nil {
				return err
			}
			fmt.Print(disasm.Unit(unit))
			return nil
		},
	}
}

package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/kristofer/pico/internal/ext"
	"github.com/kristofer/pico/internal/loader"
	"github.com/kristofer/pico/internal/vm"
)

func newReplCmd() *cobra.Command {
	var heapBytes int

	cmd := &cobra.Command{
		Use:   "repl [file] [libdir]",
		Short: "Step a .pbc program interactively",
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

			dbg := vm.NewDebugger(env)
			dbg.Enable()
			dbg.SetStepMode(true)

			return runRepl(env, dbg, unit)
		},
	}

	cmd.Flags().IntVar(&heapBytes, "heap-bytes", 0, "initial GC per-space size in bytes (0 = default)")
	return cmd
}

func runRepl(env *vm.Environment, dbg *vm.Debugger, unit *loader.BytecodeUnit) error {
	rl, err := readline.New("pico> ")
	if err != nil {
		return err
	}
	defer rl.Close()

	if err := env.StartRun(); err != nil {
		return err
	}

	fmt.Println("pico repl — type 'help' for commands")
	for {
		line, err := rl.Readline()
		if err != nil {
			return nil
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "help", "h":
			printReplHelp()

		case "step", "s":
			dbg.SetStepMode(true)
			if done, err := dbg.Step(); err != nil {
				fmt.Println(err)
			} else if done {
				fmt.Println("program finished")
				return env.Shutdown()
			} else {
				printCurrentInstruction(env)
			}

		case "continue", "c":
			dbg.SetStepMode(false)
			if done, err := dbg.Step(); err != nil {
				fmt.Println(err)
			} else if done {
				fmt.Println("program finished")
				return env.Shutdown()
			} else {
				printCurrentInstruction(env)
			}

		case "break", "b":
			if len(fields) != 3 {
				fmt.Println("usage: break <func-index> <ip>")
				continue
			}
			fi, err1 := strconv.Atoi(fields[1])
			ip, err2 := strconv.Atoi(fields[2])
			if err1 != nil || err2 != nil {
				fmt.Println("usage: break <func-index> <ip>")
				continue
			}
			dbg.AddBreakpoint(fi, ip)

		case "frame", "f":
			printCurrentInstruction(env)

		case "quit", "q":
			return env.Shutdown()

		default:
			fmt.Printf("unknown command %q (try 'help')\n", fields[0])
		}
	}
}

func printCurrentInstruction(env *vm.Environment) {
	frame := env.CurrentFrame()
	if frame == nil {
		fmt.Println("(no active frame)")
		return
	}
	fmt.Printf("func#%d ip=%d sp=%d bp=%d\n", frame.Func.Index, frame.IP, frame.SP, frame.BP)
}

func printReplHelp() {
	fmt.Println("commands:")
	fmt.Println("  step, s              execute one instruction")
	fmt.Println("  continue, c          run until the next breakpoint")
	fmt.Println("  break, b <fn> <ip>   set a breakpoint")
	fmt.Println("  frame, f             show the current frame")
	fmt.Println("  quit, q              exit")
}

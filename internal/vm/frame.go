package vm

import (
	"github.com/kristofer/pico/internal/loader"
	"github.com/kristofer/pico/pkg/value"
)

// Frame is a per-call activation record (§3.5). The operand stack is
// shared across all frames — bp and sp are indices into the VM's single
// flat stack, not a private array. Locals, by contrast, are owned
// per-frame: each call gets a freshly-zeroed array sized to its function's
// local count.
type Frame struct {
	Func   *loader.Function
	BP     int // stack index recorded at frame entry
	SP     int // current stack index for this frame's view of the stack
	IP     int // instruction pointer within Func.Code
	Locals []value.Value
	Parent *Frame
}

func newFrame(fn *loader.Function, stackTop int) *Frame {
	return &Frame{
		Func:   fn,
		BP:     stackTop,
		SP:     stackTop,
		Locals: make([]value.Value, fn.LocalCount),
	}
}

// deinit releases the frame's locals early rather than waiting on Go's
// collector, mirroring PICO_FRAME_DEINIT's explicit free in the source
// this was distilled from.
func (f *Frame) deinit() {
	f.Locals = nil
}

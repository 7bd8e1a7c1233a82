package vm

import (
	"fmt"

	"github.com/kristofer/pico/internal/loader"
	"github.com/kristofer/pico/internal/vmerr"
	"github.com/kristofer/pico/pkg/value"
)

// MaxFrames bounds the call stack (§3.6, §4.3: recursion past this depth is
// a fatal ExecError, never a host stack overflow).
const MaxFrames = 512

// StackSize is the fixed length of the shared operand stack (§3.6).
const StackSize = 2048

// VM holds the state shared by every frame of one running program: the
// frame stack, the flat operand stack frames index into, and the unit's
// constant pool and function table.
type VM struct {
	frames    []*Frame
	stack     []value.Value // len == StackSize, never reallocated
	constants []value.Value
	functions []*loader.Function
	mainIndex int
}

// newVM constructs a VM over a loaded bytecode unit. The stack slice is
// allocated once at StackSize and never grows, so pointers handed out as GC
// roots stay valid for the VM's whole lifetime.
func newVM(unit *loader.BytecodeUnit) *VM {
	return &VM{
		stack:     make([]value.Value, StackSize),
		constants: unit.Constants,
		functions: unit.Functions,
		mainIndex: unit.MainIndex,
	}
}

func (m *VM) current() *Frame {
	if len(m.frames) == 0 {
		return nil
	}
	return m.frames[len(m.frames)-1]
}

// roots returns a pointer to every stack slot, for the GC to scan. Per
// §4.2/GLOSSARY, the whole fixed array is scanned regardless of how much of
// it is currently live — see internal/gc's AllocOrGrow doc comment.
func (m *VM) roots() []*value.Value {
	roots := make([]*value.Value, len(m.stack))
	for i := range m.stack {
		roots[i] = &m.stack[i]
	}
	return roots
}

// trace snapshots the current frame stack, outermost (root) first in call
// order (vmerr.renderTrace prints it innermost-first by walking it in reverse).
func (m *VM) trace() []vmerr.Frame {
	frames := make([]vmerr.Frame, len(m.frames))
	for i, f := range m.frames {
		frames[i] = vmerr.Frame{
			FuncName: fmt.Sprintf("func#%d", f.Func.Index),
			IP:       f.IP,
		}
	}
	return frames
}

func (m *VM) fault(msg string) error {
	return &vmerr.ExecError{Msg: msg, Trace: m.trace()}
}

func (m *VM) pushFrame(f *Frame) error {
	if len(m.frames) >= MaxFrames {
		return m.fault("call stack exhausted")
	}
	m.frames = append(m.frames, f)
	return nil
}

func (m *VM) popFrame() {
	f := m.current()
	f.deinit()
	m.frames = m.frames[:len(m.frames)-1]
}

func (m *VM) push(f *Frame, v value.Value) error {
	if f.SP >= StackSize {
		return m.fault("operand stack overflow")
	}
	m.stack[f.SP] = v
	f.SP++
	return nil
}

func (m *VM) pop(f *Frame) (value.Value, error) {
	if f.SP <= f.BP {
		return value.Value{}, m.fault("operand stack underflow")
	}
	f.SP--
	return m.stack[f.SP], nil
}

func (m *VM) peek(f *Frame) (value.Value, error) {
	if f.SP <= f.BP {
		return value.Value{}, m.fault("operand stack underflow")
	}
	return m.stack[f.SP-1], nil
}

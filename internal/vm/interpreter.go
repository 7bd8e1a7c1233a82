package vm

import (
	"encoding/binary"
	"fmt"

	"github.com/kristofer/pico/internal/opcode"
	"github.com/kristofer/pico/internal/vmerr"
	"github.com/kristofer/pico/pkg/abi"
	"github.com/kristofer/pico/pkg/value"
)

// StartRun pushes the root frame for the unit's designated main function
// (§4.6: entering Running), without executing any instructions. Run calls
// this itself; the REPL debugger calls it directly so it can drive
// execution one StepOnce at a time instead.
func (env *Environment) StartRun() error {
	if env.vm.mainIndex < 0 || env.vm.mainIndex >= len(env.vm.functions) {
		return &vmerr.ExecError{Msg: "main function index out of range"}
	}
	main := env.vm.functions[env.vm.mainIndex]
	if main == nil {
		return &vmerr.ExecError{Msg: "main function slot is empty"}
	}

	root := newFrame(main, 0)
	return env.vm.pushFrame(root)
}

// Run executes the unit's designated main function to completion (§4.6:
// Running is entered when the root frame is pushed, left when it returns).
// A nil error means the root frame returned cleanly; any non-nil error is
// one of vmerr's fatal kinds and the caller should treat it as terminal.
func (env *Environment) Run() error {
	if err := env.StartRun(); err != nil {
		return err
	}

	for {
		done, err := env.StepOnce()
		if err != nil || done {
			return err
		}
	}
}

// Started reports whether a root frame has been pushed (StepOnce is only
// meaningful after this).
func (env *Environment) Started() bool { return len(env.vm.frames) > 0 }

// CurrentFrame returns the innermost active frame, or nil if the VM isn't
// running. Exposed for the REPL/debugger (§3.7: "current frame, for
// debuggers/natives").
func (env *Environment) CurrentFrame() *Frame { return env.vm.current() }

// StepOnce fetches, decodes, and executes exactly one instruction in the
// current frame, following CALL/RET across frame boundaries as needed. done
// is true once the root frame has returned. This is the primitive both Run
// and the interactive debugger (cmd/pico's repl) are built on.
func (env *Environment) StepOnce() (done bool, err error) {
	m := env.vm
	frame := m.current()
	if frame == nil {
		return true, nil
	}

	code := frame.Func.Code
	if frame.IP < 0 || frame.IP >= len(code) {
		return false, m.fault("instruction pointer ran off the end of function code")
	}
	op := opcode.Op(code[frame.IP])
	frame.IP++

	var operand uint16
	if op.HasOperand() {
		if frame.IP+2 > len(code) {
			return false, m.fault(fmt.Sprintf("truncated operand for %s", op))
		}
		operand = binary.LittleEndian.Uint16(code[frame.IP:])
		frame.IP += 2
	}

	return env.step(frame, op, operand)
}

// step executes a single decoded instruction against frame. done is true
// only when the root frame has just returned and the interpreter should
// stop.
func (env *Environment) step(frame *Frame, op opcode.Op, operand uint16) (done bool, err error) {
	m := env.vm

	switch op {
	case opcode.LIC, opcode.LSC:
		idx := int(operand)
		if idx < 0 || idx >= len(m.constants) {
			return false, m.fault("constant index out of range")
		}
		return false, m.push(frame, m.constants[idx])

	case opcode.LBT:
		return false, m.push(frame, value.Boolean(true))
	case opcode.LBF:
		return false, m.push(frame, value.Boolean(false))

	case opcode.STORE, opcode.ISTORE:
		v, err := m.pop(frame)
		if err != nil {
			return false, err
		}
		if err := env.storeLocal(frame, int(operand), v); err != nil {
			return false, err
		}
		return false, nil

	case opcode.ILOAD:
		v, err := env.loadLocal(frame, int(operand))
		if err != nil {
			return false, err
		}
		return false, m.push(frame, v)

	case opcode.IINC, opcode.IDEC:
		v, err := env.loadLocal(frame, int(operand))
		if err != nil {
			return false, err
		}
		if v.Kind != value.Int {
			return false, m.fault(fmt.Sprintf("%s on a non-Int local", op))
		}
		if op == opcode.IINC {
			v.I++
		} else {
			v.I--
		}
		return false, env.storeLocal(frame, int(operand), v)

	case opcode.IADD, opcode.ISUB, opcode.IMUL, opcode.IDIV, opcode.IREM,
		opcode.IBAND, opcode.IBOR, opcode.IBXOR, opcode.ISHL, opcode.ISHR:
		return false, env.intBinOp(frame, op)

	case opcode.IAND, opcode.IOR:
		return false, env.andOrOp(frame, op)

	case opcode.IEQ, opcode.INE, opcode.ILT, opcode.ILE, opcode.IGT, opcode.IGE:
		return false, env.cmpOp(frame, op)

	case opcode.I2B:
		v, err := m.pop(frame)
		if err != nil {
			return false, err
		}
		if v.Kind != value.Int {
			return false, m.fault("I2B on a non-Int value")
		}
		return false, m.push(frame, value.Boolean(v.I != 0))

	case opcode.B2I:
		v, err := m.pop(frame)
		if err != nil {
			return false, err
		}
		if v.Kind != value.Bool {
			return false, m.fault("B2I on a non-Bool value")
		}
		if v.B {
			return false, m.push(frame, value.Int32(1))
		}
		return false, m.push(frame, value.Int32(0))

	case opcode.L2B, opcode.L2I, opcode.I2L:
		return false, m.fault(fmt.Sprintf("%s is reserved and unimplemented", op))

	case opcode.JF:
		v, err := m.pop(frame)
		if err != nil {
			return false, err
		}
		if v.Kind != value.Bool {
			return false, m.fault("JF on a non-Bool value")
		}
		if !v.B {
			frame.IP = int(operand)
		}
		return false, nil

	case opcode.JMP:
		frame.IP = int(operand)
		return false, nil

	case opcode.RET:
		return env.ret(frame)

	case opcode.CALL, opcode.VOID_CALL:
		return false, env.call(frame, int(operand))

	case opcode.CALL_EXTERN:
		return false, env.callExtern(frame, int(operand), true)
	case opcode.VOID_CALL_EXTERN:
		return false, env.callExtern(frame, int(operand), false)

	case opcode.ALLOCA_STRUCT:
		ref, err := env.AllocObject(int(operand))
		if err != nil {
			return false, err
		}
		return false, m.push(frame, value.MakeObject(ref))

	case opcode.SET_FIELD:
		v, err := m.pop(frame)
		if err != nil {
			return false, err
		}
		obj, err := m.peek(frame)
		if err != nil {
			return false, err
		}
		if !obj.IsObject() {
			return false, m.fault("SET_FIELD on a non-Object value")
		}
		if !env.gc.SetField(obj.Obj, int(operand), v) {
			return false, m.fault("SET_FIELD field index out of range")
		}
		return false, nil

	case opcode.STORE_FIELD:
		obj, err := m.pop(frame)
		if err != nil {
			return false, err
		}
		if !obj.IsObject() {
			return false, m.fault("STORE_FIELD on a non-Object value")
		}
		v, err := m.peek(frame)
		if err != nil {
			return false, err
		}
		if !env.gc.SetField(obj.Obj, int(operand), v) {
			return false, m.fault("STORE_FIELD field index out of range")
		}
		return false, nil

	case opcode.LOAD_FIELD:
		obj, err := m.pop(frame)
		if err != nil {
			return false, err
		}
		if !obj.IsObject() {
			return false, m.fault("LOAD_FIELD on a non-Object value")
		}
		v, ok := env.gc.Field(obj.Obj, int(operand))
		if !ok {
			return false, m.fault("LOAD_FIELD field index out of range")
		}
		return false, m.push(frame, v)

	case opcode.IFIELD_INC, opcode.IFIELD_DEC:
		obj, err := m.pop(frame)
		if err != nil {
			return false, err
		}
		if !obj.IsObject() {
			return false, m.fault(fmt.Sprintf("%s on a non-Object value", op))
		}
		v, ok := env.gc.Field(obj.Obj, int(operand))
		if !ok {
			return false, m.fault(fmt.Sprintf("%s field index out of range", op))
		}
		if v.Kind != value.Int {
			return false, m.fault(fmt.Sprintf("%s on a non-Int field", op))
		}
		if op == opcode.IFIELD_INC {
			v.I++
		} else {
			v.I--
		}
		env.gc.SetField(obj.Obj, int(operand), v)
		return false, nil

	case opcode.LOG:
		v, err := m.pop(frame)
		if err != nil {
			return false, err
		}
		if v.Kind != value.Int {
			return false, m.fault("LOG on a non-Int value")
		}
		fmt.Printf("%d\n", v.I)
		return false, nil

	default:
		return false, m.fault(fmt.Sprintf("unknown opcode 0x%02X", byte(op)))
	}
}

func (env *Environment) loadLocal(frame *Frame, idx int) (value.Value, error) {
	if idx < 0 || idx >= len(frame.Locals) {
		return value.Value{}, env.vm.fault("local index out of range")
	}
	return frame.Locals[idx], nil
}

func (env *Environment) storeLocal(frame *Frame, idx int, v value.Value) error {
	if idx < 0 || idx >= len(frame.Locals) {
		return env.vm.fault("local index out of range")
	}
	frame.Locals[idx] = v
	return nil
}

func (env *Environment) intBinOp(frame *Frame, op opcode.Op) error {
	m := env.vm
	b, err := m.pop(frame)
	if err != nil {
		return err
	}
	a, err := m.pop(frame)
	if err != nil {
		return err
	}
	if a.Kind != value.Int || b.Kind != value.Int {
		return m.fault(fmt.Sprintf("%s on a non-Int operand", op))
	}
	var r int32
	switch op {
	case opcode.IADD:
		r = a.I + b.I
	case opcode.ISUB:
		r = a.I - b.I
	case opcode.IMUL:
		r = a.I * b.I
	case opcode.IDIV:
		if b.I == 0 {
			return m.fault("integer division by zero")
		}
		r = a.I / b.I
	case opcode.IREM:
		if b.I == 0 {
			return m.fault("integer division by zero")
		}
		r = a.I % b.I
	case opcode.IBAND:
		r = a.I & b.I
	case opcode.IBOR:
		r = a.I | b.I
	case opcode.IBXOR:
		r = a.I ^ b.I
	case opcode.ISHL:
		r = a.I << uint32(b.I&31)
	case opcode.ISHR:
		r = a.I >> uint32(b.I&31)
	}
	return m.push(frame, value.Int32(r))
}

// andOrOp implements IAND/IOR's dual role (§4.4): bitwise on Int operands,
// strict (non-short-circuiting) logical AND/OR on Bool operands.
func (env *Environment) andOrOp(frame *Frame, op opcode.Op) error {
	m := env.vm
	b, err := m.pop(frame)
	if err != nil {
		return err
	}
	a, err := m.pop(frame)
	if err != nil {
		return err
	}
	if a.Kind != b.Kind {
		return m.fault(fmt.Sprintf("%s on mismatched operand kinds", op))
	}
	switch a.Kind {
	case value.Bool:
		var r bool
		if op == opcode.IAND {
			r = a.B && b.B
		} else {
			r = a.B || b.B
		}
		return m.push(frame, value.Boolean(r))
	case value.Int:
		var r int32
		if op == opcode.IAND {
			r = a.I & b.I
		} else {
			r = a.I | b.I
		}
		return m.push(frame, value.Int32(r))
	default:
		return m.fault(fmt.Sprintf("%s on a non-Int/Bool operand", op))
	}
}

func (env *Environment) cmpOp(frame *Frame, op opcode.Op) error {
	m := env.vm
	b, err := m.pop(frame)
	if err != nil {
		return err
	}
	a, err := m.pop(frame)
	if err != nil {
		return err
	}
	// Comparisons ignore kind tags per §4.4 ("semantics assume both
	// operands are Int"); we read the I field regardless of Kind.
	var r bool
	switch op {
	case opcode.IEQ:
		r = a.I == b.I
	case opcode.INE:
		r = a.I != b.I
	case opcode.ILT:
		r = a.I < b.I
	case opcode.ILE:
		r = a.I <= b.I
	case opcode.IGT:
		r = a.I > b.I
	case opcode.IGE:
		r = a.I >= b.I
	}
	return m.push(frame, value.Boolean(r))
}

// call implements §4.3's CALL/VOID_CALL sequence.
func (env *Environment) call(frame *Frame, fnIndex int) error {
	m := env.vm
	if fnIndex < 0 || fnIndex >= len(m.functions) {
		return m.fault("call to out-of-range function index")
	}
	target := m.functions[fnIndex]
	if target == nil {
		return m.fault("call to an empty function slot")
	}
	if frame.SP-frame.BP < target.ParamCount {
		return m.fault("call arity exceeds available operands")
	}

	args := make([]value.Value, target.ParamCount)
	for i := target.ParamCount - 1; i >= 0; i-- {
		v, err := m.pop(frame)
		if err != nil {
			return err
		}
		args[i] = v
	}

	// bp/sp are snapshotted after the argument pops, once frame.SP reflects
	// the caller's post-transfer stack top — not before, which would leave
	// the child's base k slots above where its RET needs to land.
	child := newFrame(target, frame.SP)
	child.Parent = frame
	copy(child.Locals, args)
	return m.pushFrame(child)
}

// ret implements §4.3's RET sequence, including the caller-sp
// synchronization that propagates whatever the callee left above its own
// base back onto the caller's view of the stack.
func (env *Environment) ret(frame *Frame) (done bool, err error) {
	m := env.vm
	parent := frame.Parent
	if parent == nil {
		m.popFrame()
		return true, nil
	}

	left := frame.SP - frame.BP
	m.popFrame()
	parent.SP += left
	return false, nil
}

// callExtern implements §4.4/§4.5's CALL_EXTERN/VOID_CALL_EXTERN: resolve
// the constant-pool name, look it up in the registry, lift its arity-sized
// argument window off the operand stack, invoke, and for a value-returning
// native push the result.
func (env *Environment) callExtern(frame *Frame, nameConstIdx int, wantsValue bool) error {
	m := env.vm
	if nameConstIdx < 0 || nameConstIdx >= len(m.constants) {
		return m.fault("extern call constant index out of range")
	}
	name, ok := constString(m.constants[nameConstIdx])
	if !ok {
		return m.fault("extern call constant is not a string")
	}

	entry, ok := env.natives.Lookup(name)
	if !ok {
		return &vmerr.LinkError{Msg: "call to unregistered native: " + name}
	}
	if wantsValue != (entry.Kind == abi.ReturnsValue) {
		return m.fault("extern call kind mismatch for native: " + name)
	}
	if frame.SP-frame.BP < entry.Arity {
		return m.fault("extern call arity exceeds available operands: " + name)
	}

	args := make([]value.Value, entry.Arity)
	copy(args, m.stack[frame.SP-entry.Arity:frame.SP])
	frame.SP -= entry.Arity

	if entry.Kind == abi.ReturnsValue {
		result, err := entry.ValueFn(env, args)
		if err != nil {
			return &vmerr.LinkError{Msg: fmt.Sprintf("native %s failed: %v", name, err)}
		}
		return m.push(frame, result)
	}
	if err := entry.VoidFn(env, args); err != nil {
		return &vmerr.LinkError{Msg: fmt.Sprintf("native %s failed: %v", name, err)}
	}
	return nil
}

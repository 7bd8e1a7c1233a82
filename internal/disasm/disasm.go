// Package disasm renders a loaded bytecode unit as a human-readable
// instruction listing, grounded on the opcode mnemonics smog's
// pkg/bytecode Opcode.String() table provides and on the fetch/decode shape of
// original_source/runtime/disassembler.c.
package disasm

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/kristofer/pico/internal/loader"
	"github.com/kristofer/pico/internal/opcode"
	"github.com/kristofer/pico/pkg/value"
)

// Unit renders every function in unit as a mnemonic listing, one function
// per section, each instruction on its own line prefixed with its byte
// offset.
func Unit(unit *loader.BytecodeUnit) string {
	var b strings.Builder
	for _, fn := range unit.Functions {
		if fn == nil {
			continue
		}
		fmt.Fprintf(&b, "func#%d %s (params=%d locals=%d)\n",
			fn.Index, constName(unit, fn.NameID), fn.ParamCount, fn.LocalCount)
		Function(&b, unit, fn)
		b.WriteString("\n")
	}
	return b.String()
}

// Function writes fn's instruction listing to b, resolving constant-pool
// operands to their printed value where the opcode names one.
func Function(b *strings.Builder, unit *loader.BytecodeUnit, fn *loader.Function) {
	code := fn.Code
	ip := 0
	for ip < len(code) {
		start := ip
		op := opcode.Op(code[ip])
		ip++

		if !op.HasOperand() {
			fmt.Fprintf(b, "  %04d  %s\n", start, op)
			continue
		}

		if ip+2 > len(code) {
			fmt.Fprintf(b, "  %04d  %s <truncated operand>\n", start, op)
			break
		}
		operand := binary.LittleEndian.Uint16(code[ip:])
		ip += 2

		fmt.Fprintf(b, "  %04d  %-16s %5d%s\n", start, op, operand, operandHint(unit, op, operand))
	}
}

// operandHint annotates an operand with its resolved meaning for opcodes
// that index the constant pool, for readability.
func operandHint(unit *loader.BytecodeUnit, op opcode.Op, operand uint16) string {
	switch op {
	case opcode.LIC, opcode.LSC, opcode.CALL_EXTERN, opcode.VOID_CALL_EXTERN:
		idx := int(operand)
		if idx < 0 || idx >= len(unit.Constants) {
			return "  ; <out of range>"
		}
		return "  ; " + constRepr(unit.Constants[idx])
	case opcode.CALL, opcode.VOID_CALL:
		idx := int(operand)
		if idx < 0 || idx >= len(unit.Functions) || unit.Functions[idx] == nil {
			return "  ; <out of range>"
		}
		return "  ; " + constName(unit, unit.Functions[idx].NameID)
	default:
		return ""
	}
}

func constRepr(v value.Value) string {
	switch v.Kind {
	case value.Int:
		return fmt.Sprintf("%d", v.I)
	case value.String:
		if v.S != nil {
			return fmt.Sprintf("%q", v.S.String())
		}
		return `""`
	default:
		return v.Kind.String()
	}
}

func constName(unit *loader.BytecodeUnit, nameID int) string {
	if nameID < 0 || nameID >= len(unit.Constants) {
		return fmt.Sprintf("<name#%d>", nameID)
	}
	v := unit.Constants[nameID]
	if v.Kind == value.String && v.S != nil {
		return v.S.String()
	}
	return fmt.Sprintf("<name#%d>", nameID)
}

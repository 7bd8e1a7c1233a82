package disasm

import (
	"strings"
	"testing"

	"github.com/kristofer/pico/internal/loader"
	"github.com/kristofer/pico/internal/opcode"
	"github.com/kristofer/pico/pkg/value"
)

func TestUnitRendersMnemonicsAndResolvesConstants(t *testing.T) {
	fn := &loader.Function{
		Index: 0, NameID: 1, ParamCount: 0, LocalCount: 0,
		Code: []byte{
			byte(opcode.LIC), 0, 0, // LIC 0
			byte(opcode.LOG),
			byte(opcode.RET),
		},
	}
	unit := &loader.BytecodeUnit{
		Constants: []value.Value{value.Int32(42), value.MakeString(&value.Str{Bytes: []byte("main")})},
		Functions: []*loader.Function{fn},
		MainIndex: 0,
	}

	out := Unit(unit)
	if !strings.Contains(out, "LIC") || !strings.Contains(out, "42") {
		t.Fatalf("expected disassembly to show LIC and its resolved constant, got:\n%s", out)
	}
	if !strings.Contains(out, "LOG") || !strings.Contains(out, "RET") {
		t.Fatalf("expected disassembly to list LOG and RET, got:\n%s", out)
	}
	if !strings.Contains(out, "main") {
		t.Fatalf("expected function name resolved from the constant pool, got:\n%s", out)
	}
}

func TestUnitFlagsTruncatedOperand(t *testing.T) {
	fn := &loader.Function{Index: 0, Code: []byte{byte(opcode.LIC), 0}}
	unit := &loader.BytecodeUnit{Functions: []*loader.Function{fn}, MainIndex: 0}

	out := Unit(unit)
	if !strings.Contains(out, "truncated") {
		t.Fatalf("expected truncated-operand marker, got:\n%s", out)
	}
}

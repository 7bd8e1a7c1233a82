// Package loader parses a .pbc bytecode file into a BytecodeUnit (§4.1,
// §6.1).
//
// The file is memory-mapped rather than read into a buffer up front —
// mirroring how the wasm runtimes in the retrieval pack (github.com/
// edsrzf/mmap-go) map a module's bytes before parsing a header-prefixed
// binary format out of them. Parsing still proceeds sequentially through
// the mapped slice with the same truncation checks a buffered reader would
// need; mmap only changes how the bytes arrive, not the format contract.
package loader

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/edsrzf/mmap-go"

	"github.com/kristofer/pico/pkg/value"
	"github.com/kristofer/pico/internal/vmerr"
)

const (
	headerSize  = 16
	magic       = "PEXB"
	constTagInt = 0x01
	constTagStr = 0x02
)

// Function is a loaded function descriptor (§3.4).
type Function struct {
	Index      int
	NameID     int
	ParamCount int
	LocalCount int
	Code       []byte
}

// ExternLib is one entry of the extern-imports section (§4.1): a library
// name plus the native function names it requires. The loader only uses
// this to validate that required natives are registered — it never drives
// linkage itself (§4.1).
type ExternLib struct {
	LibNameID int
	FnNameIDs []int
}

// BytecodeUnit is the loader's output (§4.1): the constant pool, the
// function table, the designated main function, and the extern-import
// list.
type BytecodeUnit struct {
	Constants []value.Value
	Functions []*Function
	MainIndex int
	Externs   []ExternLib
}

// Load reads and parses filename, memory-mapping the underlying file.
// Every failure described in §4.1/§7 (missing file, wrong extension,
// truncated record, invalid constant tag) is returned as a *vmerr.LoaderError.
func Load(filename string) (*BytecodeUnit, error) {
	if filepath.Ext(filename) != ".pbc" {
		return nil, &vmerr.LoaderError{Msg: fmt.Sprintf("unexpected file extension: %q (want .pbc)", filename), Pos: -1}
	}

	f, err := os.Open(filename)
	if err != nil {
		return nil, &vmerr.LoaderError{Msg: fmt.Sprintf("cannot open %q: %v", filename, err), Pos: -1}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, &vmerr.LoaderError{Msg: fmt.Sprintf("cannot stat %q: %v", filename, err), Pos: -1}
	}
	if info.Size() == 0 {
		return nil, &vmerr.LoaderError{Msg: fmt.Sprintf("%q is empty", filename), Pos: 0}
	}

	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, &vmerr.LoaderError{Msg: fmt.Sprintf("cannot map %q: %v", filename, err), Pos: -1}
	}
	defer m.Unmap()

	return parse([]byte(m))
}

// LoadBytes parses an already-in-memory .pbc image, used by tests and by
// callers that built a unit without touching the filesystem.
func LoadBytes(data []byte) (*BytecodeUnit, error) {
	return parse(data)
}

func parse(data []byte) (*BytecodeUnit, error) {
	c := &cursor{data: data}

	if err := c.expectHeader(); err != nil {
		return nil, err
	}

	constants, err := c.readConstants()
	if err != nil {
		return nil, err
	}

	mainIndex, err := c.u16()
	if err != nil {
		return nil, c.truncated("main function index")
	}

	functions, err := c.readFunctions()
	if err != nil {
		return nil, err
	}

	externs, err := c.readExterns()
	if err != nil {
		return nil, err
	}

	return &BytecodeUnit{
		Constants: constants,
		Functions: functions,
		MainIndex: int(mainIndex),
		Externs:   externs,
	}, nil
}

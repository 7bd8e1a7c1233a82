package loader

import (
	"encoding/binary"
	"fmt"

	"github.com/kristofer/pico/pkg/value"
	"github.com/kristofer/pico/internal/vmerr"
)

// cursor is a forward-only reader over a mapped byte slice. Every read
// checks bounds explicitly so a truncated file becomes a position-tagged
// *vmerr.LoaderError (§4.1: "implementers must detect truncation and fail
// fatally with a position-tagged message") instead of an out-of-range
// panic.
type cursor struct {
	data []byte
	pos  int
}

func (c *cursor) truncated(what string) error {
	return &vmerr.LoaderError{Msg: fmt.Sprintf("truncated %s", what), Pos: int64(c.pos)}
}

func (c *cursor) take(n int) ([]byte, bool) {
	if c.pos+n > len(c.data) {
		return nil, false
	}
	b := c.data[c.pos : c.pos+n]
	c.pos += n
	return b, true
}

func (c *cursor) u8() (byte, error) {
	b, ok := c.take(1)
	if !ok {
		return 0, c.truncated("byte")
	}
	return b[0], nil
}

func (c *cursor) u16() (uint16, error) {
	b, ok := c.take(2)
	if !ok {
		return 0, c.truncated("u16")
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (c *cursor) u32() (uint32, error) {
	b, ok := c.take(4)
	if !ok {
		return 0, c.truncated("u32")
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (c *cursor) i32() (int32, error) {
	v, err := c.u32()
	return int32(v), err
}

func (c *cursor) expectHeader() error {
	hdr, ok := c.take(headerSize)
	if !ok {
		return c.truncated("header")
	}
	if string(hdr[0:4]) != magic {
		return &vmerr.LoaderError{Msg: fmt.Sprintf("bad magic: %q (want %q)", hdr[0:4], magic), Pos: 0}
	}
	// version, reserved, entry point, and code-length hint (bytes 4-15)
	// are read but unused beyond validating the file is long enough to
	// hold them, per §6.1.
	return nil
}

func (c *cursor) readConstants() ([]value.Value, error) {
	n, err := c.u16()
	if err != nil {
		return nil, c.truncated("constant count")
	}

	constants := make([]value.Value, 0, n)
	for i := uint16(0); i < n; i++ {
		tag, err := c.u8()
		if err != nil {
			return nil, c.truncated("constant tag")
		}

		switch tag {
		case constTagInt:
			iv, err := c.i32()
			if err != nil {
				return nil, c.truncated("int constant")
			}
			constants = append(constants, value.Int32(iv))

		case constTagStr:
			length, err := c.u16()
			if err != nil {
				return nil, c.truncated("string constant length")
			}
			raw, ok := c.take(int(length))
			if !ok {
				return nil, c.truncated("string constant bytes")
			}
			// The loader owns this string's storage for the VM's
			// lifetime (§3.3) and is responsible for the NUL
			// terminator the on-disk form omits (§6.1): the NUL is kept
			// in the byte just past the end of Str.Bytes.
			buf := make([]byte, int(length)+1)
			copy(buf, raw)
			constants = append(constants, value.MakeString(&value.Str{Bytes: buf[:length]}))

		default:
			return nil, &vmerr.LoaderError{Msg: fmt.Sprintf("invalid constant tag: 0x%02X", tag), Pos: int64(c.pos - 1)}
		}
	}
	return constants, nil
}

func (c *cursor) readFunctions() ([]*Function, error) {
	n, err := c.u16()
	if err != nil {
		return nil, c.truncated("function count")
	}

	functions := make([]*Function, n)
	for i := uint16(0); i < n; i++ {
		idx, err := c.u16()
		if err != nil {
			return nil, c.truncated("function index")
		}
		nameID, err := c.u16()
		if err != nil {
			return nil, c.truncated("function name id")
		}
		paramCount, err := c.u16()
		if err != nil {
			return nil, c.truncated("function param count")
		}
		localCount, err := c.u16()
		if err != nil {
			return nil, c.truncated("function local count")
		}
		codeLen, err := c.u32()
		if err != nil {
			return nil, c.truncated("function code length")
		}
		code, ok := c.take(int(codeLen))
		if !ok {
			return nil, c.truncated("function code")
		}
		buf := make([]byte, codeLen)
		copy(buf, code)

		if int(idx) >= len(functions) {
			return nil, &vmerr.LoaderError{Msg: fmt.Sprintf("function placement index out of range: %d", idx), Pos: int64(c.pos)}
		}
		functions[idx] = &Function{
			Index:      int(idx),
			NameID:     int(nameID),
			ParamCount: int(paramCount),
			LocalCount: int(localCount),
			Code:       buf,
		}
	}
	return functions, nil
}

func (c *cursor) readExterns() ([]ExternLib, error) {
	n, err := c.u16()
	if err != nil {
		return nil, c.truncated("extern lib count")
	}

	externs := make([]ExternLib, n)
	for i := uint16(0); i < n; i++ {
		libNameID, err := c.u16()
		if err != nil {
			return nil, c.truncated("extern lib name id")
		}
		fnCount, err := c.u16()
		if err != nil {
			return nil, c.truncated("extern fn count")
		}
		fnIDs := make([]int, fnCount)
		for j := uint16(0); j < fnCount; j++ {
			id, err := c.u16()
			if err != nil {
				return nil, c.truncated("extern fn name id")
			}
			fnIDs[j] = int(id)
		}
		externs[i] = ExternLib{LibNameID: int(libNameID), FnNameIDs: fnIDs}
	}
	return externs, nil
}

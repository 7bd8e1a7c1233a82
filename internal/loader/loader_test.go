package loader

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kristofer/pico/pkg/value"
)

type builder struct{ buf []byte }

func (b *builder) u8(v byte)     { b.buf = append(b.buf, v) }
func (b *builder) u16(v uint16)  { b.buf = append(b.buf, byte(v), byte(v>>8)) }
func (b *builder) u32(v uint32)  { b.buf = append(b.buf, byte(v), byte(v>>8), byte(v>>16), byte(v>>24)) }
func (b *builder) i32(v int32)   { b.u32(uint32(v)) }
func (b *builder) bytes(p []byte) { b.buf = append(b.buf, p...) }

// validImage builds a minimal well-formed .pbc image: header, two
// constants (an int and a string), one function, no externs.
func validImage() []byte {
	b := &builder{}
	b.bytes([]byte(magic))
	b.u16(1) // version
	b.u16(0) // reserved
	b.u32(0) // entry point (unused)
	b.u32(0) // code-length hint (unused)

	b.u16(2) // num_constants
	b.u8(constTagInt)
	b.i32(42)
	b.u8(constTagStr)
	b.u16(5)
	b.bytes([]byte("hello"))

	b.u16(0) // main function index

	b.u16(1) // num_functions
	b.u16(0) // function_index
	b.u16(1) // name_id
	b.u16(0) // param_count
	b.u16(1) // local_count
	code := []byte{0x66} // RET
	b.u32(uint32(len(code)))
	b.bytes(code)

	b.u16(0) // num_libs (no externs)

	return b.buf
}

func TestLoadBytesValidImage(t *testing.T) {
	unit, err := LoadBytes(validImage())
	require.NoError(t, err)

	require.Len(t, unit.Constants, 2)
	assert.Equal(t, value.Int32(42), unit.Constants[0])
	assert.Equal(t, value.String, unit.Constants[1].Kind)
	assert.Equal(t, "hello", unit.Constants[1].S.String())

	assert.Equal(t, 0, unit.MainIndex)
	require.Len(t, unit.Functions, 1)
	fn := unit.Functions[0]
	assert.Equal(t, 1, fn.NameID)
	assert.Equal(t, 0, fn.ParamCount)
	assert.Equal(t, 1, fn.LocalCount)
	assert.Equal(t, []byte{0x66}, fn.Code)
	assert.Empty(t, unit.Externs)
}

func TestLoadBytesRejectsBadMagic(t *testing.T) {
	img := validImage()
	img[0] = 'X'
	_, err := LoadBytes(img)
	assert.Error(t, err)
}

func TestLoadBytesRejectsTruncatedHeader(t *testing.T) {
	_, err := LoadBytes([]byte("PEX"))
	assert.Error(t, err)
}

func TestLoadBytesRejectsTruncatedFunctionCode(t *testing.T) {
	img := validImage()
	// Trailing layout is [codeLen:4][code:1][numLibs:2]; lie about codeLen
	// so the reader demands more code bytes than the image actually has.
	codeLenOffset := len(img) - 7
	binary.LittleEndian.PutUint32(img[codeLenOffset:], 99)
	_, err := LoadBytes(img)
	assert.Error(t, err)
}

func TestLoadBytesRejectsInvalidConstantTag(t *testing.T) {
	b := &builder{}
	b.bytes([]byte(magic))
	b.u16(1)
	b.u16(0)
	b.u32(0)
	b.u32(0)
	b.u16(1) // one constant
	b.u8(0x99) // invalid tag
	_, err := LoadBytes(b.buf)
	assert.Error(t, err)
}

func TestLoadRejectsWrongExtension(t *testing.T) {
	_, err := Load("program.txt")
	assert.Error(t, err)
}

func TestLoadRejectsMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/program.pbc")
	assert.Error(t, err)
}

// String constants are copied out of the source buffer rather than
// aliasing it, since Load unmaps the file before returning.
func TestLoadBytesCopiesStringConstants(t *testing.T) {
	img := validImage()
	unit, err := LoadBytes(img)
	require.NoError(t, err)

	s := unit.Constants[1].S
	for i := range img {
		img[i] = 0
	}
	assert.Equal(t, "hello", s.String())
}

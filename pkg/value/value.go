// Package value defines Pico's runtime value representation.
//
// A Value is a tagged union over four kinds (§3.1): Int, Bool, String, and
// Object. Values are small and copied by value through the operand stack
// and local slots — the same discipline smog's VM uses for its
// interface{}-typed stack, except here the discriminator is explicit so the
// interpreter never needs a type switch on a dynamic Go type.
package value

// Kind discriminates which arm of a Value is inhabited.
type Kind uint8

const (
	// Int is a signed 32-bit integer.
	Int Kind = iota
	// Bool is a truth value.
	Bool
	// String is a constant-pool-owned byte sequence.
	String
	// Object is a reference into the GC heap.
	Object
)

func (k Kind) String() string {
	switch k {
	case Int:
		return "Int"
	case Bool:
		return "Bool"
	case String:
		return "String"
	case Object:
		return "Object"
	default:
		return "Unknown"
	}
}

// Str is a NUL-terminated byte sequence owned by the constant pool (§3.1,
// §3.3). Bytes holds the content without the trailing NUL; Go code should
// use Bytes/Len rather than relying on the NUL, which exists only to match
// the on-disk/ABI contract native libraries may expect.
type Str struct {
	Bytes []byte
}

// Len returns the string's length, excluding the trailing NUL.
func (s *Str) Len() int { return len(s.Bytes) }

func (s *Str) String() string { return string(s.Bytes) }

// Ref identifies a heap object by its slot in the GC's current from-space.
// It is meaningless across a collection cycle unless rewritten by the
// collector — see package gc.
type Ref int32

// Value is the tagged union described in §3.1. The zero Value is the
// integer 0; callers that need "no value" use a separate bool or rely on
// context (e.g. a block with an empty body never synthesizes one).
type Value struct {
	Kind Kind
	I    int32
	B    bool
	S    *Str
	Obj  Ref
}

// Int32 builds an Int value.
func Int32(i int32) Value { return Value{Kind: Int, I: i} }

// Boolean builds a Bool value.
func Boolean(b bool) Value { return Value{Kind: Bool, B: b} }

// MakeString builds a String value over an existing constant-pool string.
func MakeString(s *Str) Value { return Value{Kind: String, S: s} }

// MakeObject builds an Object value referencing a heap slot.
func MakeObject(ref Ref) Value { return Value{Kind: Object, Obj: ref} }

// IsObject reports whether v's kind is Object — the GC root-set test of
// §4.2 ("every Value on the operand stack whose kind is Object").
func (v Value) IsObject() bool { return v.Kind == Object }

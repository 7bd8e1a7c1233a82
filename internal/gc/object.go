package gc

import "github.com/kristofer/pico/pkg/value"

// object is the in-memory representation of §3.2's heap object: a header
// (field count, forwarding state) followed by an inline field array. Go's
// allocator already gives us a safe home for the struct itself; what the GC
// owns and moves is the *slot* a Value.Obj ref names, not raw bytes, which
// keeps the rewrite free of unsafe pointer arithmetic while preserving the
// header-then-fields layout and the forwarding discriminator §9 asks for.
type object struct {
	numFields  int
	forwarded  bool
	forwardRef value.Ref
	fields     []value.Value
}

// sizeOf returns the accounted byte size of an object with n fields, used
// purely for semi-space capacity bookkeeping (§4.2's "sizeof(header) +
// n_fields * sizeof(Value)"). The constants mirror the C layout's rough
// proportions without claiming to match a specific ABI.
func sizeOf(numFields int) int {
	const headerBytes = 8
	const valueBytes = 16
	return headerBytes + numFields*valueBytes
}

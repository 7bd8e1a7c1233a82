// Package gc implements Pico's semi-space copying collector (§4.2).
//
// The heap is a pair of equal-sized spaces, "from" and "to". Allocation is
// a bump pointer into from-space; when it cannot satisfy a request the
// collector copies every reachable object into to-space (Cheney-style,
// worklist variant) and the spaces are flipped. If a collection still
// cannot make room, both spaces are doubled and the cycle repeats once
// more before giving up.
//
// Unlike the C original this was distilled from, objects are not addressed
// by raw pointer into a byte arena — each space holds a slice of *object,
// and a value.Ref is an index into whichever space currently plays the
// "from" role. This is the "arena + typed indices" rewrite the design
// notes call for: growing a space's slice never invalidates a Ref, and the
// collector is the only code that ever rewrites one.
package gc

import (
	"github.com/kristofer/pico/pkg/value"
	"github.com/kristofer/pico/internal/vmerr"
)

// MaxFields is the largest field count an object may carry (§3.2: one
// byte, so 0-255).
const MaxFields = 255

// Stats reports collector activity, surfaced by the CLI's -trace flag and
// exercised by tests asserting §8's boundary behaviors.
type Stats struct {
	TotalObjects int // objects allocated over the collector's lifetime
	Collections  int // completed Collect cycles
	Growths      int // heap doublings
	HeapBytes    int // current per-space capacity
}

type space struct {
	objects  []*object
	used     int
	capacity int
}

func newSpace(capacity int) *space {
	return &space{capacity: capacity}
}

func (s *space) alloc(numFields int) (value.Ref, bool) {
	size := sizeOf(numFields)
	if s.used+size > s.capacity {
		return 0, false
	}
	obj := &object{numFields: numFields, fields: make([]value.Value, numFields)}
	s.objects = append(s.objects, obj)
	s.used += size
	return value.Ref(len(s.objects) - 1), true
}

func (s *space) reset() {
	s.objects = s.objects[:0]
	s.used = 0
}

// GC owns the from/to spaces and the worklist collector.
type GC struct {
	from, to  *space
	heapBytes int
	stats     Stats
}

// New creates a collector with from/to spaces each heapBytes in size.
func New(heapBytes int) *GC {
	return &GC{
		from:      newSpace(heapBytes),
		to:        newSpace(heapBytes),
		heapBytes: heapBytes,
	}
}

func (g *GC) object(ref value.Ref) *object { return g.from.objects[ref] }

// NumFields returns the field count of the object ref currently names.
func (g *GC) NumFields(ref value.Ref) int { return g.object(ref).numFields }

// Field reads field i of ref. ok is false on an out-of-range index.
func (g *GC) Field(ref value.Ref, i int) (v value.Value, ok bool) {
	obj := g.object(ref)
	if i < 0 || i >= obj.numFields {
		return value.Value{}, false
	}
	return obj.fields[i], true
}

// SetField writes field i of ref. ok is false on an out-of-range index.
func (g *GC) SetField(ref value.Ref, i int, v value.Value) (ok bool) {
	obj := g.object(ref)
	if i < 0 || i >= obj.numFields {
		return false
	}
	obj.fields[i] = v
	return true
}

// Alloc is the raw bump allocation of §4.2: it never collects or grows,
// returning ok=false when from-space cannot satisfy the request.
func (g *GC) Alloc(numFields int) (value.Ref, bool) {
	ref, ok := g.from.alloc(numFields)
	if ok {
		g.stats.TotalObjects++
	}
	return ref, ok
}

// AllocOrGrow implements the full allocation-failure sequence a caller
// must perform on a failed Alloc (§4.2): collect and retry, then double
// the heap and retry once more, finally reporting a MemoryError. roots
// must be every Value the GC should treat as live — per §4.2/GLOSSARY,
// every slot of the operand stack, scanned in full regardless of the
// current stack pointer (this mirrors original_source/runtime/gc.c, which
// scans the whole fixed-size stack array rather than just its live
// prefix).
func (g *GC) AllocOrGrow(numFields int, roots []*value.Value) (value.Ref, error) {
	if numFields > MaxFields {
		return 0, &vmerr.ExecError{Msg: "object exceeds maximum field count"}
	}
	if ref, ok := g.Alloc(numFields); ok {
		return ref, nil
	}

	g.Collect(roots)
	g.flip()
	if ref, ok := g.Alloc(numFields); ok {
		return ref, nil
	}

	g.grow(roots)
	if ref, ok := g.Alloc(numFields); ok {
		return ref, nil
	}

	return 0, &vmerr.MemoryError{
		Msg:       "allocation failed after collection and heap doubling",
		HeapBytes: g.heapBytes,
	}
}

// Collect runs one Cheney-style worklist collection into to-space. roots
// are pointers directly into the caller's live storage (the operand
// stack) — each forwarded reference is rewritten in place, which is how
// the interpreter's stack ends up pointing at the post-collection
// addresses without any extra bookkeeping.
func (g *GC) Collect(roots []*value.Value) {
	g.to.reset()

	var worklist []*value.Value
	for _, r := range roots {
		if r.Kind == value.Object {
			worklist = append(worklist, r)
		}
	}

	for len(worklist) > 0 {
		cur := worklist[0]
		worklist = worklist[1:]

		cur.Obj = g.copy(cur.Obj)

		obj := g.to.objects[cur.Obj]
		for i := range obj.fields {
			if obj.fields[i].Kind == value.Object {
				worklist = append(worklist, &obj.fields[i])
			}
		}
	}

	g.stats.Collections++
}

// copy returns the to-space ref for a from-space object, copying it on
// first visit and returning the recorded forward on subsequent visits.
// The forwarding state lives on the from-space object itself — an
// explicit pointer, not the address-range test the original source used
// (see SPEC_FULL.md §11 on that open question).
func (g *GC) copy(ref value.Ref) value.Ref {
	obj := g.from.objects[ref]
	if obj.forwarded {
		return obj.forwardRef
	}

	copied := &object{
		numFields: obj.numFields,
		fields:    append([]value.Value(nil), obj.fields...),
	}
	g.to.objects = append(g.to.objects, copied)
	g.to.used += sizeOf(obj.numFields)

	newRef := value.Ref(len(g.to.objects) - 1)
	obj.forwarded = true
	obj.forwardRef = newRef
	return newRef
}

// flip swaps the from/to roles and resets the new to-space for reuse.
func (g *GC) flip() {
	g.from, g.to = g.to, g.from
	g.to.reset()
}

// grow doubles both spaces, collecting the current live set directly into
// the new (larger) to-space before flipping — mirroring
// original_source/runtime/gc.c's pico_gc_extend_spaces.
func (g *GC) grow(roots []*value.Value) {
	newSize := g.heapBytes * 2
	newFrom := newSpace(newSize)
	newTo := newSpace(newSize)

	g.to = newFrom
	g.Collect(roots)
	g.from = newTo
	g.flip()

	g.heapBytes = newSize
	g.stats.Growths++
}

// Stats reports collector activity for diagnostics and tests.
func (g *GC) Stats() Stats {
	s := g.stats
	s.HeapBytes = g.heapBytes
	return s
}

package vm

import (
	"log"
	"os"

	"github.com/kristofer/pico/internal/gc"
	"github.com/kristofer/pico/internal/loader"
	"github.com/kristofer/pico/internal/vmerr"
	"github.com/kristofer/pico/pkg/abi"
	"github.com/kristofer/pico/pkg/value"
)

// LibraryHandle is the minimal surface internal/ext's loaded-library handle
// must satisfy to be tracked and closed by an Environment. Defining it here
// (rather than importing internal/ext) keeps the dependency one-directional
// — ext depends on vm for this interface, not the other way around.
type LibraryHandle interface {
	Path() string
	Close() error
}

// Environment is the lifecycle object a running program gets: the VM's
// call/operand stacks, the GC, the native registry, and the set of
// currently-open extension libraries (§3.7, §4.6).
type Environment struct {
	vm        *VM
	gc        *gc.GC
	natives   *abi.Registry
	libraries []LibraryHandle
	logger    *log.Logger
}

// DefaultHeapBytes is the initial per-space size handed to gc.New when a
// caller doesn't override it (e.g. via a CLI flag).
const DefaultHeapBytes = 1 << 16

// NewEnvironment constructs a ready-to-run Environment over a loaded
// bytecode unit (§4.6: Initializing state). heapBytes <= 0 selects
// DefaultHeapBytes.
func NewEnvironment(unit *loader.BytecodeUnit, heapBytes int) *Environment {
	if heapBytes <= 0 {
		heapBytes = DefaultHeapBytes
	}
	return &Environment{
		vm:      newVM(unit),
		gc:      gc.New(heapBytes),
		natives: abi.NewRegistry(),
		logger:  log.New(os.Stderr, "pico: ", 0),
	}
}

// AddLibrary registers an opened extension library for ordered shutdown.
func (env *Environment) AddLibrary(h LibraryHandle) { env.libraries = append(env.libraries, h) }

// Registry exposes the native registry for the extension loader to populate
// before Run starts.
func (env *Environment) Registry() *abi.Registry { return env.natives }

// ValidateExterns checks every extern-imports entry in the unit against
// what's actually registered (§4.1: validation only, never linkage).
// Resolving a name requires the unit's constant pool, since extern entries
// name functions by constant-pool string id.
func (env *Environment) ValidateExterns(unit *loader.BytecodeUnit) error {
	for _, lib := range unit.Externs {
		for _, fnID := range lib.FnNameIDs {
			if fnID < 0 || fnID >= len(unit.Constants) {
				return &vmerr.LinkError{Msg: "extern entry names an out-of-range constant"}
			}
			name, ok := constString(unit.Constants[fnID])
			if !ok {
				return &vmerr.LinkError{Msg: "extern entry does not name a string constant"}
			}
			if _, ok := env.natives.Lookup(name); !ok {
				return &vmerr.LinkError{Msg: "required native not registered: " + name}
			}
		}
	}
	return nil
}

func constString(v value.Value) (string, bool) {
	if v.Kind != value.String || v.S == nil {
		return "", false
	}
	return v.S.String(), true
}

// AllocObject implements abi.Environment.
func (env *Environment) AllocObject(numFields int) (value.Ref, error) {
	return env.gc.AllocOrGrow(numFields, env.vm.roots())
}

// Field implements abi.Environment.
func (env *Environment) Field(ref value.Ref, i int) (value.Value, bool) {
	return env.gc.Field(ref, i)
}

// SetField implements abi.Environment.
func (env *Environment) SetField(ref value.Ref, i int, v value.Value) bool {
	return env.gc.SetField(ref, i, v)
}

// Log implements abi.Environment.
func (env *Environment) Log(format string, args ...any) { env.logger.Printf(format, args...) }

// Stats reports GC activity, surfaced by the CLI's -trace flag.
func (env *Environment) Stats() gc.Stats { return env.gc.Stats() }

// Shutdown tears the environment down in the order §4.6 specifies:
// deinitialize remaining frames bottom-up, then close libraries in the
// reverse of their load order. Go's collector reclaims constant-pool and
// code buffers itself; there is nothing to free there beyond dropping the
// references, which happens as env goes out of scope.
func (env *Environment) Shutdown() error {
	for len(env.vm.frames) > 0 {
		env.vm.popFrame()
	}
	var firstErr error
	for i := len(env.libraries) - 1; i >= 0; i-- {
		env.Log("closing extension %s", env.libraries[i].Path())
		if err := env.libraries[i].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

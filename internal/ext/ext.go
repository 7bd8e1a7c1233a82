// Package ext implements Pico's native-extension discovery (§4.5).
//
// A library directory holds compiled Go plugins (.so files built with
// `go build -buildmode=plugin`), each exporting a symbol named
// pico_lib_Init: a function with abi.InitFunc's signature or a variable of
// type abi.InitFunc. plugin.Open/Lookup is the direct Go
// analogue of the dlopen/dlsym pair the original runtime used — see
// DESIGN.md for why this is the one ambient concern this rewrite leaves on
// the standard library rather than a third-party dependency.
package ext

import (
	"fmt"
	"os"
	"path/filepath"
	"plugin"

	"github.com/kristofer/pico/internal/vm"
	"github.com/kristofer/pico/internal/vmerr"
	"github.com/kristofer/pico/pkg/abi"
)

// initSymbol is the required export name (§6.2).
const initSymbol = "pico_lib_Init"

// soExt is the shared-object suffix Go's plugin build mode produces.
const soExt = ".so"

// handle wraps an opened plugin so it satisfies vm.LibraryHandle. Go's
// plugin package exposes no Close — a loaded plugin lives for the process's
// remaining lifetime — so Close here is a bookkeeping no-op that still
// participates in the reverse-order shutdown log §4.6 calls for.
type handle struct {
	path string
}

func (h *handle) Path() string { return h.path }
func (h *handle) Close() error { return nil }

// LoadDir scans dir for *.so files in filename order, opens each, resolves
// pico_lib_Init, and invokes it against env so the library can register its
// natives. A missing directory is treated as "no extensions" rather than an
// error, matching §6.3's "both default to local conventional paths if
// absent" — an empty or absent library directory is a normal, extension-
// free run. A present-but-broken library (bad symbol, wrong type) is fatal
// per §4.5.
func LoadDir(env *vm.Environment, dir string) error {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return &vmerr.LinkError{Msg: fmt.Sprintf("reading extension directory %q: %v", dir, err)}
	}

	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != soExt {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if err := loadOne(env, path); err != nil {
			return err
		}
	}
	return nil
}

func loadOne(env *vm.Environment, path string) error {
	p, err := plugin.Open(path)
	if err != nil {
		return &vmerr.LinkError{Msg: fmt.Sprintf("opening extension %q: %v", path, err)}
	}

	sym, err := p.Lookup(initSymbol)
	if err != nil {
		return &vmerr.LinkError{Msg: fmt.Sprintf("extension %q does not export %s", path, initSymbol)}
	}
	// An exported function arrives as an unnamed func type, an exported
	// variable as a pointer to it; neither matches abi.InitFunc directly.
	var initFn abi.InitFunc
	switch f := sym.(type) {
	case func(abi.Environment):
		initFn = f
	case *abi.InitFunc:
		initFn = *f
	}
	if initFn == nil {
		return &vmerr.LinkError{Msg: fmt.Sprintf("extension %q exports %s with the wrong signature", path, initSymbol)}
	}

	env.Log("loading extension %s", path)
	initFn(env)
	env.AddLibrary(&handle{path: path})
	return nil
}

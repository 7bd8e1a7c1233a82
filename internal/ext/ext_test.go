package ext

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kristofer/pico/internal/loader"
	"github.com/kristofer/pico/internal/vm"
)

// A missing or empty library directory is a normal, extension-free run
// (§6.3: "both default to local conventional paths if absent"), not a
// LinkError.
func TestLoadDirToleratesMissingDirectory(t *testing.T) {
	unit := &loader.BytecodeUnit{Functions: []*loader.Function{{Index: 0, Code: []byte{0x66}}}}
	env := vm.NewEnvironment(unit, 0)

	err := LoadDir(env, "/nonexistent/library/dir")
	assert.NoError(t, err)
}

func TestLoadDirToleratesEmptyDirectory(t *testing.T) {
	unit := &loader.BytecodeUnit{Functions: []*loader.Function{{Index: 0, Code: []byte{0x66}}}}
	env := vm.NewEnvironment(unit, 0)

	err := LoadDir(env, t.TempDir())
	assert.NoError(t, err)
}

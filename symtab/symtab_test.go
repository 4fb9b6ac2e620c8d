package symtab

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DataDog/reload-manager/internal/testutil"
)

func TestDemangle(t *testing.T) {
	tests := []struct {
		raw      string
		pkg      string
		symbol   string
		exported bool
	}{
		{"main.CreateCapsule", "main", "CreateCapsule", true},
		{"github.com/DataDog/reload-manager/examples/counter/v1.RunCapsule", "github.com/DataDog/reload-manager/examples/counter/v1", "RunCapsule", true},
		{"unit-1700000000.ABIVersion", "unit-1700000000", "ABIVersion", true},
		{"gopkg.in/yaml%2ev3.Marshal", "gopkg.in/yaml.v3", "Marshal", true},
		{"github.com/DataDog/reload-manager/abi.Exports.Reconcile", "github.com/DataDog/reload-manager/abi", "Exports.Reconcile", false},
		{"github.com/DataDog/reload-manager/capsule.(*Capsule).Reconcile", "github.com/DataDog/reload-manager/capsule", "(*Capsule).Reconcile", false},
		{"main.CreateCapsule.func1", "main", "CreateCapsule.func1", false},
		{"main.newCapsule", "main", "newCapsule", false},
		{"github.com/DataDog/reload-manager/capsule.Resource[go.shape.*uint8]", "github.com/DataDog/reload-manager/capsule", "Resource[go.shape.*uint8]", false},
		{"go:itab.*os.File,io.Reader", "", "go:itab.*os.File,io.Reader", false},
		{"type:*main.T", "", "type:*main.T", false},
		{"local.github.com/DataDog/reload-manager/examples/counter/v1.CreateCapsule", "", "local.github.com/DataDog/reload-manager/examples/counter/v1.CreateCapsule", false},
		{"_cgo_init", "", "_cgo_init", false},
		{"__bss_start", "", "__bss_start", false},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			name := Demangle(tt.raw)
			assert.Equal(t, tt.pkg, name.Package)
			assert.Equal(t, tt.symbol, name.Symbol)

			ident, ok := name.Exported()
			assert.Equal(t, tt.exported, ok)
			if ok {
				assert.Equal(t, tt.symbol, ident)
			}
		})
	}
}

func TestNameString(t *testing.T) {
	assert.Equal(t, "main.RunCapsule", Demangle("main.RunCapsule").String())
	assert.Equal(t, "go:buildid", Demangle("go:buildid").String())
}

func TestMachOUnderscore(t *testing.T) {
	sym := Symbol{Name: "_main.RunCapsule", Format: FormatMachO}
	assert.Equal(t, Name{Package: "main", Symbol: "RunCapsule"}, sym.Demangle())

	sym.Format = FormatELF
	assert.Equal(t, "_main", sym.Demangle().Package)
}

func TestParseUnknownFormat(t *testing.T) {
	_, err := Parse(nil)
	assert.ErrorIs(t, err, ErrUnknownFormat)

	_, err = Parse([]byte("#!/bin/sh\necho hello\n"))
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestDedupe(t *testing.T) {
	syms := dedupe([]Symbol{
		{Name: "b", Dynamic: true},
		{Name: "a"},
		{Name: "b"},
		{Name: "a", Dynamic: true},
	})
	require.Len(t, syms, 2)
	assert.Equal(t, Symbol{Name: "a"}, syms[0])
	assert.Equal(t, Symbol{Name: "b"}, syms[1])
}

func TestOpen(t *testing.T) {
	path := testutil.BuildPlugin(t, t.TempDir(), testutil.CounterV1)

	syms, err := Open(path)
	require.NoError(t, err)

	const pkg = "github.com/DataDog/reload-manager/examples/counter/v1"
	var found *Symbol
	for i, sym := range syms {
		name := sym.Demangle()
		if strings.HasPrefix(sym.Name, "local.") {
			_, exported := name.Exported()
			assert.False(t, exported, "linker alias %s", sym.Name)
		}
		if name.Package == pkg && name.Symbol == "CreateCapsule" {
			found = &syms[i]
		}
	}
	require.NotNil(t, found, "the plugin defines its entry points")
	assert.Equal(t, KindFunc, found.Kind)
	assert.NotZero(t, found.Value)

	_, err = Open(path + ".missing")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

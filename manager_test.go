package manager

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"plugin"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DataDog/reload-manager/abi"
	"github.com/DataDog/reload-manager/capsule"
	"github.com/DataDog/reload-manager/symtab"
)

// fakeLibrary - Library resolving identifiers from a map
type fakeLibrary map[string]plugin.Symbol

func (l fakeLibrary) Lookup(name string) (plugin.Symbol, error) {
	if value, ok := l[name]; ok {
		return value, nil
	}
	return nil, fmt.Errorf("plugin: symbol %s not found in plugin fake", name)
}

var entryIdents = []string{
	"CreateCapsule",
	"GetChangeFlag",
	"SetChangeFlag",
	"RunCapsule",
	"ExitCode",
	"ExitIntoCapsule",
	"Reconcile",
	"ABIVersion",
}

// exportsLibrary - Library exporting the entry points of e, the way a unit re-exports them
func exportsLibrary(e abi.Exports) fakeLibrary {
	return fakeLibrary{
		"CreateCapsule":   e.CreateCapsule,
		"GetChangeFlag":   e.GetChangeFlag,
		"SetChangeFlag":   e.SetChangeFlag,
		"RunCapsule":      e.RunCapsule,
		"ExitCode":        e.ExitCode,
		"ExitIntoCapsule": e.ExitIntoCapsule,
		"Reconcile":       e.Reconcile,
		"ABIVersion":      e.ABIVersion,
	}
}

// unitSymbols - Symbol table of a unit whose main package pkg defines the provided functions, plus the symbols
// every unit links from the shared packages
func unitSymbols(pkg string, idents ...string) []symtab.Symbol {
	syms := []symtab.Symbol{
		{Name: "github.com/DataDog/reload-manager/abi.Exports.CreateCapsule", Kind: symtab.KindFunc, Format: symtab.FormatELF},
		{Name: "github.com/DataDog/reload-manager/abi.Exports.Reconcile", Kind: symtab.KindFunc, Format: symtab.FormatELF},
		{Name: "github.com/DataDog/reload-manager/capsule.(*Capsule).Reconcile", Kind: symtab.KindFunc, Format: symtab.FormatELF},
		{Name: "go:buildid", Kind: symtab.KindData, Format: symtab.FormatELF},
	}
	for _, ident := range idents {
		syms = append(syms, symtab.Symbol{Name: pkg + "." + ident, Kind: symtab.KindFunc, Global: true, Format: symtab.FormatELF})
	}
	return syms
}

func staticSymbols(syms []symtab.Symbol) SymbolsFunc {
	return func([]byte) ([]symtab.Symbol, error) {
		return syms, nil
	}
}

// sequenceOpener - Opens the provided libraries in order, one per load
func sequenceOpener(libs ...Library) OpenFunc {
	var (
		lock  sync.Mutex
		calls int
	)
	return func(path string) (Library, error) {
		lock.Lock()
		defer lock.Unlock()
		if calls >= len(libs) {
			return nil, fmt.Errorf("unexpected load #%d of %s", calls+1, path)
		}
		calls++
		return libs[calls-1], nil
	}
}

// contentOpener - Opens the library matching the content of the staged artifact
func contentOpener(libs map[string]Library) OpenFunc {
	return func(path string) (Library, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		lib, ok := libs[string(data)]
		if !ok {
			return nil, fmt.Errorf("invalid plugin %q", data)
		}
		return lib, nil
	}
}

func writeArtifact(path, content string, modTime time.Time) error {
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return err
	}
	return os.Chtimes(path, modTime, modTime)
}

func quietLogger() logrus.FieldLogger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// testArtifact - Writes a v1 artifact, modified an hour ago, and returns its path and modification time
func testArtifact(t *testing.T) (string, time.Time) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "unit.so")
	modTime := time.Now().Add(-time.Hour).Truncate(time.Second)
	require.NoError(t, writeArtifact(path, "v1", modTime))
	return path, modTime
}

func testOptions(t *testing.T, path string, open OpenFunc) Options {
	t.Helper()
	return Options{
		ArtifactPath: path,
		CacheDir:     t.TempDir(),
		PollInterval: 5 * time.Millisecond,
		Open:         open,
		Symbols:      staticSymbols(unitSymbols("unit", entryIdents...)),
		Registry:     &Registry{},
		Logger:       quietLogger(),
	}
}

func counterResource(ctx *capsule.Context) (*int, error) {
	return capsule.Resource[*int](ctx.World, "counter")
}

// exitingUnit - Unit whose capsule ends its first tick with exit
func exitingUnit(exit capsule.Exit) abi.Exports {
	return abi.Exports{New: func() (*capsule.Capsule, error) {
		return capsule.New().AddSystem(capsule.Update, "exit", func(ctx *capsule.Context) error {
			ctx.Exit(exit)
			return nil
		}), nil
	}}
}

// selfReloadingUnit - Unit whose capsule raises its own change flag on its first tick
func selfReloadingUnit() abi.Exports {
	return abi.Exports{New: func() (*capsule.Capsule, error) {
		c := capsule.New()
		c.World().Insert("counter", new(int))
		c.AddSystem(capsule.Update, "request_reload", func(ctx *capsule.Context) error {
			flag, err := capsule.Resource[*capsule.ChangeFlag](ctx.World, capsule.ChangeFlagResource)
			if err != nil {
				return err
			}
			flag.Set()
			return nil
		})
		return c, nil
	}}
}

func TestRunSuccess(t *testing.T) {
	path, _ := testArtifact(t)
	var m Manager
	require.NoError(t, m.InitWithOptions(testOptions(t, path, sequenceOpener(exportsLibrary(exitingUnit(capsule.Success()))))))
	assert.Equal(t, "initialized", m.State())
	assert.Equal(t, uint64(1), m.Generation())

	code, err := m.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Equal(t, "exiting", m.State())
	assert.Equal(t, uint64(0), m.Reloads())

	_, err = m.Run(context.Background())
	assert.ErrorIs(t, err, ErrManagerRunning)
}

func TestRunFailureCode(t *testing.T) {
	for _, want := range []uint8{1, FatalExitCode, 42, 255} {
		t.Run(fmt.Sprint(want), func(t *testing.T) {
			path, _ := testArtifact(t)
			var m Manager
			require.NoError(t, m.InitWithOptions(testOptions(t, path, sequenceOpener(exportsLibrary(exitingUnit(capsule.Failure(want)))))))

			code, err := m.Run(context.Background())
			require.NoError(t, err)
			assert.Equal(t, int(want), code)
		})
	}
}

func TestRunBeforeInit(t *testing.T) {
	var m Manager
	code, err := m.Run(context.Background())
	assert.ErrorIs(t, err, ErrManagerNotInitialized)
	assert.Equal(t, FatalExitCode, code)
	assert.Equal(t, uint64(0), m.Generation())
	assert.Nil(t, m.Registry())
}

func TestInitErrors(t *testing.T) {
	var m Manager
	assert.ErrorIs(t, m.InitWithOptions(Options{}), ErrNoArtifactPath)

	path := filepath.Join(t.TempDir(), "missing.so")
	err := m.InitWithOptions(testOptions(t, path, sequenceOpener()))
	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, path, loadErr.Path)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Equal(t, "reset", m.State())
}

func TestInitMissingEntryPoint(t *testing.T) {
	path, _ := testArtifact(t)
	options := testOptions(t, path, sequenceOpener(exportsLibrary(exitingUnit(capsule.Success()))))
	options.Symbols = staticSymbols(unitSymbols("unit", entryIdents[:6]...))

	var m Manager
	err := m.InitWithOptions(options)
	assert.ErrorIs(t, err, ErrSymbolNotFound)

	var resolutionErr *SymbolResolutionError
	require.ErrorAs(t, err, &resolutionErr)
	assert.Equal(t, ReconcileEntry, resolutionErr.Name)
	assert.Equal(t, uint64(1), resolutionErr.Generation)
	assert.Equal(t, 1, options.Registry.Len(), "a mapped unit is retained even when it cannot be bound")
}

func TestInitABIVersionMismatch(t *testing.T) {
	path, _ := testArtifact(t)
	lib := exportsLibrary(exitingUnit(capsule.Success()))
	lib["ABIVersion"] = func() string { return "reload-manager.abi/v0" }

	var m Manager
	err := m.InitWithOptions(testOptions(t, path, sequenceOpener(lib)))
	assert.ErrorIs(t, err, ErrABIVersionMismatch)
	var loadErr *LoadError
	assert.ErrorAs(t, err, &loadErr)
}

func TestReloadKeepsState(t *testing.T) {
	path, modTime := testArtifact(t)
	reached := make(chan struct{})

	v1 := abi.Exports{New: func() (*capsule.Capsule, error) {
		c := capsule.New()
		c.World().Insert("counter", new(int))
		c.AddSystem(capsule.Update, "count_to_five", func(ctx *capsule.Context) error {
			n, err := counterResource(ctx)
			if err != nil {
				return err
			}
			if *n < 5 {
				*n++
				if *n == 5 {
					close(reached)
				}
			}
			if ctx.Tick > 5000 {
				return &capsule.ExitError{Code: 99, Err: errors.New("no reload requested")}
			}
			return nil
		}).SetDriver(capsule.RunLoop(time.Millisecond))
		return c, nil
	}}
	v2 := abi.Exports{New: func() (*capsule.Capsule, error) {
		c := capsule.New()
		c.World().Insert("counter", new(int))
		c.AddSystem(capsule.Update, "count_and_report", func(ctx *capsule.Context) error {
			n, err := counterResource(ctx)
			if err != nil {
				return err
			}
			*n++
			ctx.Exit(capsule.Failure(uint8(*n)))
			return nil
		})
		return c, nil
	}}

	// the build tool replaces the artifact once v1 counted to 5
	go func() {
		<-reached
		tmp := path + ".tmp"
		if assert.NoError(t, writeArtifact(tmp, "v2", modTime.Add(time.Hour))) {
			assert.NoError(t, os.Rename(tmp, path))
		}
	}()

	var reloaded []uint64
	options := testOptions(t, path, contentOpener(map[string]Library{
		"v1": exportsLibrary(v1),
		"v2": exportsLibrary(v2),
	}))
	options.OnReload = func(generation uint64) {
		reloaded = append(reloaded, generation)
	}

	var m Manager
	require.NoError(t, m.InitWithOptions(options))
	code, err := m.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 6, code, "v2 resumed counting from 5")
	assert.Equal(t, uint64(1), m.Reloads())
	assert.Equal(t, uint64(2), m.Generation())
	assert.Equal(t, []uint64{2}, reloaded)

	units := m.Registry().Units()
	require.Len(t, units, 2)
	assert.NotEqual(t, units[0].StagedPath, units[1].StagedPath)
	assert.True(t, units[1].Artifact.ModTime.After(units[0].Artifact.ModTime))
}

func TestReconciliationFailureIsFatal(t *testing.T) {
	path, _ := testArtifact(t)
	broken := abi.Exports{New: func() (*capsule.Capsule, error) {
		return capsule.New().SetDriver(nil), nil
	}}

	var m Manager
	require.NoError(t, m.InitWithOptions(testOptions(t, path, sequenceOpener(
		exportsLibrary(selfReloadingUnit()),
		exportsLibrary(broken),
	))))
	code, err := m.Run(context.Background())
	assert.Equal(t, FatalExitCode, code)

	var reconcileErr *ReconciliationError
	require.ErrorAs(t, err, &reconcileErr)
	assert.Equal(t, uint64(2), reconcileErr.Generation)
	assert.ErrorIs(t, err, capsule.ErrMissingDriver)
	assert.Equal(t, uint64(0), m.Reloads())
}

func TestReloadFailureIsFatal(t *testing.T) {
	path, _ := testArtifact(t)

	var m Manager
	require.NoError(t, m.InitWithOptions(testOptions(t, path, sequenceOpener(exportsLibrary(selfReloadingUnit())))))
	code, err := m.Run(context.Background())
	assert.Equal(t, FatalExitCode, code)
	var loadErr *LoadError
	assert.ErrorAs(t, err, &loadErr, "the second generation cannot be opened")
}

func TestOutOfRangeExitCode(t *testing.T) {
	path, _ := testArtifact(t)
	lib := exportsLibrary(exitingUnit(capsule.Success()))
	lib["ExitCode"] = func(abi.ExitHandle) (int, error) { return -5, nil }

	var m Manager
	require.NoError(t, m.InitWithOptions(testOptions(t, path, sequenceOpener(lib))))
	code, err := m.Run(context.Background())
	assert.Equal(t, FatalExitCode, code)
	assert.ErrorIs(t, err, abi.ErrContractViolation)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "reloading", reloading.String())
	assert.Equal(t, "unknown", state(42).String())
}

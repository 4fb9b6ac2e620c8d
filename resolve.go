package manager

import (
	"fmt"
	"plugin"
	"sort"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/DataDog/reload-manager/abi"
	"github.com/DataDog/reload-manager/symtab"
)

// Logical names of the entry points exported by every unit
const (
	CreateCapsuleEntry   = "create_capsule"
	GetChangeFlagEntry   = "get_change_flag"
	SetChangeFlagEntry   = "set_change_flag"
	RunCapsuleEntry      = "run_capsule"
	ExitCodeEntry        = "exit_code"
	ExitIntoCapsuleEntry = "exit_into_capsule"
	ReconcileEntry       = "reconcile"
	ABIVersionEntry      = "abi_version"
)

// EntryPointNames - Logical names of the entry points, in binding order
var EntryPointNames = []string{
	CreateCapsuleEntry,
	GetChangeFlagEntry,
	SetChangeFlagEntry,
	RunCapsuleEntry,
	ExitCodeEntry,
	ExitIntoCapsuleEntry,
	ReconcileEntry,
	ABIVersionEntry,
}

// EntryPoint - Resolved entry point
type EntryPoint struct {
	LogicalName string
	// Symbol - Demangled name of the matched symbol
	Symbol symtab.Name
	// Ident - Go identifier the symbol was looked up with
	Ident string
	// Value - Function returned by the library
	Value plugin.Symbol
}

// LoadedUnit - Generation of a unit mapped into the process
type LoadedUnit struct {
	// Generation - Load generation, assigned by the registry
	Generation uint64
	Artifact   Artifact
	// StagedPath - Private copy of the artifact the unit was opened from
	StagedPath string

	library  Library
	symbols  []symtab.Symbol
	lock     sync.Mutex
	resolved map[string]EntryPoint
}

// Symbols - Returns the symbols defined by the unit
func (u *LoadedUnit) Symbols() []symtab.Symbol {
	out := make([]symtab.Symbol, len(u.symbols))
	copy(out, u.symbols)
	return out
}

// Candidates - Returns the sorted names of the exported functions of symbols whose logical name is logical
func Candidates(symbols []symtab.Symbol, logical string) []symtab.Name {
	seen := make(map[string]bool)
	var out []symtab.Name
	for _, sym := range symbols {
		if sym.Kind != symtab.KindFunc {
			continue
		}
		name := sym.Demangle()
		ident, ok := name.Exported()
		if !ok || LogicalName(ident) != logical || seen[name.String()] {
			continue
		}
		seen[name.String()] = true
		out = append(out, name)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].String() < out[j].String()
	})
	return out
}

// Resolve - Returns the entry point of the unit matching the logical name. Exactly one exported function must
// match. Resolutions are cached: resolving a name twice returns the same function.
func (u *LoadedUnit) Resolve(logical string) (EntryPoint, error) {
	u.lock.Lock()
	defer u.lock.Unlock()
	if entry, ok := u.resolved[logical]; ok {
		return entry, nil
	}
	if u.resolved == nil {
		u.resolved = make(map[string]EntryPoint)
	}

	candidates := Candidates(u.symbols, logical)
	switch len(candidates) {
	case 0:
		return EntryPoint{}, &SymbolResolutionError{Name: logical, Generation: u.Generation, Err: ErrSymbolNotFound}
	case 1:
	default:
		names := make([]string, 0, len(candidates))
		for _, candidate := range candidates {
			names = append(names, candidate.String())
		}
		return EntryPoint{}, &SymbolResolutionError{Name: logical, Generation: u.Generation, Candidates: names, Err: ErrSymbolAmbiguous}
	}

	ident, _ := candidates[0].Exported()
	value, err := u.library.Lookup(ident)
	if err != nil {
		return EntryPoint{}, &SymbolResolutionError{
			Name:       logical,
			Generation: u.Generation,
			Err:        fmt.Errorf("%w: couldn't lookup %s: %v", ErrSymbolNotFound, candidates[0], err),
		}
	}

	entry := EntryPoint{
		LogicalName: logical,
		Symbol:      candidates[0],
		Ident:       ident,
		Value:       value,
	}
	u.resolved[logical] = entry
	return entry, nil
}

// EntryPoints - Typed entry points of a unit, see the abi package for their contract
type EntryPoints struct {
	CreateCapsule   func() (abi.CapsuleHandle, error)
	GetChangeFlag   func(abi.CapsuleHandle) (abi.FlagHandle, error)
	SetChangeFlag   func(abi.FlagHandle) error
	RunCapsule      func(abi.CapsuleHandle) (abi.ExitHandle, error)
	ExitCode        func(abi.ExitHandle) (int, error)
	ExitIntoCapsule func(abi.ExitHandle) (abi.CapsuleHandle, error)
	Reconcile       func(abi.CapsuleHandle, abi.CapsuleHandle) (abi.CapsuleHandle, error)
	ABIVersion      func() string
}

// Bind - Resolves every entry point, checks its signature, and checks the ABI version reported by the unit. All the
// resolution failures are reported at once.
func (u *LoadedUnit) Bind() (*EntryPoints, error) {
	var (
		entries EntryPoints
		result  *multierror.Error
	)
	result = multierror.Append(result,
		bindEntry(u, CreateCapsuleEntry, &entries.CreateCapsule),
		bindEntry(u, GetChangeFlagEntry, &entries.GetChangeFlag),
		bindEntry(u, SetChangeFlagEntry, &entries.SetChangeFlag),
		bindEntry(u, RunCapsuleEntry, &entries.RunCapsule),
		bindEntry(u, ExitCodeEntry, &entries.ExitCode),
		bindEntry(u, ExitIntoCapsuleEntry, &entries.ExitIntoCapsule),
		bindEntry(u, ReconcileEntry, &entries.Reconcile),
		bindEntry(u, ABIVersionEntry, &entries.ABIVersion),
	)
	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}

	if version := entries.ABIVersion(); version != abi.Version {
		return nil, &LoadError{
			Path: u.Artifact.Path,
			Err:  fmt.Errorf("%w: unit reports %q, host expects %q", ErrABIVersionMismatch, version, abi.Version),
		}
	}
	return &entries, nil
}

// bindEntry - Resolves the logical name and stores the function in target if it has the signature F
func bindEntry[F any](u *LoadedUnit, logical string, target *F) error {
	entry, err := u.Resolve(logical)
	if err != nil {
		return err
	}
	fn, ok := entry.Value.(F)
	if !ok {
		return &SymbolResolutionError{
			Name:       logical,
			Generation: u.Generation,
			Err:        fmt.Errorf("%w: %s is %T, expected %T", ErrSignatureMismatch, entry.Symbol, entry.Value, *target),
		}
	}
	*target = fn
	return nil
}

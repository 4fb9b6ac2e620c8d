package manager

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrManagerNotInitialized - Init must be called first
	ErrManagerNotInitialized = errors.New("the manager must be initialized first")
	// ErrManagerRunning - The manager is already running
	ErrManagerRunning = errors.New("the manager is already running")
	// ErrNoArtifactPath - No artifact path was provided
	ErrNoArtifactPath = errors.New("no artifact path provided")
	// ErrSymbolNotFound - No exported function matches the requested entry point
	ErrSymbolNotFound = errors.New("symbol not found")
	// ErrSymbolAmbiguous - More than one exported function matches the requested entry point
	ErrSymbolAmbiguous = errors.New("symbol is ambiguous")
	// ErrSignatureMismatch - The resolved entry point does not have the expected Go signature
	ErrSignatureMismatch = errors.New("entry point signature mismatch")
	// ErrABIVersionMismatch - The unit was built against another version of the abi package
	ErrABIVersionMismatch = errors.New("abi version mismatch")
)

// LoadError - The artifact could not be loaded: it is missing, unreadable, not a valid unit for the platform, or
// incompatible with the host
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("couldn't load %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// SymbolResolutionError - An entry point is missing, ambiguous, or has the wrong signature
type SymbolResolutionError struct {
	// Name - Logical name of the entry point
	Name       string
	Generation uint64
	// Candidates - Sorted names of the symbols matching Name, for ambiguous resolutions
	Candidates []string
	Err        error
}

func (e *SymbolResolutionError) Error() string {
	msg := fmt.Sprintf("couldn't resolve %s in generation %d: %v", e.Name, e.Generation, e.Err)
	if len(e.Candidates) > 0 {
		msg += " (candidates: " + strings.Join(e.Candidates, ", ") + ")"
	}
	return msg
}

func (e *SymbolResolutionError) Unwrap() error {
	return e.Err
}

// ReconciliationError - The paused capsule could not be merged with the capsule of the next generation. The
// previous state is lost.
type ReconciliationError struct {
	Generation uint64
	Err        error
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("couldn't reconcile capsule with generation %d: %v", e.Generation, e.Err)
}

func (e *ReconciliationError) Unwrap() error {
	return e.Err
}

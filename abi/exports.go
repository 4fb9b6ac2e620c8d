package abi

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/DataDog/reload-manager/capsule"
)

// ErrNoConstructor - Exports.New is nil
var ErrNoConstructor = errors.New("no capsule constructor")

// Exports - Implementation of the unit entry points on top of the capsule package. A unit declares one, with
// its own constructor, and re-exports its methods as package-level functions:
//
//	var exports = abi.Exports{New: newCapsule}
//
//	func CreateCapsule() (abi.CapsuleHandle, error) { return exports.CreateCapsule() }
//
// The entry points are methods so that this package never exports a function the manager could mistake for
// the entry point of a unit.
type Exports struct {
	// New - Builds the capsule returned by CreateCapsule. The capsule should come from capsule.New, which installs
	// the change flag and the reload detection system.
	New func() (*capsule.Capsule, error)
}

// CreateCapsule - Builds a new capsule and returns its handle
func (e Exports) CreateCapsule() (CapsuleHandle, error) {
	if e.New == nil {
		return CapsuleHandle{}, ErrNoConstructor
	}
	c, err := e.New()
	if err != nil {
		return CapsuleHandle{}, fmt.Errorf("couldn't create capsule: %w", err)
	}
	if c == nil {
		return CapsuleHandle{}, fmt.Errorf("couldn't create capsule: %w", capsule.ErrNilCapsule)
	}
	return CapsuleHandle{id: capsules.put(c)}, nil
}

// GetChangeFlag - Borrows the capsule, lowers its change flag and returns a handle to it. The capsule must not be
// running.
func (Exports) GetChangeFlag(h CapsuleHandle) (FlagHandle, error) {
	c, err := capsules.borrow(h.id)
	if err != nil {
		return FlagHandle{}, err
	}
	flag, err := c.ChangeFlag()
	if err != nil {
		return FlagHandle{}, err
	}
	flag.Reset()
	return FlagHandle{id: flags.put(flag)}, nil
}

// SetChangeFlag - Consumes the flag handle and raises the flag
func (Exports) SetChangeFlag(h FlagHandle) error {
	flag, err := flags.take(h.id)
	if err != nil {
		return err
	}
	flag.Set()
	return nil
}

// RunCapsule - Consumes the capsule handle and blocks until the capsule exits
func (Exports) RunCapsule(h CapsuleHandle) (ExitHandle, error) {
	c, err := capsules.take(h.id)
	if err != nil {
		return ExitHandle{}, err
	}
	return ExitHandle{id: exits.put(capsule.Run(c))}, nil
}

// ExitCode - Returns 0 for a success, the failure code for a failure, and ReloadSentinel for a reload request.
// The signal is left in place.
func (Exports) ExitCode(h ExitHandle) (int, error) {
	sig, err := exits.borrow(h.id)
	if err != nil {
		return 0, err
	}
	exit := sig.Exit()
	switch exit.Kind {
	case capsule.ExitSuccess:
		return 0, nil
	case capsule.ExitFailure:
		return int(exit.Code), nil
	case capsule.ExitReload:
		return ReloadSentinel, nil
	default:
		return 0, fmt.Errorf("%w: unknown exit kind %s", ErrContractViolation, exit.Kind)
	}
}

// ExitIntoCapsule - Consumes the signal and returns a handle to the paused capsule it carries. Calling it on a
// success or failure signal is a contract violation.
func (Exports) ExitIntoCapsule(h ExitHandle) (CapsuleHandle, error) {
	sig, err := exits.take(h.id)
	if err != nil {
		return CapsuleHandle{}, err
	}
	c, err := sig.IntoCapsule()
	if err != nil {
		return CapsuleHandle{}, fmt.Errorf("%w: %w", ErrContractViolation, err)
	}
	return CapsuleHandle{id: capsules.put(c)}, nil
}

// Reconcile - Consumes both capsule handles and returns a handle to the merged capsule, see capsule.Capsule.Reconcile
func (Exports) Reconcile(prev, next CapsuleHandle) (CapsuleHandle, error) {
	if prev == next {
		return CapsuleHandle{}, fmt.Errorf("%w: cannot reconcile %s with itself", ErrContractViolation, prev)
	}
	oldCapsule, oldErr := capsules.take(prev.id)
	newCapsule, newErr := capsules.take(next.id)
	if err := multierror.Append(oldErr, newErr).ErrorOrNil(); err != nil {
		return CapsuleHandle{}, err
	}
	merged, err := oldCapsule.Reconcile(newCapsule)
	if err != nil {
		return CapsuleHandle{}, err
	}
	return CapsuleHandle{id: capsules.put(merged)}, nil
}

// ABIVersion - Returns Version
func (Exports) ABIVersion() string {
	return Version
}

// Package abi defines the contract between the reload manager and the units it loads.
//
// Capsules, change flags and exit signals never cross the boundary as values: the manager only holds typed
// opaque handles. Each handle kind has its own type, so a flag handle cannot be passed where a capsule handle
// is expected, while the representation behind a handle stays private to the unit.
//
// Every unit exports the following functions from its main package. Exports implements all of them.
//
//	func CreateCapsule() (abi.CapsuleHandle, error)
//	func GetChangeFlag(abi.CapsuleHandle) (abi.FlagHandle, error)
//	func SetChangeFlag(abi.FlagHandle) error
//	func RunCapsule(abi.CapsuleHandle) (abi.ExitHandle, error)
//	func ExitCode(abi.ExitHandle) (int, error)
//	func ExitIntoCapsule(abi.ExitHandle) (abi.CapsuleHandle, error)
//	func Reconcile(old, new abi.CapsuleHandle) (abi.CapsuleHandle, error)
//	func ABIVersion() string
package abi

import (
	"errors"
	"fmt"
)

// Version - ABI tag returned by ABIVersion. The manager refuses units reporting another tag.
const Version = "reload-manager.abi/v1"

// ReloadSentinel - Exit code reported by ExitCode for a reload request. It never leaves the host process.
const ReloadSentinel = -1

var (
	// ErrContractViolation - An entry point was called in a way its contract forbids
	ErrContractViolation = errors.New("abi contract violation")
	// ErrInvalidHandle - The handle is zero, unknown, or was already consumed
	ErrInvalidHandle = fmt.Errorf("%w: invalid handle", ErrContractViolation)
)

// CapsuleHandle - Opaque token of a capsule
type CapsuleHandle struct {
	id uint64
}

// IsZero - Returns true for the zero handle, which never denotes a capsule
func (h CapsuleHandle) IsZero() bool {
	return h.id == 0
}

func (h CapsuleHandle) String() string {
	return fmt.Sprintf("capsule#%d", h.id)
}

// FlagHandle - Opaque token of a change flag
type FlagHandle struct {
	id uint64
}

// IsZero - Returns true for the zero handle, which never denotes a flag
func (h FlagHandle) IsZero() bool {
	return h.id == 0
}

func (h FlagHandle) String() string {
	return fmt.Sprintf("flag#%d", h.id)
}

// ExitHandle - Opaque token of an exit signal
type ExitHandle struct {
	id uint64
}

// IsZero - Returns true for the zero handle, which never denotes an exit signal
func (h ExitHandle) IsZero() bool {
	return h.id == 0
}

func (h ExitHandle) String() string {
	return fmt.Sprintf("exit#%d", h.id)
}

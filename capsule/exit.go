package capsule

import (
	"errors"
	"fmt"
)

// ExitKind - Outcome of a run
type ExitKind uint8

const (
	// ExitSuccess - the capsule completed normally
	ExitSuccess ExitKind = iota
	// ExitFailure - the capsule hit a fatal internal failure
	ExitFailure
	// ExitReload - the capsule paused because its code changed on disk
	ExitReload
)

func (k ExitKind) String() string {
	switch k {
	case ExitSuccess:
		return "success"
	case ExitFailure:
		return "failure"
	case ExitReload:
		return "reload"
	default:
		return fmt.Sprintf("exit(%d)", uint8(k))
	}
}

// Exit - Exit event sent by a system, or returned by a driver
type Exit struct {
	Kind ExitKind
	// Code - Failure code, in 1..255. Always 0 for the other kinds.
	Code uint8
}

// Success - Returns a success exit
func Success() Exit {
	return Exit{Kind: ExitSuccess}
}

// Failure - Returns a failure exit. A 0 code is turned into 1.
func Failure(code uint8) Exit {
	if code == 0 {
		code = 1
	}
	return Exit{Kind: ExitFailure, Code: code}
}

// Reload - Returns a reload request
func Reload() Exit {
	return Exit{Kind: ExitReload}
}

func (e Exit) String() string {
	if e.Kind == ExitFailure {
		return fmt.Sprintf("failure(%d)", e.Code)
	}
	return e.Kind.String()
}

// ExitError - Error returned by a system to end the run with a specific failure code
type ExitError struct {
	Code uint8
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit code %d", e.Code)
	}
	return fmt.Sprintf("exit code %d: %v", e.Code, e.Err)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// exitFromError - Returns the failure exit matching a system error
func exitFromError(err error) Exit {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return Failure(exitErr.Code)
	}
	return Failure(1)
}

// exitEvents - Pending exit events of a capsule. Events stay queued until a reconciliation clears them.
type exitEvents struct {
	queue []Exit
}

func (q *exitEvents) send(e Exit) {
	q.queue = append(q.queue, e)
}

func (q *exitEvents) clear() {
	q.queue = nil
}

func (q *exitEvents) len() int {
	return len(q.queue)
}

// pending - Returns the exit a run should stop with. A failure wins over a success, which wins over a reload
// request: terminal requests are never postponed by a reload.
func (q *exitEvents) pending() (Exit, bool) {
	var (
		exit  Exit
		found bool
	)
	for _, e := range q.queue {
		switch {
		case e.Kind == ExitFailure:
			return e, true
		case e.Kind == ExitSuccess:
			exit, found = e, true
		case !found:
			exit, found = e, true
		}
	}
	return exit, found
}

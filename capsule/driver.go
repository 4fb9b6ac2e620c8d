package capsule

import (
	"errors"
	"fmt"
	"time"
)

// Driver - Execution driver of a capsule: pumps ticks and decides when the run stops
type Driver func(c *Capsule) Exit

// RunOnce - Runs a single tick. A tick that does not request an exit ends the run successfully.
func RunOnce() Driver {
	return func(c *Capsule) Exit {
		if exit, ok := c.Tick(); ok {
			return exit
		}
		return Success()
	}
}

// RunTicks - Runs at most n ticks, then ends the run successfully
func RunTicks(n uint64) Driver {
	return func(c *Capsule) Exit {
		for i := uint64(0); i < n; i++ {
			if exit, ok := c.Tick(); ok {
				return exit
			}
		}
		return Success()
	}
}

// RunLoop - Runs ticks until one of them requests an exit, waiting so that two ticks start at least wait apart
func RunLoop(wait time.Duration) Driver {
	return func(c *Capsule) Exit {
		for {
			start := time.Now()
			if exit, ok := c.Tick(); ok {
				return exit
			}
			if remaining := wait - time.Since(start); remaining > 0 {
				time.Sleep(remaining)
			}
		}
	}
}

// ErrNotReload - The signal does not carry a paused capsule
var ErrNotReload = errors.New("exit signal is not a reload request")

// Signal - Outcome of a run. A reload signal owns the paused capsule until IntoCapsule hands it over.
type Signal struct {
	exit    Exit
	capsule *Capsule
}

// Exit - Returns the exit the run stopped with
func (s *Signal) Exit() Exit {
	return s.exit
}

// IntoCapsule - Hands over the paused capsule of a reload signal. It fails on success and failure signals, and on
// a reload signal whose capsule was already handed over.
func (s *Signal) IntoCapsule() (*Capsule, error) {
	if s.exit.Kind != ExitReload {
		return nil, fmt.Errorf("%w: %s", ErrNotReload, s.exit)
	}
	if s.capsule == nil {
		return nil, fmt.Errorf("%w: capsule already handed over", ErrNotReload)
	}
	c := s.capsule
	s.capsule = nil
	return c, nil
}

// Run - Drives the capsule until it exits. On a reload request the capsule is paused, with its state intact, and
// carried by the returned signal.
func Run(c *Capsule) *Signal {
	if c.driver == nil {
		return &Signal{exit: Failure(1)}
	}
	exit := c.driver(c)
	if exit.Kind == ExitReload {
		return &Signal{exit: exit, capsule: c}
	}
	return &Signal{exit: exit}
}

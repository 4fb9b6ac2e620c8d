package capsule

import "errors"

var (
	// ErrMissingBehavior - The new capsule has no behavior definition to donate
	ErrMissingBehavior = errors.New("new capsule has no behavior definition")
	// ErrMissingDriver - The new capsule has no execution driver to donate
	ErrMissingDriver = errors.New("new capsule has no execution driver")
)

// Reconcile - Merges the paused capsule c with a capsule freshly built by the next generation of a unit. The
// queued exit events of c are cleared, the behavior and the driver of next replace those of c, and c is
// returned with the rest of its state untouched. next is consumed and must not be used afterwards, even when
// Reconcile fails.
func (c *Capsule) Reconcile(next *Capsule) (*Capsule, error) {
	if c == nil {
		return nil, ErrNilCapsule
	}
	if next == nil || next.behavior == nil {
		return nil, ErrMissingBehavior
	}
	if next.driver == nil {
		return nil, ErrMissingDriver
	}

	c.events.clear()
	c.behavior, next.behavior = next.behavior, nil
	c.driver, next.driver = next.driver, nil
	next.world = nil
	return c, nil
}

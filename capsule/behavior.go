package capsule

import "fmt"

// Stage - Position of a system within a tick
type Stage uint8

const (
	// Startup - Systems run once, on the first tick of a capsule. A reconciled capsule does not run them again.
	Startup Stage = iota
	// Update - Systems run on every tick
	Update
	// Last - Systems run on every tick, after Update
	Last
)

func (s Stage) String() string {
	switch s {
	case Startup:
		return "startup"
	case Update:
		return "update"
	case Last:
		return "last"
	default:
		return fmt.Sprintf("stage(%d)", uint8(s))
	}
}

// SystemFunc - A unit of work run by a capsule on each tick of its stage
type SystemFunc func(ctx *Context) error

// System - A named unit of work
type System struct {
	Name string
	Run  SystemFunc
}

// Behavior - The behavior definition of a capsule: its systems, ordered per stage. A reload replaces the whole
// behavior with the one built by the newly loaded unit.
type Behavior struct {
	systems map[Stage][]System
}

// NewBehavior - Returns a behavior without any system
func NewBehavior() *Behavior {
	return &Behavior{
		systems: make(map[Stage][]System),
	}
}

// Add - Appends a system to the provided stage
func (b *Behavior) Add(stage Stage, name string, fn SystemFunc) *Behavior {
	b.systems[stage] = append(b.systems[stage], System{Name: name, Run: fn})
	return b
}

// Systems - Returns the systems of a stage, in registration order
func (b *Behavior) Systems(stage Stage) []System {
	if b == nil {
		return nil
	}
	return append([]System(nil), b.systems[stage]...)
}

// Has - Returns true if a system with the provided name is registered in the stage
func (b *Behavior) Has(stage Stage, name string) bool {
	if b == nil {
		return false
	}
	for _, system := range b.systems[stage] {
		if system.Name == name {
			return true
		}
	}
	return false
}

// Len - Returns the total number of systems
func (b *Behavior) Len() int {
	if b == nil {
		return 0
	}
	var count int
	for _, systems := range b.systems {
		count += len(systems)
	}
	return count
}

package manager

import "sync"

// Registry - Append-only table of the units loaded in the process. A unit is never removed: its code may still be
// on a call stack, and the capsule it built may still be live. Units are keyed by their load generation, starting
// at 1.
type Registry struct {
	lock  sync.RWMutex
	units []*LoadedUnit
}

// DefaultRegistry - Registry used when no other one is provided
var DefaultRegistry = &Registry{}

// register - Assigns the next generation to unit and retains it for the lifetime of the process
func (r *Registry) register(unit *LoadedUnit) uint64 {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.units = append(r.units, unit)
	unit.Generation = uint64(len(r.units))
	return unit.Generation
}

// Get - Returns the unit of the provided generation
func (r *Registry) Get(generation uint64) (*LoadedUnit, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	if generation == 0 || generation > uint64(len(r.units)) {
		return nil, false
	}
	return r.units[generation-1], true
}

// Latest - Returns the last loaded unit
func (r *Registry) Latest() (*LoadedUnit, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	if len(r.units) == 0 {
		return nil, false
	}
	return r.units[len(r.units)-1], true
}

// Len - Returns the number of units loaded so far
func (r *Registry) Len() int {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return len(r.units)
}

// Units - Returns the loaded units, oldest first
func (r *Registry) Units() []*LoadedUnit {
	r.lock.RLock()
	defer r.lock.RUnlock()
	out := make([]*LoadedUnit, len(r.units))
	copy(out, r.units)
	return out
}

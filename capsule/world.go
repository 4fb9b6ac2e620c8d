package capsule

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrResourceNotFound - No resource is registered under the requested name
	ErrResourceNotFound = errors.New("resource not found")
	// ErrResourceType - The resource exists but holds a value of another type
	ErrResourceType = errors.New("unexpected resource type")
)

// World - Named resources accumulated by a capsule. The world is the part of a capsule that survives a reload,
// so resource values should only use types declared in packages shared with the host: a type declared in the
// main package of a unit is a distinct type in every generation.
type World struct {
	resources map[string]any
}

// NewWorld - Returns an empty world
func NewWorld() *World {
	return &World{
		resources: make(map[string]any),
	}
}

// Insert - Registers value under name, replacing any previous value
func (w *World) Insert(name string, value any) {
	w.resources[name] = value
}

// Get - Returns the value registered under name
func (w *World) Get(name string) (any, bool) {
	value, ok := w.resources[name]
	return value, ok
}

// Has - Returns true if a value is registered under name
func (w *World) Has(name string) bool {
	_, ok := w.resources[name]
	return ok
}

// Remove - Unregisters and returns the value registered under name
func (w *World) Remove(name string) (any, bool) {
	value, ok := w.resources[name]
	if ok {
		delete(w.resources, name)
	}
	return value, ok
}

// Names - Returns the sorted names of the registered resources
func (w *World) Names() []string {
	names := make([]string, 0, len(w.resources))
	for name := range w.resources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len - Returns the number of registered resources
func (w *World) Len() int {
	return len(w.resources)
}

// Resource - Returns the resource registered under name, typed as T
func Resource[T any](w *World, name string) (T, error) {
	var zero T
	value, ok := w.resources[name]
	if !ok {
		return zero, fmt.Errorf("%w: %s", ErrResourceNotFound, name)
	}
	typed, ok := value.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s is %T, not %T", ErrResourceType, name, value, zero)
	}
	return typed, nil
}

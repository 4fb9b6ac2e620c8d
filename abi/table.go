package abi

import (
	"fmt"
	"sync"

	"github.com/DataDog/reload-manager/capsule"
)

// table - Process-wide registry of the values behind one kind of handle. The abi package is shared by the host
// and every loaded unit, so a handle issued by one generation can be redeemed by the next one.
type table[T any] struct {
	lock    sync.Mutex
	kind    string
	next    uint64
	entries map[uint64]T
}

func newTable[T any](kind string) *table[T] {
	return &table[T]{
		kind:    kind,
		entries: make(map[uint64]T),
	}
}

// put - Stores value and returns its handle id. Ids start at 1 and are never reused.
func (t *table[T]) put(value T) uint64 {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.next++
	t.entries[t.next] = value
	return t.next
}

// borrow - Returns the value behind id, leaving it in place
func (t *table[T]) borrow(id uint64) (T, error) {
	t.lock.Lock()
	defer t.lock.Unlock()
	value, ok := t.entries[id]
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s #%d", ErrInvalidHandle, t.kind, id)
	}
	return value, nil
}

// take - Removes and returns the value behind id. The handle is consumed.
func (t *table[T]) take(id uint64) (T, error) {
	t.lock.Lock()
	defer t.lock.Unlock()
	value, ok := t.entries[id]
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s #%d", ErrInvalidHandle, t.kind, id)
	}
	delete(t.entries, id)
	return value, nil
}

func (t *table[T]) len() int {
	t.lock.Lock()
	defer t.lock.Unlock()
	return len(t.entries)
}

var (
	capsules = newTable[*capsule.Capsule]("capsule")
	flags    = newTable[*capsule.ChangeFlag]("change flag")
	exits    = newTable[*capsule.Signal]("exit signal")
)

// LiveCapsules - Returns the number of capsules currently reachable through a handle
func LiveCapsules() int {
	return capsules.len()
}

package capsule

import "sync/atomic"

// ChangeFlag - Signal raised by a change watcher and read by the reload detection system of a running capsule.
// It has a single writer and a single reader per run cycle.
type ChangeFlag struct {
	raised atomic.Bool
}

// NewChangeFlag - Returns a lowered flag
func NewChangeFlag() *ChangeFlag {
	return &ChangeFlag{}
}

// Reset - Lowers the flag
func (f *ChangeFlag) Reset() {
	f.raised.Store(false)
}

// Set - Raises the flag. Raising an already raised flag has no additional effect.
func (f *ChangeFlag) Set() {
	f.raised.Store(true)
}

// IsSet - Returns true if the flag was raised since the last reset
func (f *ChangeFlag) IsSet() bool {
	return f.raised.Load()
}

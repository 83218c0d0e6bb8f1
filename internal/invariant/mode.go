// Package invariant implements batch-invariant execution: a mode-scoped
// override layer that reroutes reduction-heavy tensor operations to kernels
// whose accumulation order is a pure function of the logical input shape,
// never of the batch they run inside.
package invariant

import (
	"errors"
	"sync"
	"sync/atomic"
)

// ErrNotEntered is returned by Exit (and Disable) when the mode is exited
// without a matching enter. The nesting counter is left untouched.
var ErrNotEntered = errors.New("invariant: exit without matching enter")

// Mode tracks whether batch-invariant routing is active.
//
// The mode is a nesting counter: it is active while the counter is above
// zero, so nested scoped activations compose without premature deactivation.
// All methods are safe for concurrent use; Active is a single atomic load and
// may be called on every dispatched operation.
type Mode struct {
	depth atomic.Int64
}

// NewMode returns an inactive Mode.
func NewMode() *Mode {
	return &Mode{}
}

// Enter increments the nesting counter, activating routing on the 0 -> 1
// transition.
func (m *Mode) Enter() {
	m.depth.Add(1)
}

// Exit decrements the nesting counter, deactivating routing on the 1 -> 0
// transition. Exiting without a matching Enter is a usage error: the counter
// is never driven below zero.
func (m *Mode) Exit() error {
	for {
		d := m.depth.Load()
		if d == 0 {
			return ErrNotEntered
		}
		if m.depth.CompareAndSwap(d, d-1) {
			return nil
		}
	}
}

// Active reports whether batch-invariant routing is currently on.
func (m *Mode) Active() bool {
	return m.depth.Load() > 0
}

// Depth returns the current nesting depth.
func (m *Mode) Depth() int {
	return int(m.depth.Load())
}

// Activate enters the mode and returns the matching release function.
// Deferring the release guarantees deactivation on every exit path,
// including panics:
//
//	defer mode.Activate(true)()
//
// With on == false the scope is a no-op, so callers can toggle the same code
// path between invariant and baseline behavior symmetrically. The release
// function is idempotent.
func (m *Mode) Activate(on bool) (release func()) {
	if !on {
		return func() {}
	}

	m.Enter()
	var once sync.Once
	return func() {
		once.Do(func() {
			// Enter succeeded, so the matching Exit cannot underflow.
			_ = m.Exit()
		})
	}
}

// defaultMode backs the package-level convenience functions and the backends
// built by New.
var defaultMode = NewMode()

// Default returns the process-wide Mode used by Enable, Disable, Activate and
// New.
func Default() *Mode {
	return defaultMode
}

// Activate is the scoped activation of the process-wide mode.
func Activate(on bool) (release func()) {
	return defaultMode.Activate(on)
}

// Enable turns the process-wide mode on without a scope. It is the one-shot
// form intended for worker-process startup; unlike Activate it gives no
// guarantee that the matching Disable runs, so prefer Activate where a scope
// exists.
func Enable() {
	defaultMode.Enter()
}

// Disable undoes one Enable. Calling it without a matching Enable returns
// ErrNotEntered.
func Disable() error {
	return defaultMode.Exit()
}

// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package invariant provides mode-scoped batch-invariant execution.
//
// While the mode is active, a wrapped backend reroutes its reduction-heavy
// operations (matmul, addmm, softmax, log-softmax, sum, mean) to kernels
// whose accumulation order is a pure function of the logical input shape.
// The result for one logical input is then bit-identical no matter what else
// is batched alongside it, which keeps greedy decoding deterministic under
// dynamic batching.
//
// Scoped use:
//
//	backend, err := invariant.New(cpu.New())
//	if err != nil {
//	    return err // the override layer could not cover its operators
//	}
//	defer invariant.Activate(true)()
//	out := backend.MatMul(a, b) // batch-invariant
//
// Process-level use (worker startup):
//
//	invariant.Enable()
//	defer invariant.Disable()
package invariant

import (
	"github.com/born-ml/invariant/internal/invariant"
	"github.com/born-ml/invariant/internal/parallel"
	"github.com/born-ml/invariant/internal/tensor"
)

// Mode tracks whether batch-invariant routing is active. It is a nesting
// counter, safe for concurrent use.
type Mode = invariant.Mode

// Table maps operator identity to default and batch-invariant
// implementations.
type Table = invariant.Table

// Op identifies an overridable operator.
type Op = invariant.Op

// Operators covered by batch-invariant overrides.
const (
	OpMatMul     Op = invariant.OpMatMul
	OpAddMM      Op = invariant.OpAddMM
	OpSoftmax    Op = invariant.OpSoftmax
	OpLogSoftmax Op = invariant.OpLogSoftmax
	OpSumDim     Op = invariant.OpSumDim
	OpMeanDim    Op = invariant.OpMeanDim
)

// Applicability decides, per call, whether the invariant implementation
// supports the concrete inputs.
type Applicability = invariant.Applicability

// Implementation function types stored in the table.
type (
	// MatMulFunc computes a @ b.
	MatMulFunc = invariant.MatMulFunc
	// AddMMFunc computes bias + a @ b.
	AddMMFunc = invariant.AddMMFunc
	// DimFunc computes an operation along one dimension.
	DimFunc = invariant.DimFunc
	// ReduceFunc reduces along one dimension.
	ReduceFunc = invariant.ReduceFunc
)

// ErrNotEntered is returned when the mode is exited without a matching enter.
var ErrNotEntered = invariant.ErrNotEntered

// Backend is the dispatch shim wrapping an inner backend.
type Backend[B tensor.Backend] = invariant.Backend[B]

// New wraps inner with batch-invariant dispatch driven by the process-wide
// mode and the standard override table. It fails if the override layer cannot
// cover every operator it claims to make invariant.
func New[B tensor.Backend](inner B) (*Backend[B], error) {
	return invariant.New(inner)
}

// NewWith wraps inner using an explicit Mode and Table.
func NewWith[B tensor.Backend](inner B, mode *Mode, table *Table) (*Backend[B], error) {
	return invariant.NewWith(inner, mode, table)
}

// NewMode returns an inactive Mode.
func NewMode() *Mode {
	return invariant.NewMode()
}

// NewTable returns an empty override table.
func NewTable() *Table {
	return invariant.NewTable()
}

// DefaultTable builds the standard override table on top of inner.
func DefaultTable(inner tensor.Backend) (*Table, error) {
	return invariant.DefaultTable(inner, parallel.DefaultConfig())
}

// CoveredOps lists every operator the override layer covers.
func CoveredOps() []Op {
	return invariant.CoveredOps()
}

// Default returns the process-wide Mode.
func Default() *Mode {
	return invariant.Default()
}

// Activate is the scoped activation of the process-wide mode; defer the
// returned release:
//
//	defer invariant.Activate(true)()
func Activate(on bool) (release func()) {
	return invariant.Activate(on)
}

// Enable turns the process-wide mode on without a scope (worker startup).
// Prefer Activate where a scope exists.
func Enable() {
	invariant.Enable()
}

// Disable undoes one Enable; returns ErrNotEntered without a matching Enable.
func Disable() error {
	return invariant.Disable()
}

package invariant

import (
	"fmt"
	"sync"

	"github.com/born-ml/invariant/internal/tensor"
)

// Op identifies an overridable operator.
type Op string

// Operators covered by batch-invariant overrides.
const (
	OpMatMul     Op = "matmul"
	OpAddMM      Op = "addmm"
	OpSoftmax    Op = "softmax"
	OpLogSoftmax Op = "log_softmax"
	OpSumDim     Op = "sum_dim"
	OpMeanDim    Op = "mean_dim"
)

// CoveredOps lists every operator the override layer must have an entry for
// before a backend will claim batch invariance.
func CoveredOps() []Op {
	return []Op{OpMatMul, OpAddMM, OpSoftmax, OpLogSoftmax, OpSumDim, OpMeanDim}
}

// Implementation function types stored in the table. The default and the
// invariant implementation of an operator share a type, so swapping one for
// the other never changes the calling convention.
type (
	// MatMulFunc computes a @ b.
	MatMulFunc func(a, b *tensor.RawTensor) *tensor.RawTensor
	// AddMMFunc computes bias + a @ b.
	AddMMFunc func(bias, a, b *tensor.RawTensor) *tensor.RawTensor
	// DimFunc computes an operation along one dimension (softmax forms).
	DimFunc func(x *tensor.RawTensor, dim int) *tensor.RawTensor
	// ReduceFunc reduces along one dimension (sum/mean forms).
	ReduceFunc func(x *tensor.RawTensor, dim int, keepDim bool) *tensor.RawTensor
)

// Applicability decides, per call, whether the invariant implementation
// supports the concrete inputs. It must be pure: no side effects, same answer
// for the same inputs. Returning false routes the call to the default
// implementation even while the mode is active.
type Applicability func(inputs ...*tensor.RawTensor) bool

type entry struct {
	def     any
	inv     any
	applies Applicability
}

// Table maps operator identity to its default and batch-invariant
// implementations. It is populated at startup and effectively immutable
// afterwards; Resolve takes only a read lock so concurrent dispatch never
// contends. Re-registering an operator overwrites the previous entry (last
// writer wins), which tests use for setup and teardown.
type Table struct {
	mu      sync.RWMutex
	entries map[Op]entry
}

// NewTable returns an empty override table.
func NewTable() *Table {
	return &Table{entries: make(map[Op]entry)}
}

// Register associates an operator with its default implementation, its
// invariant implementation and the applicability predicate guarding it.
// Both implementations must be non-nil functions of the same type; a nil
// applicability means "always applicable".
func (t *Table) Register(op Op, def, inv any, applies Applicability) error {
	if def == nil || inv == nil {
		return fmt.Errorf("invariant: register %q: implementations must be non-nil", op)
	}
	if fmt.Sprintf("%T", def) != fmt.Sprintf("%T", inv) {
		return fmt.Errorf("invariant: register %q: default (%T) and invariant (%T) implementations differ in type",
			op, def, inv)
	}
	if applies == nil {
		applies = func(...*tensor.RawTensor) bool { return true }
	}

	t.mu.Lock()
	t.entries[op] = entry{def: def, inv: inv, applies: applies}
	t.mu.Unlock()
	return nil
}

// Covers reports whether the table has an entry for every covered operator.
func (t *Table) Covers(ops ...Op) error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, op := range ops {
		if _, ok := t.entries[op]; !ok {
			return fmt.Errorf("invariant: no override registered for operator %q", op)
		}
	}
	return nil
}

// Resolve returns the implementation to run for op: the invariant one iff the
// mode is active and the applicability predicate accepts the inputs, the
// default one otherwise. It is a pure function of (active, table contents,
// inputs). Resolving an unregistered operator panics; backends guard against
// that at construction.
func (t *Table) Resolve(active bool, op Op, inputs ...*tensor.RawTensor) any {
	t.mu.RLock()
	e, ok := t.entries[op]
	t.mu.RUnlock()
	if !ok {
		panic(fmt.Sprintf("invariant: resolve of unregistered operator %q", op))
	}

	if active && e.applies(inputs...) {
		return e.inv
	}
	return e.def
}

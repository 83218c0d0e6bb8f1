package invariant

import (
	"github.com/born-ml/invariant/internal/parallel"
	"github.com/born-ml/invariant/internal/tensor"
)

// Backend is the dispatch shim: a decorator that wraps any tensor.Backend
// and reroutes the covered reduction-heavy operations through the override
// table while its Mode is active. Every other operation, and every covered
// operation whose inputs the invariant kernels do not support, goes to the
// wrapped backend untouched, so the shim changes which implementation runs
// but never the calling convention.
//
// The shim holds no state beyond (inner, mode, table); with the mode inactive
// its behavior is byte-for-byte that of the inner backend, and dropping the
// wrapper restores original dispatch with nothing left behind.
type Backend[B tensor.Backend] struct {
	inner B
	mode  *Mode
	table *Table
}

// New wraps inner with batch-invariant dispatch driven by the process-wide
// Mode and the standard override table. It returns an error if the override
// layer cannot cover every operator it claims to make invariant, so a worker
// that cannot provide the guarantee fails at startup rather than serving
// non-deterministic results later.
func New[B tensor.Backend](inner B) (*Backend[B], error) {
	table, err := DefaultTable(inner, parallel.DefaultConfig())
	if err != nil {
		return nil, err
	}
	return NewWith(inner, Default(), table)
}

// NewWith wraps inner using an explicit Mode and Table. Tests use it to keep
// mode state private to the test and to install probe implementations.
func NewWith[B tensor.Backend](inner B, mode *Mode, table *Table) (*Backend[B], error) {
	if err := table.Covers(CoveredOps()...); err != nil {
		return nil, err
	}
	return &Backend[B]{inner: inner, mode: mode, table: table}, nil
}

// DefaultTable builds the standard override table for inner: every covered
// operator bound to inner's implementation as the default and the fixed-order
// kernel as the invariant implementation, guarded by per-call applicability.
func DefaultTable(inner tensor.Backend, cfg parallel.Config) (*Table, error) {
	table := NewTable()
	regs := []struct {
		op       Op
		def, inv any
		applies  Applicability
	}{
		{OpMatMul, MatMulFunc(inner.MatMul), matMulKernel(cfg), matMulApplies},
		{OpAddMM, AddMMFunc(inner.AddMM), addMMKernel(cfg), addMMApplies},
		{OpSoftmax, DimFunc(inner.Softmax), softmaxKernel(cfg), floatOnCPU},
		{OpLogSoftmax, DimFunc(inner.LogSoftmax), logSoftmaxKernel(cfg), floatOnCPU},
		{OpSumDim, ReduceFunc(inner.SumDim), sumDimKernel(cfg), floatOnCPU},
		{OpMeanDim, ReduceFunc(inner.MeanDim), meanDimKernel(cfg), floatOnCPU},
	}
	for _, r := range regs {
		if err := table.Register(r.op, r.def, r.inv, r.applies); err != nil {
			return nil, err
		}
	}
	return table, nil
}

// floatOnCPU accepts inputs that live in host memory with a floating-point
// dtype; anything else falls back to the default implementation.
func floatOnCPU(inputs ...*tensor.RawTensor) bool {
	for _, in := range inputs {
		if in == nil || in.Device() != tensor.CPU || !in.DType().IsFloat() {
			return false
		}
	}
	return true
}

// matMulApplies additionally requires the 2D shapes the fixed-order kernel
// implements; mismatched contractions still go to the default implementation,
// which rejects them exactly as it always has.
func matMulApplies(inputs ...*tensor.RawTensor) bool {
	if !floatOnCPU(inputs...) {
		return false
	}
	for _, in := range inputs {
		if len(in.Shape()) != 2 {
			return false
		}
	}
	a, b := inputs[0], inputs[1]
	return a.DType() == b.DType() && a.Shape()[1] == b.Shape()[0]
}

// addMMApplies guards bias + a @ b: the matmul part must be supported and the
// bias must broadcast over the output columns.
func addMMApplies(inputs ...*tensor.RawTensor) bool {
	bias, a, b := inputs[0], inputs[1], inputs[2]
	if !floatOnCPU(inputs...) || !matMulApplies(a, b) {
		return false
	}
	if bias.DType() != a.DType() {
		return false
	}
	n := b.Shape()[1]
	s := bias.Shape()
	return (len(s) == 1 && s[0] == n) || (len(s) == 2 && s[0] == 1 && s[1] == n)
}

// Inner returns the wrapped backend for direct access.
func (b *Backend[B]) Inner() B {
	return b.inner
}

// Mode returns the mode controller driving this backend's dispatch.
func (b *Backend[B]) Mode() *Mode {
	return b.mode
}

// Name returns the backend name.
func (b *Backend[B]) Name() string {
	return "Invariant(" + b.inner.Name() + ")"
}

// Device returns the compute device.
func (b *Backend[B]) Device() tensor.Device {
	return b.inner.Device()
}

// Add is not a covered operator; it forwards to the inner backend.
func (b *Backend[B]) Add(a, c *tensor.RawTensor) *tensor.RawTensor {
	return b.inner.Add(a, c)
}

// Mul is not a covered operator; it forwards to the inner backend.
func (b *Backend[B]) Mul(a, c *tensor.RawTensor) *tensor.RawTensor {
	return b.inner.Mul(a, c)
}

// Argmax is exact (no floating-point accumulation); it forwards to the inner
// backend.
func (b *Backend[B]) Argmax(x *tensor.RawTensor, dim int) *tensor.RawTensor {
	return b.inner.Argmax(x, dim)
}

// MatMul routes through the override table.
func (b *Backend[B]) MatMul(a, c *tensor.RawTensor) *tensor.RawTensor {
	impl := b.table.Resolve(b.mode.Active(), OpMatMul, a, c).(MatMulFunc)
	return impl(a, c)
}

// AddMM routes through the override table.
func (b *Backend[B]) AddMM(bias, a, c *tensor.RawTensor) *tensor.RawTensor {
	impl := b.table.Resolve(b.mode.Active(), OpAddMM, bias, a, c).(AddMMFunc)
	return impl(bias, a, c)
}

// Softmax routes through the override table.
func (b *Backend[B]) Softmax(x *tensor.RawTensor, dim int) *tensor.RawTensor {
	impl := b.table.Resolve(b.mode.Active(), OpSoftmax, x).(DimFunc)
	return impl(x, dim)
}

// LogSoftmax routes through the override table.
func (b *Backend[B]) LogSoftmax(x *tensor.RawTensor, dim int) *tensor.RawTensor {
	impl := b.table.Resolve(b.mode.Active(), OpLogSoftmax, x).(DimFunc)
	return impl(x, dim)
}

// SumDim routes through the override table.
func (b *Backend[B]) SumDim(x *tensor.RawTensor, dim int, keepDim bool) *tensor.RawTensor {
	impl := b.table.Resolve(b.mode.Active(), OpSumDim, x).(ReduceFunc)
	return impl(x, dim, keepDim)
}

// MeanDim routes through the override table.
func (b *Backend[B]) MeanDim(x *tensor.RawTensor, dim int, keepDim bool) *tensor.RawTensor {
	impl := b.table.Resolve(b.mode.Active(), OpMeanDim, x).(ReduceFunc)
	return impl(x, dim, keepDim)
}

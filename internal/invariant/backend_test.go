package invariant

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/invariant/internal/backend/cpu"
	"github.com/born-ml/invariant/internal/parallel"
	"github.com/born-ml/invariant/internal/tensor"
)

func TestNew_CoversAllOperators(t *testing.T) {
	b, err := New(cpu.New())
	require.NoError(t, err)
	assert.Equal(t, "Invariant(CPU)", b.Name())
	assert.Equal(t, tensor.CPU, b.Device())
}

func TestNewWith_IncompleteTableFails(t *testing.T) {
	table := NewTable()
	require.NoError(t, table.Register(OpMatMul, probeMatMul(1), probeMatMul(2), nil))

	_, err := NewWith(cpu.New(), &Mode{}, table)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no override registered")
}

// With the mode inactive the shim must be invisible: same implementation,
// same bytes out.
func TestBackend_InactiveMatchesInner(t *testing.T) {
	inner := cpu.New()
	table, err := DefaultTable(inner, parallel.DefaultConfig())
	require.NoError(t, err)
	b, err := NewWith(inner, &Mode{}, table)
	require.NoError(t, err)

	a, err := tensor.Randn(tensor.Shape{16, 96}, 1)
	require.NoError(t, err)
	w, err := tensor.Randn(tensor.Shape{96, 8}, 2)
	require.NoError(t, err)

	got := b.MatMul(a, w)
	want := inner.MatMul(a, w)
	assert.True(t, bytes.Equal(got.Data(), want.Data()),
		"inactive shim must produce the inner backend's exact bytes")
}

func TestBackend_ActiveRoutesToInvariant(t *testing.T) {
	inner := cpu.New()
	table, err := DefaultTable(inner, parallel.DefaultConfig())
	require.NoError(t, err)

	invoked := false
	spy := MatMulFunc(func(x, y *tensor.RawTensor) *tensor.RawTensor {
		invoked = true
		return inner.MatMul(x, y)
	})
	require.NoError(t, table.Register(OpMatMul, MatMulFunc(inner.MatMul), spy, matMulApplies))

	mode := &Mode{}
	b, err := NewWith(inner, mode, table)
	require.NoError(t, err)

	a, _ := tensor.Randn(tensor.Shape{4, 32}, 3)
	w, _ := tensor.Randn(tensor.Shape{32, 4}, 4)

	b.MatMul(a, w)
	assert.False(t, invoked, "inactive mode must not touch the invariant implementation")

	release := mode.Activate(true)
	b.MatMul(a, w)
	release()
	assert.True(t, invoked, "active mode must route to the invariant implementation")
}

// Unsupported inputs fall back to the default implementation even while the
// mode is active; the invariant implementation must never see them.
func TestBackend_FallbackWhenNotApplicable(t *testing.T) {
	inner := cpu.New()
	table, err := DefaultTable(inner, parallel.DefaultConfig())
	require.NoError(t, err)

	defaultHits := 0
	def := MatMulFunc(func(x, y *tensor.RawTensor) *tensor.RawTensor {
		defaultHits++
		return x
	})
	trap := MatMulFunc(func(x, y *tensor.RawTensor) *tensor.RawTensor {
		t.Error("invariant implementation invoked for unsupported inputs")
		return x
	})
	require.NoError(t, table.Register(OpMatMul, def, trap, matMulApplies))

	mode := &Mode{}
	b, err := NewWith(inner, mode, table)
	require.NoError(t, err)

	// Int32 inputs are outside the invariant kernel's coverage.
	a, _ := tensor.FromSlice([]int32{1, 2, 3, 4}, tensor.Shape{2, 2})
	w, _ := tensor.FromSlice([]int32{5, 6, 7, 8}, tensor.Shape{2, 2})

	defer mode.Activate(true)()
	b.MatMul(a, w)
	assert.Equal(t, 1, defaultHits)
}

func TestBackend_ForwardsUncoveredOps(t *testing.T) {
	inner := cpu.New()
	b, err := New(inner)
	require.NoError(t, err)

	a, _ := tensor.FromSlice([]float32{1, 2}, tensor.Shape{2})
	c, _ := tensor.FromSlice([]float32{3, 4}, tensor.Shape{2})

	defer b.Mode().Activate(true)()
	sum := b.Add(a, c)
	assert.Equal(t, []float32{4, 6}, sum.AsFloat32())
	assert.Same(t, inner, b.Inner())
}

func TestMatMulApplies(t *testing.T) {
	f32, _ := tensor.Randn(tensor.Shape{3, 4}, 1)
	f32b, _ := tensor.Randn(tensor.Shape{4, 5}, 2)
	i32, _ := tensor.FromSlice(make([]int32, 12), tensor.Shape{3, 4})
	cube, _ := tensor.Randn(tensor.Shape{2, 3, 4}, 3)
	badK, _ := tensor.Randn(tensor.Shape{5, 5}, 4)

	assert.True(t, matMulApplies(f32, f32b))
	assert.False(t, matMulApplies(i32, f32b), "integer inputs are not covered")
	assert.False(t, matMulApplies(cube, f32b), "only 2D contractions are covered")
	assert.False(t, matMulApplies(f32, badK), "mismatched inner dimensions fall back")
}

func TestAddMMApplies(t *testing.T) {
	a, _ := tensor.Randn(tensor.Shape{3, 4}, 1)
	w, _ := tensor.Randn(tensor.Shape{4, 5}, 2)
	bias, _ := tensor.Randn(tensor.Shape{5}, 3)
	biasRow, _ := tensor.Randn(tensor.Shape{1, 5}, 4)
	biasBad, _ := tensor.Randn(tensor.Shape{4}, 5)

	assert.True(t, addMMApplies(bias, a, w))
	assert.True(t, addMMApplies(biasRow, a, w))
	assert.False(t, addMMApplies(biasBad, a, w), "bias must broadcast over output columns")
}

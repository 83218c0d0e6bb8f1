package invariant

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/invariant/internal/tensor"
)

func TestMatMulKernel_KnownValues(t *testing.T) {
	mm := matMulKernel(testConfig)

	a, err := tensor.FromSlice([]float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3})
	require.NoError(t, err)
	b, err := tensor.FromSlice([]float32{7, 8, 9, 10, 11, 12}, tensor.Shape{3, 2})
	require.NoError(t, err)

	got := mm(a, b)
	assert.Equal(t, tensor.Shape{2, 2}, got.Shape())
	assert.Equal(t, []float32{58, 64, 139, 154}, got.AsFloat32())
}

// Integer-valued inputs keep every partial sum exact, so the chunked kernel
// must agree with a plain sequential contraction bit for bit even across a
// chunk boundary.
func TestMatMulKernel_MatchesSequentialOnIntegers(t *testing.T) {
	const m, k, n = 3, 1500, 4
	mm := matMulKernel(testConfig)

	a, err := tensor.NewRaw(tensor.Shape{m, k}, tensor.Float32, tensor.CPU)
	require.NoError(t, err)
	b, err := tensor.NewRaw(tensor.Shape{k, n}, tensor.Float32, tensor.CPU)
	require.NoError(t, err)
	av, bv := a.AsFloat32(), b.AsFloat32()
	for i := range av {
		av[i] = float32(i%7 - 3)
	}
	for i := range bv {
		bv[i] = float32(i%5 - 2)
	}

	got := mm(a, b).AsFloat32()
	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			var want float32
			for kk := 0; kk < k; kk++ {
				want += av[i*k+kk] * bv[kk*n+j]
			}
			require.Equal(t, want, got[i*n+j], "cell (%d, %d)", i, j)
		}
	}
}

func TestAddMMKernel_AddsBiasAfterContraction(t *testing.T) {
	mm := matMulKernel(testConfig)
	amm := addMMKernel(testConfig)

	a, err := tensor.Randn(tensor.Shape{4, 600}, 1)
	require.NoError(t, err)
	w, err := tensor.Randn(tensor.Shape{600, 3}, 2)
	require.NoError(t, err)
	bias, err := tensor.FromSlice([]float32{10, 20, 30}, tensor.Shape{3})
	require.NoError(t, err)

	plain := mm(a, w).AsFloat32()
	biased := amm(bias, a, w).AsFloat32()
	bv := bias.AsFloat32()
	for i, v := range biased {
		assert.Equal(t, plain[i]+bv[i%3], v, "element %d", i)
	}
}

func TestSoftmaxKernel_RowsSumToOne(t *testing.T) {
	sm := softmaxKernel(testConfig)

	x, err := tensor.Randn(tensor.Shape{5, 1300}, 7)
	require.NoError(t, err)

	out := sm(x, -1).AsFloat32()
	for r := 0; r < 5; r++ {
		var sum float64
		for j := 0; j < 1300; j++ {
			v := out[r*1300+j]
			require.GreaterOrEqual(t, v, float32(0))
			sum += float64(v)
		}
		assert.InDelta(t, 1.0, sum, 1e-4, "row %d", r)
	}
}

func TestLogSoftmaxKernel_MatchesLogOfSoftmax(t *testing.T) {
	sm := softmaxKernel(testConfig)
	lsm := logSoftmaxKernel(testConfig)

	x, err := tensor.Randn(tensor.Shape{3, 700}, 9)
	require.NoError(t, err)

	probs := sm(x, -1).AsFloat32()
	logProbs := lsm(x, -1).AsFloat32()
	for i := range probs {
		assert.InDelta(t, math.Log(float64(probs[i])), float64(logProbs[i]), 1e-4)
	}
}

func TestSoftmaxKernel_StableForLargeInputs(t *testing.T) {
	sm := softmaxKernel(testConfig)

	x, err := tensor.FromSlice([]float32{1000, 1001, 1002}, tensor.Shape{1, 3})
	require.NoError(t, err)

	out := sm(x, -1).AsFloat32()
	var sum float64
	for _, v := range out {
		require.False(t, math.IsNaN(float64(v)))
		require.False(t, math.IsInf(float64(v), 0))
		sum += float64(v)
	}
	assert.InDelta(t, 1.0, sum, 1e-5)
}

func TestSumDimKernel_Values(t *testing.T) {
	sum := sumDimKernel(testConfig)

	x, err := tensor.FromSlice([]float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3})
	require.NoError(t, err)

	last := sum(x, -1, false)
	assert.Equal(t, tensor.Shape{2}, last.Shape())
	assert.Equal(t, []float32{6, 15}, last.AsFloat32())

	first := sum(x, 0, true)
	assert.Equal(t, tensor.Shape{1, 3}, first.Shape())
	assert.Equal(t, []float32{5, 7, 9}, first.AsFloat32())
}

func TestMeanDimKernel_SingleFinalDivision(t *testing.T) {
	mean := meanDimKernel(testConfig)

	x, err := tensor.FromSlice([]float32{1, 2, 4, 8}, tensor.Shape{2, 2})
	require.NoError(t, err)

	out := mean(x, -1, false)
	assert.Equal(t, []float32{1.5, 6}, out.AsFloat32())
}

func TestGroupOffset_EnumeratesRowMajor(t *testing.T) {
	shape := tensor.Shape{2, 3, 4}
	strides := shape.ComputeStrides()

	// Reducing the middle dimension leaves groups (i, k) in row-major order:
	// (0,0), (0,1), ... (0,3), (1,0), ...
	require.Equal(t, 8, groupCount(shape, 1))
	want := []int{0, 1, 2, 3, 12, 13, 14, 15}
	for row, base := range want {
		assert.Equal(t, base, groupOffset(row, shape, strides, 1), "group %d", row)
	}
}

func TestKernels_PanicOnUnsupportedDType(t *testing.T) {
	x, err := tensor.FromSlice([]int32{1, 2, 3, 4}, tensor.Shape{2, 2})
	require.NoError(t, err)

	assert.Panics(t, func() { softmaxKernel(testConfig)(x, -1) })
	assert.Panics(t, func() { sumDimKernel(testConfig)(x, -1, false) })
}

package cpu

import (
	"math"
	"testing"

	"github.com/born-ml/invariant/internal/tensor"
)

func TestSoftmax_RowsSumToOne(t *testing.T) {
	backend := seqBackend()

	x, _ := tensor.FromSlice([]float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3})
	y := backend.Softmax(x, -1)

	data := y.AsFloat32()
	for row := 0; row < 2; row++ {
		var sum float64
		for j := 0; j < 3; j++ {
			sum += float64(data[row*3+j])
		}
		if math.Abs(sum-1) > 1e-6 {
			t.Errorf("Row %d sums to %v, want 1", row, sum)
		}
	}
}

func TestSoftmax_KnownValues(t *testing.T) {
	backend := seqBackend()

	// Equal logits give uniform probabilities.
	x, _ := tensor.FromSlice([]float32{2, 2, 2, 2}, tensor.Shape{1, 4})
	y := backend.Softmax(x, 1)

	for i, v := range y.AsFloat32() {
		if math.Abs(float64(v)-0.25) > 1e-6 {
			t.Errorf("y[%d] = %v, want 0.25", i, v)
		}
	}
}

func TestSoftmax_StableForLargeInputs(t *testing.T) {
	backend := seqBackend()

	x, _ := tensor.FromSlice([]float32{1000, 1000}, tensor.Shape{1, 2})
	y := backend.Softmax(x, -1)

	for i, v := range y.AsFloat32() {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			t.Fatalf("y[%d] = %v, max-shift did not stabilize", i, v)
		}
		if math.Abs(float64(v)-0.5) > 1e-6 {
			t.Errorf("y[%d] = %v, want 0.5", i, v)
		}
	}
}

func TestSoftmax_Dim0(t *testing.T) {
	backend := seqBackend()

	x, _ := tensor.FromSlice([]float32{0, 0, 0, 0, 0, 0}, tensor.Shape{2, 3})
	y := backend.Softmax(x, 0)

	for i, v := range y.AsFloat32() {
		if math.Abs(float64(v)-0.5) > 1e-6 {
			t.Errorf("y[%d] = %v, want 0.5 (softmax over dim 0 of two rows)", i, v)
		}
	}
}

func TestLogSoftmax_MatchesLogOfSoftmax(t *testing.T) {
	backend := seqBackend()

	x, _ := tensor.FromSlice([]float32{1, -2, 0.5, 3}, tensor.Shape{1, 4})

	logProbs := backend.LogSoftmax(x, -1).AsFloat32()
	probs := backend.Softmax(x, -1).AsFloat32()

	for i := range probs {
		want := math.Log(float64(probs[i]))
		if math.Abs(float64(logProbs[i])-want) > 1e-5 {
			t.Errorf("logsoftmax[%d] = %v, want %v", i, logProbs[i], want)
		}
	}
}

func TestSoftmax_UnsupportedDTypePanics(t *testing.T) {
	backend := seqBackend()
	x, _ := tensor.FromSlice([]int32{1, 2, 3}, tensor.Shape{3})

	defer func() {
		if recover() == nil {
			t.Error("Expected panic for int32 softmax")
		}
	}()
	backend.Softmax(x, 0)
}

package tensor

import (
	"fmt"
	"math"
	"math/rand"
)

// Element is a constraint for the element types tensors can be built from.
type Element interface {
	~float32 | ~float64 | ~int32 | ~int64
}

// inferDataType infers the runtime DataType from a generic element type.
func inferDataType[T Element](dummy T) DataType {
	switch any(dummy).(type) {
	case float32:
		return Float32
	case float64:
		return Float64
	case int32:
		return Int32
	case int64:
		return Int64
	default:
		panic("unsupported element type")
	}
}

// FromSlice creates a CPU tensor of the given shape from a Go slice.
// The data is copied; the returned tensor owns its buffer.
func FromSlice[T Element](data []T, shape Shape) (*RawTensor, error) {
	if len(data) != shape.NumElements() {
		return nil, fmt.Errorf("fromslice: data length %d does not match shape %v (%d elements)",
			len(data), shape, shape.NumElements())
	}

	var zero T
	raw, err := NewRaw(shape, inferDataType(zero), CPU)
	if err != nil {
		return nil, err
	}

	switch dst := any(data).(type) {
	case []float32:
		copy(raw.AsFloat32(), dst)
	case []float64:
		copy(raw.AsFloat64(), dst)
	case []int32:
		copy(raw.AsInt32(), dst)
	case []int64:
		copy(raw.AsInt64(), dst)
	}
	return raw, nil
}

// Zeros creates a zero-filled CPU tensor.
func Zeros(shape Shape, dtype DataType) (*RawTensor, error) {
	return NewRaw(shape, dtype, CPU)
}

// Linspace creates a float32 CPU tensor with n evenly spaced values in
// [start, end], reshaped to the given shape. Mirrors the input construction
// used by the batch-invariance experiments.
func Linspace(start, end float32, shape Shape) (*RawTensor, error) {
	raw, err := NewRaw(shape, Float32, CPU)
	if err != nil {
		return nil, err
	}

	data := raw.AsFloat32()
	n := len(data)
	if n == 1 {
		data[0] = start
		return raw, nil
	}

	step := (float64(end) - float64(start)) / float64(n-1)
	for i := range data {
		data[i] = float32(float64(start) + float64(i)*step)
	}
	return raw, nil
}

// Randn creates a float32 CPU tensor with values drawn from N(0, 1) using the
// given seed. Seeded so that test fixtures are reproducible.
func Randn(shape Shape, seed int64) (*RawTensor, error) {
	raw, err := NewRaw(shape, Float32, CPU)
	if err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(seed))
	data := raw.AsFloat32()
	for i := range data {
		data[i] = float32(rng.NormFloat64())
	}
	return raw, nil
}

// MaxAbsDiff returns the maximum absolute element-wise difference between two
// float tensors of identical shape and dtype.
func MaxAbsDiff(a, b *RawTensor) (float64, error) {
	if !a.Shape().Equal(b.Shape()) {
		return 0, fmt.Errorf("maxabsdiff: shape mismatch %v vs %v", a.Shape(), b.Shape())
	}
	if a.DType() != b.DType() {
		return 0, fmt.Errorf("maxabsdiff: dtype mismatch %s vs %s", a.DType(), b.DType())
	}

	var maxDiff float64
	switch a.DType() {
	case Float32:
		av, bv := a.AsFloat32(), b.AsFloat32()
		for i := range av {
			d := math.Abs(float64(av[i]) - float64(bv[i]))
			if d > maxDiff {
				maxDiff = d
			}
		}
	case Float64:
		av, bv := a.AsFloat64(), b.AsFloat64()
		for i := range av {
			d := math.Abs(av[i] - bv[i])
			if d > maxDiff {
				maxDiff = d
			}
		}
	default:
		return 0, fmt.Errorf("maxabsdiff: unsupported dtype %s", a.DType())
	}
	return maxDiff, nil
}

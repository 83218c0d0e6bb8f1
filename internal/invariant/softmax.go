package invariant

import (
	"fmt"
	"math"

	"github.com/born-ml/invariant/internal/parallel"
	"github.com/born-ml/invariant/internal/tensor"
)

// softmaxKernel returns the batch-invariant Softmax implementation.
// The exp-sum over the softmax axis is chunked by planReduction(axis length),
// so the stabilization order never depends on how many rows share the call.
func softmaxKernel(cfg parallel.Config) DimFunc {
	return func(x *tensor.RawTensor, dim int) *tensor.RawTensor {
		return invariantSoftmax("softmax", x, dim, false, cfg)
	}
}

// logSoftmaxKernel returns the batch-invariant LogSoftmax implementation.
func logSoftmaxKernel(cfg parallel.Config) DimFunc {
	return func(x *tensor.RawTensor, dim int) *tensor.RawTensor {
		return invariantSoftmax("logsoftmax", x, dim, true, cfg)
	}
}

func invariantSoftmax(name string, x *tensor.RawTensor, dim int, logForm bool, cfg parallel.Config) *tensor.RawTensor {
	shape := x.Shape()
	dim, err := shape.Normalize(dim)
	if err != nil {
		panic(fmt.Sprintf("%s: %v", name, err))
	}

	result, rerr := tensor.NewRaw(shape, x.DType(), x.Device())
	if rerr != nil {
		panic(fmt.Sprintf("%s: %v", name, rerr))
	}

	switch x.DType() {
	case tensor.Float32:
		fixedSoftmaxFloat32(result.AsFloat32(), x.AsFloat32(), shape, dim, logForm, cfg)
	case tensor.Float64:
		fixedSoftmaxFloat64(result.AsFloat64(), x.AsFloat64(), shape, dim, logForm, cfg)
	default:
		panic(fmt.Sprintf("%s: unsupported dtype %s (only float32/float64 supported)", name, x.DType()))
	}

	return result
}

func fixedSoftmaxFloat32(dst, src []float32, shape tensor.Shape, dim int, logForm bool, cfg parallel.Config) {
	strides := shape.ComputeStrides()
	dimSize := shape[dim]
	dimStride := strides[dim]
	p := planReduction(dimSize)

	parallel.For(groupCount(shape, dim), func(row int) {
		baseIdx := groupOffset(row, shape, strides, dim)

		// Max is exactly associative and commutative over floats, so the scan
		// order is free; only the exp-sum below needs the fixed plan.
		maxVal := float32(math.Inf(-1))
		for i := 0; i < dimSize; i++ {
			if v := src[baseIdx+i*dimStride]; v > maxVal {
				maxVal = v
			}
		}

		var sum float32
		for ci := 0; ci < p.chunks; ci++ {
			start, end := p.bounds(ci)
			var partial float32
			for i := start; i < end; i++ {
				idx := baseIdx + i*dimStride
				e := float32(math.Exp(float64(src[idx] - maxVal)))
				dst[idx] = e
				partial += e
			}
			sum += partial
		}

		if logForm {
			logSum := float32(math.Log(float64(sum)))
			for i := 0; i < dimSize; i++ {
				idx := baseIdx + i*dimStride
				dst[idx] = src[idx] - maxVal - logSum
			}
		} else {
			for i := 0; i < dimSize; i++ {
				dst[baseIdx+i*dimStride] /= sum
			}
		}
	}, cfg)
}

func fixedSoftmaxFloat64(dst, src []float64, shape tensor.Shape, dim int, logForm bool, cfg parallel.Config) {
	strides := shape.ComputeStrides()
	dimSize := shape[dim]
	dimStride := strides[dim]
	p := planReduction(dimSize)

	parallel.For(groupCount(shape, dim), func(row int) {
		baseIdx := groupOffset(row, shape, strides, dim)

		maxVal := math.Inf(-1)
		for i := 0; i < dimSize; i++ {
			if v := src[baseIdx+i*dimStride]; v > maxVal {
				maxVal = v
			}
		}

		var sum float64
		for ci := 0; ci < p.chunks; ci++ {
			start, end := p.bounds(ci)
			var partial float64
			for i := start; i < end; i++ {
				idx := baseIdx + i*dimStride
				e := math.Exp(src[idx] - maxVal)
				dst[idx] = e
				partial += e
			}
			sum += partial
		}

		if logForm {
			logSum := math.Log(sum)
			for i := 0; i < dimSize; i++ {
				idx := baseIdx + i*dimStride
				dst[idx] = src[idx] - maxVal - logSum
			}
		} else {
			for i := 0; i < dimSize; i++ {
				dst[baseIdx+i*dimStride] /= sum
			}
		}
	}, cfg)
}

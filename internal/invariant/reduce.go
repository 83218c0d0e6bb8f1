package invariant

import (
	"fmt"

	"github.com/born-ml/invariant/internal/parallel"
	"github.com/born-ml/invariant/internal/tensor"
)

// groupCount returns how many independent reduction groups a reduction along
// dim has (the product of all other dimensions).
func groupCount(shape tensor.Shape, dim int) int {
	rows := 1
	for i := range shape {
		if i != dim {
			rows *= shape[i]
		}
	}
	return rows
}

// groupOffset returns the flat base index of the row'th reduction group,
// enumerating the non-reduced coordinates in row-major order.
func groupOffset(row int, shape tensor.Shape, strides []int, dim int) int {
	baseIdx := 0
	remaining := row
	for i := len(shape) - 1; i >= 0; i-- {
		if i == dim {
			continue
		}
		coord := remaining % shape[i]
		remaining /= shape[i]
		baseIdx += coord * strides[i]
	}
	return baseIdx
}

// sumDimKernel returns the batch-invariant SumDim implementation: chunked
// partial sums over the reduced axis, combined in chunk order fixed by the
// axis length alone.
func sumDimKernel(cfg parallel.Config) ReduceFunc {
	return func(x *tensor.RawTensor, dim int, keepDim bool) *tensor.RawTensor {
		return invariantSum("sumdim", x, dim, keepDim, false, cfg)
	}
}

// meanDimKernel returns the batch-invariant MeanDim implementation: the same
// fixed-order sum followed by a single final division.
func meanDimKernel(cfg parallel.Config) ReduceFunc {
	return func(x *tensor.RawTensor, dim int, keepDim bool) *tensor.RawTensor {
		return invariantSum("meandim", x, dim, keepDim, true, cfg)
	}
}

func invariantSum(name string, x *tensor.RawTensor, dim int, keepDim, mean bool, cfg parallel.Config) *tensor.RawTensor {
	shape := x.Shape()
	dim, err := shape.Normalize(dim)
	if err != nil {
		panic(fmt.Sprintf("%s: %v", name, err))
	}

	var outShape tensor.Shape
	if keepDim {
		outShape = shape.Clone()
		outShape[dim] = 1
	} else {
		outShape = make(tensor.Shape, 0, len(shape)-1)
		for i := range shape {
			if i != dim {
				outShape = append(outShape, shape[i])
			}
		}
	}

	result, rerr := tensor.NewRaw(outShape, x.DType(), x.Device())
	if rerr != nil {
		panic(fmt.Sprintf("%s: %v", name, rerr))
	}

	switch x.DType() {
	case tensor.Float32:
		fixedSumFloat32(result.AsFloat32(), x.AsFloat32(), shape, dim, mean, cfg)
	case tensor.Float64:
		fixedSumFloat64(result.AsFloat64(), x.AsFloat64(), shape, dim, mean, cfg)
	default:
		panic(fmt.Sprintf("%s: unsupported dtype %s (only float32/float64 supported)", name, x.DType()))
	}

	return result
}

func fixedSumFloat32(dst, src []float32, shape tensor.Shape, dim int, mean bool, cfg parallel.Config) {
	strides := shape.ComputeStrides()
	dimSize := shape[dim]
	dimStride := strides[dim]
	p := planReduction(dimSize)
	div := float32(dimSize)

	parallel.For(groupCount(shape, dim), func(row int) {
		baseIdx := groupOffset(row, shape, strides, dim)

		var sum float32
		for ci := 0; ci < p.chunks; ci++ {
			start, end := p.bounds(ci)
			var partial float32
			for i := start; i < end; i++ {
				partial += src[baseIdx+i*dimStride]
			}
			sum += partial
		}
		if mean {
			sum /= div
		}
		dst[row] = sum
	}, cfg)
}

func fixedSumFloat64(dst, src []float64, shape tensor.Shape, dim int, mean bool, cfg parallel.Config) {
	strides := shape.ComputeStrides()
	dimSize := shape[dim]
	dimStride := strides[dim]
	p := planReduction(dimSize)
	div := float64(dimSize)

	parallel.For(groupCount(shape, dim), func(row int) {
		baseIdx := groupOffset(row, shape, strides, dim)

		var sum float64
		for ci := 0; ci < p.chunks; ci++ {
			start, end := p.bounds(ci)
			var partial float64
			for i := start; i < end; i++ {
				partial += src[baseIdx+i*dimStride]
			}
			sum += partial
		}
		if mean {
			sum /= div
		}
		dst[row] = sum
	}, cfg)
}

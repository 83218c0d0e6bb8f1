package cpu

import (
	"fmt"

	"github.com/born-ml/invariant/internal/parallel"
	"github.com/born-ml/invariant/internal/tensor"
)

// reducedShape computes the output shape of a reduction along dim.
func reducedShape(shape tensor.Shape, dim int, keepDim bool) tensor.Shape {
	if keepDim {
		out := shape.Clone()
		out[dim] = 1
		return out
	}
	out := make(tensor.Shape, 0, len(shape)-1)
	for i := range shape {
		if i != dim {
			out = append(out, shape[i])
		}
	}
	return out
}

// SumDim sums tensor elements along the specified dimension.
//
// Like MatMul, the reduction is span-split when few output rows are in
// flight, so the partial-sum combine order tracks batch size.
func (cpu *CPUBackend) SumDim(x *tensor.RawTensor, dim int, keepDim bool) *tensor.RawTensor {
	shape := x.Shape()
	dim, err := shape.Normalize(dim)
	if err != nil {
		panic(fmt.Sprintf("sumdim: %v", err))
	}

	result, rerr := tensor.NewRaw(reducedShape(shape, dim, keepDim), x.DType(), cpu.device)
	if rerr != nil {
		panic(fmt.Sprintf("sumdim: %v", rerr))
	}

	switch x.DType() {
	case tensor.Float32:
		cpu.sumDimFloat32(result.AsFloat32(), x.AsFloat32(), shape, dim)
	case tensor.Float64:
		cpu.sumDimFloat64(result.AsFloat64(), x.AsFloat64(), shape, dim)
	default:
		panic(fmt.Sprintf("sumdim: unsupported dtype %s (only float32/float64 supported)", x.DType()))
	}

	return result
}

// MeanDim computes the mean along the specified dimension: SumDim followed by
// a single division by the reduced dimension's size.
func (cpu *CPUBackend) MeanDim(x *tensor.RawTensor, dim int, keepDim bool) *tensor.RawTensor {
	shape := x.Shape()
	ndim, err := shape.Normalize(dim)
	if err != nil {
		panic(fmt.Sprintf("meandim: %v", err))
	}

	sum := cpu.SumDim(x, dim, keepDim)
	divisor := float64(shape[ndim])

	switch sum.DType() {
	case tensor.Float32:
		d := float32(divisor)
		data := sum.AsFloat32()
		for i := range data {
			data[i] /= d
		}
	case tensor.Float64:
		data := sum.AsFloat64()
		for i := range data {
			data[i] /= divisor
		}
	}

	return sum
}

func (cpu *CPUBackend) sumDimFloat32(dst, src []float32, shape tensor.Shape, dim int) {
	strides := shape.ComputeStrides()
	dimSize := shape[dim]
	dimStride := strides[dim]
	rows := numRows(shape, dim)
	spans := cpu.reductionSpans(rows, dimSize)

	parallel.For(rows, func(row int) {
		baseIdx := rowBase(row, shape, strides, dim)

		var sum float32
		if spans <= 1 {
			for i := 0; i < dimSize; i++ {
				sum += src[baseIdx+i*dimStride]
			}
		} else {
			partials := make([]float32, spans)
			parallel.ForSpans(dimSize, spans, func(span, start, end int) {
				var p float32
				for i := start; i < end; i++ {
					p += src[baseIdx+i*dimStride]
				}
				partials[span] = p
			}, cpu.cfg)
			for _, p := range partials {
				sum += p
			}
		}
		dst[row] = sum
	}, cpu.cfg)
}

func (cpu *CPUBackend) sumDimFloat64(dst, src []float64, shape tensor.Shape, dim int) {
	strides := shape.ComputeStrides()
	dimSize := shape[dim]
	dimStride := strides[dim]
	rows := numRows(shape, dim)
	spans := cpu.reductionSpans(rows, dimSize)

	parallel.For(rows, func(row int) {
		baseIdx := rowBase(row, shape, strides, dim)

		var sum float64
		if spans <= 1 {
			for i := 0; i < dimSize; i++ {
				sum += src[baseIdx+i*dimStride]
			}
		} else {
			partials := make([]float64, spans)
			parallel.ForSpans(dimSize, spans, func(span, start, end int) {
				var p float64
				for i := start; i < end; i++ {
					p += src[baseIdx+i*dimStride]
				}
				partials[span] = p
			}, cpu.cfg)
			for _, p := range partials {
				sum += p
			}
		}
		dst[row] = sum
	}, cpu.cfg)
}

// Argmax returns the index of the maximum value along the specified
// dimension as an Int32 tensor. Ties resolve to the first occurrence.
func (cpu *CPUBackend) Argmax(x *tensor.RawTensor, dim int) *tensor.RawTensor {
	shape := x.Shape()
	dim, err := shape.Normalize(dim)
	if err != nil {
		panic(fmt.Sprintf("argmax: %v", err))
	}

	result, rerr := tensor.NewRaw(reducedShape(shape, dim, false), tensor.Int32, cpu.device)
	if rerr != nil {
		panic(fmt.Sprintf("argmax: %v", rerr))
	}

	switch x.DType() {
	case tensor.Float32:
		argmaxFloat32(result.AsInt32(), x.AsFloat32(), shape, dim, cpu.cfg)
	case tensor.Float64:
		argmaxFloat64(result.AsInt32(), x.AsFloat64(), shape, dim, cpu.cfg)
	default:
		panic(fmt.Sprintf("argmax: unsupported dtype %s", x.DType()))
	}

	return result
}

func argmaxFloat32(dst []int32, src []float32, shape tensor.Shape, dim int, cfg parallel.Config) {
	strides := shape.ComputeStrides()
	dimSize := shape[dim]
	dimStride := strides[dim]
	rows := numRows(shape, dim)

	parallel.For(rows, func(row int) {
		baseIdx := rowBase(row, shape, strides, dim)
		maxVal := src[baseIdx]
		maxIdx := int32(0)
		for i := 1; i < dimSize; i++ {
			if v := src[baseIdx+i*dimStride]; v > maxVal {
				maxVal = v
				maxIdx = int32(i)
			}
		}
		dst[row] = maxIdx
	}, cfg)
}

func argmaxFloat64(dst []int32, src []float64, shape tensor.Shape, dim int, cfg parallel.Config) {
	strides := shape.ComputeStrides()
	dimSize := shape[dim]
	dimStride := strides[dim]
	rows := numRows(shape, dim)

	parallel.For(rows, func(row int) {
		baseIdx := rowBase(row, shape, strides, dim)
		maxVal := src[baseIdx]
		maxIdx := int32(0)
		for i := 1; i < dimSize; i++ {
			if v := src[baseIdx+i*dimStride]; v > maxVal {
				maxVal = v
				maxIdx = int32(i)
			}
		}
		dst[row] = maxIdx
	}, cfg)
}

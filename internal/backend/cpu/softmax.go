package cpu

import (
	"fmt"
	"math"

	"github.com/born-ml/invariant/internal/parallel"
	"github.com/born-ml/invariant/internal/tensor"
)

// Softmax computes softmax along the specified dimension.
//
// The exp-sum reduction is span-split when few rows are in flight, so its
// accumulation order depends on how many rows share the call.
func (cpu *CPUBackend) Softmax(x *tensor.RawTensor, dim int) *tensor.RawTensor {
	return cpu.softmaxImpl("softmax", x, dim, false)
}

// LogSoftmax computes log(softmax(x)) along the specified dimension using the
// shifted log-sum-exp form.
func (cpu *CPUBackend) LogSoftmax(x *tensor.RawTensor, dim int) *tensor.RawTensor {
	return cpu.softmaxImpl("logsoftmax", x, dim, true)
}

func (cpu *CPUBackend) softmaxImpl(name string, x *tensor.RawTensor, dim int, logForm bool) *tensor.RawTensor {
	shape := x.Shape()
	dim, err := shape.Normalize(dim)
	if err != nil {
		panic(fmt.Sprintf("%s: %v", name, err))
	}

	result, rerr := tensor.NewRaw(shape, x.DType(), cpu.device)
	if rerr != nil {
		panic(fmt.Sprintf("%s: %v", name, rerr))
	}

	switch x.DType() {
	case tensor.Float32:
		cpu.softmaxFloat32(result.AsFloat32(), x.AsFloat32(), shape, dim, logForm)
	case tensor.Float64:
		cpu.softmaxFloat64(result.AsFloat64(), x.AsFloat64(), shape, dim, logForm)
	default:
		panic(fmt.Sprintf("%s: unsupported dtype %s (only float32/float64 supported)", name, x.DType()))
	}

	return result
}

// rowBase computes the flat base index of the row'th reduction group for a
// reduction along dim. Rows enumerate the non-reduced coordinates in
// row-major order, so dst[row] lands at the right flat output position.
func rowBase(row int, shape tensor.Shape, strides []int, dim int) int {
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

func numRows(shape tensor.Shape, dim int) int {
	rows := 1
	for i := range shape {
		if i != dim {
			rows *= shape[i]
		}
	}
	return rows
}

func (cpu *CPUBackend) softmaxFloat32(dst, src []float32, shape tensor.Shape, dim int, logForm bool) {
	strides := shape.ComputeStrides()
	dimSize := shape[dim]
	dimStride := strides[dim]
	rows := numRows(shape, dim)
	spans := cpu.reductionSpans(rows, dimSize)

	parallel.For(rows, func(row int) {
		baseIdx := rowBase(row, shape, strides, dim)

		// Max for numerical stability. Max is order-independent, the split
		// only matters for the exp-sum below.
		maxVal := float32(math.Inf(-1))
		for i := 0; i < dimSize; i++ {
			if v := src[baseIdx+i*dimStride]; v > maxVal {
				maxVal = v
			}
		}

		var sum float32
		if spans <= 1 {
			for i := 0; i < dimSize; i++ {
				idx := baseIdx + i*dimStride
				e := float32(math.Exp(float64(src[idx] - maxVal)))
				dst[idx] = e
				sum += e
			}
		} else {
			partials := make([]float32, spans)
			parallel.ForSpans(dimSize, spans, func(span, start, end int) {
				var p float32
				for i := start; i < end; i++ {
					idx := baseIdx + i*dimStride
					e := float32(math.Exp(float64(src[idx] - maxVal)))
					dst[idx] = e
					p += e
				}
				partials[span] = p
			}, cpu.cfg)
			for _, p := range partials {
				sum += p
			}
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
	}, cpu.cfg)
}

func (cpu *CPUBackend) softmaxFloat64(dst, src []float64, shape tensor.Shape, dim int, logForm bool) {
	strides := shape.ComputeStrides()
	dimSize := shape[dim]
	dimStride := strides[dim]
	rows := numRows(shape, dim)
	spans := cpu.reductionSpans(rows, dimSize)

	parallel.For(rows, func(row int) {
		baseIdx := rowBase(row, shape, strides, dim)

		maxVal := math.Inf(-1)
		for i := 0; i < dimSize; i++ {
			if v := src[baseIdx+i*dimStride]; v > maxVal {
				maxVal = v
			}
		}

		var sum float64
		if spans <= 1 {
			for i := 0; i < dimSize; i++ {
				idx := baseIdx + i*dimStride
				e := math.Exp(src[idx] - maxVal)
				dst[idx] = e
				sum += e
			}
		} else {
			partials := make([]float64, spans)
			parallel.ForSpans(dimSize, spans, func(span, start, end int) {
				var p float64
				for i := start; i < end; i++ {
					idx := baseIdx + i*dimStride
					e := math.Exp(src[idx] - maxVal)
					dst[idx] = e
					p += e
				}
				partials[span] = p
			}, cpu.cfg)
			for _, p := range partials {
				sum += p
			}
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
	}, cpu.cfg)
}

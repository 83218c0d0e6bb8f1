package cpu

import (
	"fmt"

	"github.com/born-ml/invariant/internal/parallel"
	"github.com/born-ml/invariant/internal/tensor"
)

// MatMul performs matrix multiplication: (M, K) @ (K, N) -> (M, N).
//
// For small M the contraction axis is split across workers (split-K) and the
// span partials are combined afterwards; for large M each row's reduction
// runs sequentially and the rows fan out instead. The accumulation order for
// a given row therefore depends on M.
func (cpu *CPUBackend) MatMul(a, b *tensor.RawTensor) *tensor.RawTensor {
	m, k, n := checkMatMulShapes(a, b)

	result, err := tensor.NewRaw(tensor.Shape{m, n}, a.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("matmul: %v", err))
	}

	spans := cpu.reductionSpans(m, k)
	switch a.DType() {
	case tensor.Float32:
		cpu.matmulFloat32(result.AsFloat32(), a.AsFloat32(), b.AsFloat32(), nil, m, k, n, spans)
	case tensor.Float64:
		cpu.matmulFloat64(result.AsFloat64(), a.AsFloat64(), b.AsFloat64(), nil, m, k, n, spans)
	default:
		panic(fmt.Sprintf("matmul: unsupported dtype %s", a.DType()))
	}

	return result
}

// AddMM computes bias + a @ b with bias broadcast over rows.
// Bias must have shape (N) or (1, N).
func (cpu *CPUBackend) AddMM(bias, a, b *tensor.RawTensor) *tensor.RawTensor {
	m, k, n := checkMatMulShapes(a, b)
	checkBiasShape(bias, n)
	if bias.DType() != a.DType() {
		panic(fmt.Sprintf("addmm: bias dtype %s does not match input dtype %s", bias.DType(), a.DType()))
	}

	result, err := tensor.NewRaw(tensor.Shape{m, n}, a.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("addmm: %v", err))
	}

	spans := cpu.reductionSpans(m, k)
	switch a.DType() {
	case tensor.Float32:
		cpu.matmulFloat32(result.AsFloat32(), a.AsFloat32(), b.AsFloat32(), bias.AsFloat32(), m, k, n, spans)
	case tensor.Float64:
		cpu.matmulFloat64(result.AsFloat64(), a.AsFloat64(), b.AsFloat64(), bias.AsFloat64(), m, k, n, spans)
	default:
		panic(fmt.Sprintf("addmm: unsupported dtype %s", a.DType()))
	}

	return result
}

func checkMatMulShapes(a, b *tensor.RawTensor) (m, k, n int) {
	aShape, bShape := a.Shape(), b.Shape()
	if len(aShape) != 2 || len(bShape) != 2 {
		panic(fmt.Sprintf("matmul: only 2D tensors supported, got %dD and %dD", len(aShape), len(bShape)))
	}
	if aShape[1] != bShape[0] {
		panic(fmt.Sprintf("matmul: shape mismatch %v @ %v", aShape, bShape))
	}
	if a.DType() != b.DType() {
		panic(fmt.Sprintf("matmul: dtype mismatch %s vs %s", a.DType(), b.DType()))
	}
	return aShape[0], aShape[1], bShape[1]
}

func checkBiasShape(bias *tensor.RawTensor, n int) {
	s := bias.Shape()
	ok := (len(s) == 1 && s[0] == n) || (len(s) == 2 && s[0] == 1 && s[1] == n)
	if !ok {
		panic(fmt.Sprintf("addmm: bias shape %v does not broadcast over %d columns", s, n))
	}
}

func (cpu *CPUBackend) matmulFloat32(c, a, b, bias []float32, m, k, n, spans int) {
	if spans <= 1 {
		parallel.For(m, func(i int) {
			for j := 0; j < n; j++ {
				var sum float32
				for kk := 0; kk < k; kk++ {
					sum += a[i*k+kk] * b[kk*n+j]
				}
				if bias != nil {
					sum += bias[j]
				}
				c[i*n+j] = sum
			}
		}, cpu.cfg)
		return
	}

	// Split-K: each span produces a partial row, combined in span order.
	partials := make([]float32, spans*m*n)
	parallel.ForSpans(k, spans, func(span, start, end int) {
		for i := 0; i < m; i++ {
			for j := 0; j < n; j++ {
				var sum float32
				for kk := start; kk < end; kk++ {
					sum += a[i*k+kk] * b[kk*n+j]
				}
				partials[span*m*n+i*n+j] = sum
			}
		}
	}, cpu.cfg)

	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			var sum float32
			for span := 0; span < spans; span++ {
				sum += partials[span*m*n+i*n+j]
			}
			if bias != nil {
				sum += bias[j]
			}
			c[i*n+j] = sum
		}
	}
}

func (cpu *CPUBackend) matmulFloat64(c, a, b, bias []float64, m, k, n, spans int) {
	if spans <= 1 {
		parallel.For(m, func(i int) {
			for j := 0; j < n; j++ {
				var sum float64
				for kk := 0; kk < k; kk++ {
					sum += a[i*k+kk] * b[kk*n+j]
				}
				if bias != nil {
					sum += bias[j]
				}
				c[i*n+j] = sum
			}
		}, cpu.cfg)
		return
	}

	partials := make([]float64, spans*m*n)
	parallel.ForSpans(k, spans, func(span, start, end int) {
		for i := 0; i < m; i++ {
			for j := 0; j < n; j++ {
				var sum float64
				for kk := start; kk < end; kk++ {
					sum += a[i*k+kk] * b[kk*n+j]
				}
				partials[span*m*n+i*n+j] = sum
			}
		}
	}, cpu.cfg)

	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			var sum float64
			for span := 0; span < spans; span++ {
				sum += partials[span*m*n+i*n+j]
			}
			if bias != nil {
				sum += bias[j]
			}
			c[i*n+j] = sum
		}
	}
}

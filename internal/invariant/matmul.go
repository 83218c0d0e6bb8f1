package invariant

import (
	"fmt"

	"github.com/born-ml/invariant/internal/parallel"
	"github.com/born-ml/invariant/internal/tensor"
)

// matMulKernel returns the batch-invariant MatMul implementation.
//
// The contraction axis is partitioned by planReduction(k), a pure function of
// k, and each output cell accumulates its chunk partials in chunk order.
// Parallelism is only ever across output rows, whose reductions are
// independent, so computing one row alone and computing it inside a larger
// matrix produce identical rounding.
func matMulKernel(cfg parallel.Config) MatMulFunc {
	return func(a, b *tensor.RawTensor) *tensor.RawTensor {
		return invariantMatMul(nil, a, b, cfg)
	}
}

// addMMKernel returns the batch-invariant AddMM implementation. The bias is
// added once after the fixed-order contraction, keeping the rounding sequence
// identical for every batch shape.
func addMMKernel(cfg parallel.Config) AddMMFunc {
	return func(bias, a, b *tensor.RawTensor) *tensor.RawTensor {
		return invariantMatMul(bias, a, b, cfg)
	}
}

func invariantMatMul(bias, a, b *tensor.RawTensor, cfg parallel.Config) *tensor.RawTensor {
	aShape, bShape := a.Shape(), b.Shape()
	if len(aShape) != 2 || len(bShape) != 2 {
		panic(fmt.Sprintf("matmul: only 2D tensors supported, got %dD and %dD", len(aShape), len(bShape)))
	}
	if aShape[1] != bShape[0] {
		panic(fmt.Sprintf("matmul: shape mismatch %v @ %v", aShape, bShape))
	}
	m, k, n := aShape[0], aShape[1], bShape[1]

	result, err := tensor.NewRaw(tensor.Shape{m, n}, a.DType(), a.Device())
	if err != nil {
		panic(fmt.Sprintf("matmul: %v", err))
	}

	p := planReduction(k)
	switch a.DType() {
	case tensor.Float32:
		var biasData []float32
		if bias != nil {
			biasData = bias.AsFloat32()
		}
		fixedMatMulFloat32(result.AsFloat32(), a.AsFloat32(), b.AsFloat32(), biasData, m, k, n, p, cfg)
	case tensor.Float64:
		var biasData []float64
		if bias != nil {
			biasData = bias.AsFloat64()
		}
		fixedMatMulFloat64(result.AsFloat64(), a.AsFloat64(), b.AsFloat64(), biasData, m, k, n, p, cfg)
	default:
		panic(fmt.Sprintf("matmul: unsupported dtype %s", a.DType()))
	}

	return result
}

func fixedMatMulFloat32(c, a, b, bias []float32, m, k, n int, p plan, cfg parallel.Config) {
	parallel.For(m, func(i int) {
		for j := 0; j < n; j++ {
			var acc float32
			for ci := 0; ci < p.chunks; ci++ {
				start, end := p.bounds(ci)
				var partial float32
				for kk := start; kk < end; kk++ {
					partial += a[i*k+kk] * b[kk*n+j]
				}
				acc += partial
			}
			if bias != nil {
				acc += bias[j]
			}
			c[i*n+j] = acc
		}
	}, cfg)
}

func fixedMatMulFloat64(c, a, b, bias []float64, m, k, n int, p plan, cfg parallel.Config) {
	parallel.For(m, func(i int) {
		for j := 0; j < n; j++ {
			var acc float64
			for ci := 0; ci < p.chunks; ci++ {
				start, end := p.bounds(ci)
				var partial float64
				for kk := start; kk < end; kk++ {
					partial += a[i*k+kk] * b[kk*n+j]
				}
				acc += partial
			}
			if bias != nil {
				acc += bias[j]
			}
			c[i*n+j] = acc
		}
	}, cfg)
}

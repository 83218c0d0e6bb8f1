// Package cpu implements the default CPU backend.
//
// Its reduction-heavy kernels are throughput-tuned: they decide how to split
// the reduction axis from the number of rows currently in flight, so the
// accumulation order for one logical row changes with the batch it is part
// of. This is the behavior the invariant backend exists to override.
package cpu

import (
	"fmt"

	"github.com/born-ml/invariant/internal/parallel"
	"github.com/born-ml/invariant/internal/tensor"
)

// CPUBackend implements tensor operations on CPU.
type CPUBackend struct {
	device tensor.Device
	cfg    parallel.Config
}

// New creates a new CPU backend with default parallelism.
func New() *CPUBackend {
	return &CPUBackend{
		device: tensor.CPU,
		cfg:    parallel.DefaultConfig(),
	}
}

// NewWithConfig creates a CPU backend with explicit parallelism settings.
func NewWithConfig(cfg parallel.Config) *CPUBackend {
	return &CPUBackend{
		device: tensor.CPU,
		cfg:    cfg,
	}
}

// Name returns the backend name.
func (cpu *CPUBackend) Name() string {
	return "CPU"
}

// Device returns the compute device.
func (cpu *CPUBackend) Device() tensor.Device {
	return cpu.device
}

// reductionSpans picks how many partial-sum spans to split a reduction of
// the given length into, based on how many independent rows are in flight.
// Few rows means the only way to keep workers busy is to split the reduction
// itself; many rows means row-level fan-out suffices and each reduction stays
// sequential. The result therefore tracks batch size.
func (cpu *CPUBackend) reductionSpans(rows, length int) int {
	if !cpu.cfg.Enabled || rows >= cpu.cfg.NumWorkers {
		return 1
	}
	spans := cpu.cfg.NumWorkers / rows
	if spans < 1 {
		spans = 1
	}
	// Do not split below a useful span size.
	maxSpans := length / 64
	if maxSpans < 1 {
		maxSpans = 1
	}
	if spans > maxSpans {
		spans = maxSpans
	}
	return spans
}

// Add performs element-wise addition. Shapes must match exactly.
func (cpu *CPUBackend) Add(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.elementwise("add", a, b,
		func(x, y float32) float32 { return x + y },
		func(x, y float64) float64 { return x + y })
}

// Mul performs element-wise multiplication. Shapes must match exactly.
func (cpu *CPUBackend) Mul(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.elementwise("mul", a, b,
		func(x, y float32) float32 { return x * y },
		func(x, y float64) float64 { return x * y })
}

func (cpu *CPUBackend) elementwise(name string, a, b *tensor.RawTensor,
	f32 func(x, y float32) float32, f64 func(x, y float64) float64,
) *tensor.RawTensor {
	if !a.Shape().Equal(b.Shape()) {
		panic(fmt.Sprintf("%s: shape mismatch %v vs %v", name, a.Shape(), b.Shape()))
	}
	if a.DType() != b.DType() {
		panic(fmt.Sprintf("%s: dtype mismatch %s vs %s", name, a.DType(), b.DType()))
	}

	result, err := tensor.NewRaw(a.Shape(), a.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("%s: %v", name, err))
	}

	switch a.DType() {
	case tensor.Float32:
		av, bv, dst := a.AsFloat32(), b.AsFloat32(), result.AsFloat32()
		for i := range dst {
			dst[i] = f32(av[i], bv[i])
		}
	case tensor.Float64:
		av, bv, dst := a.AsFloat64(), b.AsFloat64(), result.AsFloat64()
		for i := range dst {
			dst[i] = f64(av[i], bv[i])
		}
	default:
		panic(fmt.Sprintf("%s: unsupported dtype %s", name, a.DType()))
	}

	return result
}

package tensor

// Backend defines the interface that compute backends must implement.
// Backends handle the actual computation for tensor operations.
//
// Implementations:
//   - CPU: throughput-tuned default kernels whose reduction splits follow the
//     batch shape in flight
//   - Invariant: decorator backend that reroutes reduction-heavy operations
//     to fixed-order kernels while batch-invariant mode is active
//
// Operations panic on programmer errors (shape mismatch, unsupported dtype)
// and propagate any underlying fault unchanged.
type Backend interface {
	// Element-wise binary operations.
	Add(a, b *RawTensor) *RawTensor // Element-wise addition.
	Mul(a, b *RawTensor) *RawTensor // Element-wise multiplication.

	// Matrix operations.
	MatMul(a, b *RawTensor) *RawTensor      // (M, K) @ (K, N) -> (M, N).
	AddMM(bias, a, b *RawTensor) *RawTensor // bias + a @ b, bias broadcast over rows.

	// Normalization operations along a dimension.
	Softmax(x *RawTensor, dim int) *RawTensor    // Softmax along dimension.
	LogSoftmax(x *RawTensor, dim int) *RawTensor // Log-softmax along dimension.

	// Reduction operations.
	SumDim(x *RawTensor, dim int, keepDim bool) *RawTensor  // Sum along dimension.
	MeanDim(x *RawTensor, dim int, keepDim bool) *RawTensor // Mean along dimension.
	Argmax(x *RawTensor, dim int) *RawTensor                // Index of maximum along dimension.

	// Metadata.
	Name() string   // Backend name (e.g., "CPU", "Invariant(CPU)").
	Device() Device // Device type.
}

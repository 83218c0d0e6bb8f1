// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the public tensor types for the batch-invariant
// execution layer.
//
// The package re-exports the core type definitions:
//   - RawTensor: n-dimensional array with shape, dtype and device placement
//   - Backend: interface for compute implementations
//   - Shape, DataType, Device: core type definitions
//
// Example:
//
//	backend := cpu.New()
//	x, _ := tensor.FromSlice([]float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3})
//	y := backend.Softmax(x, -1)
package tensor

import (
	"github.com/born-ml/invariant/internal/tensor"
)

// DataType represents the underlying data type of a tensor.
type DataType = tensor.DataType

// Data type constants.
const (
	Float32 DataType = tensor.Float32
	Float64 DataType = tensor.Float64
	Int32   DataType = tensor.Int32
	Int64   DataType = tensor.Int64
)

// Device represents the device where tensor data resides.
type Device = tensor.Device

// Device constants.
const (
	CPU    Device = tensor.CPU
	CUDA   Device = tensor.CUDA
	WebGPU Device = tensor.WebGPU
)

// Shape represents the dimensions of a tensor.
// Example: Shape{2, 3, 4} represents a 3D tensor with dimensions 2×3×4.
type Shape = tensor.Shape

// RawTensor is the low-level tensor representation.
type RawTensor = tensor.RawTensor

// Element is a constraint for the element types tensors can be built from.
type Element = tensor.Element

// NewRaw creates a new zero-initialized tensor with the given shape, dtype
// and device placement.
func NewRaw(shape Shape, dtype DataType, device Device) (*RawTensor, error) {
	return tensor.NewRaw(shape, dtype, device)
}

// FromSlice creates a CPU tensor of the given shape from a Go slice.
//
// Example:
//
//	data := []float32{1, 2, 3, 4, 5, 6}
//	x, err := tensor.FromSlice(data, tensor.Shape{2, 3})
func FromSlice[T Element](data []T, shape Shape) (*RawTensor, error) {
	return tensor.FromSlice(data, shape)
}

// Zeros creates a zero-filled CPU tensor.
func Zeros(shape Shape, dtype DataType) (*RawTensor, error) {
	return tensor.Zeros(shape, dtype)
}

// Linspace creates a float32 CPU tensor with evenly spaced values in
// [start, end], reshaped to the given shape.
func Linspace(start, end float32, shape Shape) (*RawTensor, error) {
	return tensor.Linspace(start, end, shape)
}

// Randn creates a float32 CPU tensor with seeded standard normal values.
func Randn(shape Shape, seed int64) (*RawTensor, error) {
	return tensor.Randn(shape, seed)
}

// MaxAbsDiff returns the maximum absolute element-wise difference between two
// float tensors of identical shape and dtype.
func MaxAbsDiff(a, b *RawTensor) (float64, error) {
	return tensor.MaxAbsDiff(a, b)
}

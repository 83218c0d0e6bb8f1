// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu provides the default CPU compute backend.
//
// Its kernels pick reduction splits from the batch shape in flight for
// throughput, which makes results batch-size-dependent; wrap it with the
// invariant package to pin the reduction order down.
package cpu

import (
	"github.com/born-ml/invariant/internal/backend/cpu"
	"github.com/born-ml/invariant/internal/parallel"
)

// Backend implements tensor operations on CPU.
type Backend = cpu.CPUBackend

// New creates a new CPU backend with default parallelism.
func New() *Backend {
	return cpu.New()
}

// NewSequential creates a CPU backend with parallelism disabled; useful as a
// stable single-threaded baseline in tests.
func NewSequential() *Backend {
	return cpu.NewWithConfig(parallel.Config{Enabled: false})
}

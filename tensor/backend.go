// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import "github.com/born-ml/invariant/internal/tensor"

// Backend defines the interface that all compute backends must implement.
// Backends handle the actual computation for tensor operations.
//
// Implementations:
//   - backend/cpu: the default throughput-tuned CPU backend
//   - invariant: decorator backend adding mode-scoped batch-invariant
//     dispatch on top of any other backend
//
// Example:
//
//	import (
//	    "github.com/born-ml/invariant/backend/cpu"
//	    "github.com/born-ml/invariant/invariant"
//	)
//
//	backend, err := invariant.New(cpu.New())
//	defer invariant.Activate(true)()
//	z := backend.MatMul(x, y) // fixed-order kernel while active
type Backend = tensor.Backend

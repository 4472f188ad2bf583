// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu exposes the pure Go primitives behind the locally-connected
// operator: image unfolding (im2col), folding (col2im), N-d transpose and
// gonum-backed GEMM.
//
// # Basic Usage
//
//	k := cpu.New[float32]()
//	k.Im2Col(tensor.NCHW, x, channels, []int{h, w}, outDims, window, col)
package cpu

import (
	internalcpu "github.com/born-ml/localconn/internal/backend/cpu"
	"github.com/born-ml/localconn/internal/conv"
	"github.com/born-ml/localconn/lc"
	"github.com/born-ml/localconn/tensor"
)

// Kernels is the CPU primitive set for element type T.
type Kernels[T tensor.Float] = internalcpu.Kernels[T]

// Window is a resolved sliding-window description.
type Window = conv.Window

// New creates CPU kernels with the default parallel configuration.
func New[T tensor.Float]() *Kernels[T] {
	return internalcpu.New[T]()
}

// NewWithConfig creates CPU kernels with an explicit parallel configuration.
func NewWithConfig[T tensor.Float](cfg lc.ParallelConfig) *Kernels[T] {
	return internalcpu.NewWithConfig[T](cfg)
}

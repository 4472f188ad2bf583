// Package cpu implements the locally-connected primitives (unfold, fold,
// transpose, GEMM) in pure Go on top of gonum BLAS.
package cpu

import (
	"github.com/born-ml/localconn/internal/parallel"
	"github.com/born-ml/localconn/internal/tensor"
)

// Kernels implements the primitive set on CPU for element type T.
//
// Every method is synchronous. Work on independent slices (GEMM batches,
// unfold rows, fold channels, transpose chunks) is spread over goroutines
// according to the parallel.Config the Kernels were built with.
type Kernels[T tensor.Float] struct {
	par parallel.Config
}

// New creates CPU kernels with the default parallel configuration.
func New[T tensor.Float]() *Kernels[T] {
	return &Kernels[T]{par: parallel.DefaultConfig()}
}

// NewWithConfig creates CPU kernels with an explicit parallel configuration.
func NewWithConfig[T tensor.Float](cfg parallel.Config) *Kernels[T] {
	return &Kernels[T]{par: cfg}
}

// Name returns the backend name.
func (k *Kernels[T]) Name() string {
	return "CPU"
}

// Parallel returns the parallel configuration in use.
func (k *Kernels[T]) Parallel() parallel.Config {
	return k.par
}

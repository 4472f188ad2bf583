package cpu

import (
	"fmt"

	"github.com/born-ml/localconn/internal/parallel"
	"github.com/born-ml/localconn/internal/tensor"
)

// Transpose writes src, laid out row-major over dims, into dst permuted by
// axes: output dimension i is input dimension axes[i].
//
// dst is filled in its own row-major order so that each chunk of output
// elements is written by exactly one goroutine.
func (k *Kernels[T]) Transpose(dims, axes []int, src, dst []T) {
	if len(dims) != len(axes) {
		panic(fmt.Sprintf("transpose: axes %v do not match dims %v", axes, dims))
	}
	seen := make([]bool, len(axes))
	for _, ax := range axes {
		if ax < 0 || ax >= len(axes) || seen[ax] {
			panic(fmt.Sprintf("transpose: axes %v are not a permutation", axes))
		}
		seen[ax] = true
	}

	n := tensor.Product(dims)
	checkLen("transpose", "src", src, n)
	checkLen("transpose", "dst", dst, n)

	ndim := len(dims)
	srcStrides := tensor.Shape(dims).ComputeStrides()
	dstShape := tensor.Shape(dims).Permute(axes)

	// Stride in src taken by one step along each dst dimension.
	step := make([]int, ndim)
	for i, ax := range axes {
		step[i] = srcStrides[ax]
	}

	parallel.ForRange(n, func(lo, hi int) {
		coords := unravel(lo, dstShape)
		srcIdx := 0
		for d := 0; d < ndim; d++ {
			srcIdx += coords[d] * step[d]
		}
		for i := lo; i < hi; i++ {
			dst[i] = src[srcIdx]
			// Advance coords in dst order and track the matching src offset.
			for d := ndim - 1; d >= 0; d-- {
				coords[d]++
				srcIdx += step[d]
				if coords[d] < dstShape[d] {
					break
				}
				srcIdx -= coords[d] * step[d]
				coords[d] = 0
			}
		}
	}, k.par)
}

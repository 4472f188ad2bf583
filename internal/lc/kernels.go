package lc

import (
	"gonum.org/v1/gonum/blas"

	"github.com/born-ml/localconn/internal/backend/cpu"
	"github.com/born-ml/localconn/internal/conv"
	"github.com/born-ml/localconn/internal/tensor"
)

// Kernels is the primitive set the pipelines are written against.
//
// Implementations panic on buffer-length violations; the pipelines size
// every buffer from ShapeParams before calling in.
type Kernels[T tensor.Float] interface {
	// Im2Col unfolds one 2-d image (NCHW or NHWC).
	Im2Col(order tensor.StorageOrder, src []T, channels int, imageDims, outputDims []int, w conv.Window, dst []T)
	// Im2ColNd unfolds one channel-first image of any spatial rank.
	Im2ColNd(src []T, channels int, imageDims, outputDims []int, w conv.Window, dst []T)
	// Col2Im overwrites dst with the folded, accumulated columns.
	Col2Im(order tensor.StorageOrder, src []T, channels int, imageDims, outputDims []int, w conv.Window, dst []T)
	// Col2ImNd is the N-d channel-first fold.
	Col2ImNd(src []T, channels int, imageDims, outputDims []int, w conv.Window, dst []T)
	// Transpose permutes a row-major tensor of shape dims by axes.
	Transpose(dims, axes []int, src, dst []T)
	// Gemm computes C = alpha*op(A)*op(B) + beta*C.
	Gemm(tA, tB blas.Transpose, m, n, k int, alpha T, a, b []T, beta T, c []T)
	// GemmBatched runs batch Gemm calls over consecutive slabs.
	GemmBatched(tA, tB blas.Transpose, batch, m, n, k int, alpha T, a, b []T, beta T, c []T)
	// Gemv computes y = alpha*op(A)*x + beta*y with A stored m×n.
	Gemv(tA blas.Transpose, m, n int, alpha T, a, x []T, beta T, y []T)
}

var (
	_ Kernels[float32] = (*cpu.Kernels[float32])(nil)
	_ Kernels[float64] = (*cpu.Kernels[float64])(nil)
)

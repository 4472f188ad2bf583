package cpu

import (
	"fmt"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
	"gonum.org/v1/gonum/blas/blas64"

	"github.com/born-ml/localconn/internal/parallel"
	"github.com/born-ml/localconn/internal/tensor"
)

// Gemm computes C = alpha * op(A) * op(B) + beta * C for row-major
// matrices, where op(A) is m×k, op(B) is k×n and C is m×n.
//
// A is stored m×k for blas.NoTrans and k×m for blas.Trans (likewise B).
func (k *Kernels[T]) Gemm(tA, tB blas.Transpose, m, n, kk int, alpha T, a, b []T, beta T, c []T) {
	checkLen("gemm", "A", a, m*kk)
	checkLen("gemm", "B", b, kk*n)
	checkLen("gemm", "C", c, m*n)
	gemm(tA, tB, m, n, kk, alpha, a[:m*kk], b[:kk*n], beta, c[:m*n])
}

// GemmBatched runs batch independent Gemm calls over consecutive m×k, k×n
// and m×n slabs of a, b and c.
func (k *Kernels[T]) GemmBatched(tA, tB blas.Transpose, batch, m, n, kk int, alpha T, a, b []T, beta T, c []T) {
	sizeA, sizeB, sizeC := m*kk, kk*n, m*n
	checkLen("gemm batched", "A", a, batch*sizeA)
	checkLen("gemm batched", "B", b, batch*sizeB)
	checkLen("gemm batched", "C", c, batch*sizeC)

	parallel.For(batch, func(i int) {
		gemm(tA, tB, m, n, kk, alpha,
			a[i*sizeA:(i+1)*sizeA],
			b[i*sizeB:(i+1)*sizeB],
			beta,
			c[i*sizeC:(i+1)*sizeC])
	}, k.par)
}

// Gemv computes y = alpha * op(A) * x + beta * y where A is stored m×n.
func (k *Kernels[T]) Gemv(tA blas.Transpose, m, n int, alpha T, a, x []T, beta T, y []T) {
	xLen, yLen := n, m
	if tA != blas.NoTrans {
		xLen, yLen = m, n
	}
	checkLen("gemv", "A", a, m*n)
	checkLen("gemv", "x", x, xLen)
	checkLen("gemv", "y", y, yLen)

	switch av := any(a).(type) {
	case []float32:
		blas32.Gemv(tA, float32(alpha),
			blas32.General{Rows: m, Cols: n, Stride: n, Data: av[:m*n]},
			blas32.Vector{N: xLen, Inc: 1, Data: any(x).([]float32)[:xLen]},
			float32(beta),
			blas32.Vector{N: yLen, Inc: 1, Data: any(y).([]float32)[:yLen]})
	case []float64:
		blas64.Gemv(tA, float64(alpha),
			blas64.General{Rows: m, Cols: n, Stride: n, Data: av[:m*n]},
			blas64.Vector{N: xLen, Inc: 1, Data: any(x).([]float64)[:xLen]},
			float64(beta),
			blas64.Vector{N: yLen, Inc: 1, Data: any(y).([]float64)[:yLen]})
	default:
		panic(fmt.Sprintf("gemv: unsupported element type %T", a))
	}
}

func gemm[T tensor.Float](tA, tB blas.Transpose, m, n, k int, alpha T, a, b []T, beta T, c []T) {
	aRows, aCols := m, k
	if tA != blas.NoTrans {
		aRows, aCols = k, m
	}
	bRows, bCols := k, n
	if tB != blas.NoTrans {
		bRows, bCols = n, k
	}

	switch av := any(a).(type) {
	case []float32:
		blas32.Gemm(tA, tB, float32(alpha),
			blas32.General{Rows: aRows, Cols: aCols, Stride: aCols, Data: av},
			blas32.General{Rows: bRows, Cols: bCols, Stride: bCols, Data: any(b).([]float32)},
			float32(beta),
			blas32.General{Rows: m, Cols: n, Stride: n, Data: any(c).([]float32)})
	case []float64:
		blas64.Gemm(tA, tB, float64(alpha),
			blas64.General{Rows: aRows, Cols: aCols, Stride: aCols, Data: av},
			blas64.General{Rows: bRows, Cols: bCols, Stride: bCols, Data: any(b).([]float64)},
			float64(beta),
			blas64.General{Rows: m, Cols: n, Stride: n, Data: any(c).([]float64)})
	default:
		panic(fmt.Sprintf("gemm: unsupported element type %T", a))
	}
}

func checkLen[T any](op, name string, s []T, want int) {
	if len(s) < want {
		panic(fmt.Sprintf("%s: %s has %d elements, need %d", op, name, len(s), want))
	}
}

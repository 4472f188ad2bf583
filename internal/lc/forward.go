package lc

import (
	"gonum.org/v1/gonum/blas"

	"github.com/born-ml/localconn/internal/tensor"
)

// RunForward computes Y for one planned call:
//
//	unfold X -> transpose columns -> batched GEMM with per-location filter
//	slabs -> bias -> transpose back into y
//
// bias may be nil. ws may be nil, in which case scratch is allocated for
// this call only. Every slice must have exactly the planned element count.
func RunForward[T tensor.Float](k Kernels[T], ws *Workspace, p ShapeParams, x, filter, bias, y []T) error {
	if err := checkForwardBuffers(p, len(x), len(filter), bias, len(y)); err != nil {
		return err
	}
	if ws == nil {
		ws = &Workspace{}
	}
	if err := ws.Reserve(tensor.DataTypeOf[T](), p); err != nil {
		return err
	}

	l := p.layout()
	colT := tensor.Values[T](ws.ColumnTransposed)
	yT := tensor.Values[T](ws.YTransposed)

	unfoldAll(k, p, x, tensor.Values[T](ws.Column))
	k.Transpose(p.ColumnDims, p.ColumnAxes, tensor.Values[T](ws.Column), colT)

	runGemm(k, l.forwardGemm(p), filter, colT, yT)

	o := p.OutputImageSize
	if l.order == tensor.NHWC {
		k.Transpose(p.YTransposedDims, tensor.InversePermutation(p.YAxes), yT, y)
		if bias != nil {
			// y[n, o, m] += bias[o, m]
			k.Gemm(blas.NoTrans, blas.NoTrans, p.N, o*p.M, 1, 1, ones[T](ws), bias, 1, y)
		}
		return nil
	}

	if bias != nil {
		// yT[o, m, n] += bias[o, m]
		k.Gemm(blas.NoTrans, blas.NoTrans, o*p.M, p.N, 1, 1, bias, ones[T](ws), 1, yT)
	}
	k.Transpose(p.YTransposedDims, tensor.InversePermutation(p.YAxes), yT, y)
	return nil
}

func checkForwardBuffers[T any](p ShapeParams, x, filter int, bias []T, y int) error {
	if err := checkLen("X", x, p.XShape.NumElements()); err != nil {
		return err
	}
	if err := checkLen("filter", filter, p.FilterShape.NumElements()); err != nil {
		return err
	}
	if bias != nil {
		if err := checkLen("bias", len(bias), p.BiasShape.NumElements()); err != nil {
			return err
		}
	}
	return checkLen("Y", y, p.YShape.NumElements())
}

// unfoldAll writes the columns of every image (and group) into adjacent
// regions of col, giving the [N, G, K, O] or [N, O, K] column buffer.
func unfoldAll[T tensor.Float](k Kernels[T], p ShapeParams, x, col []T) {
	channels := p.ChannelsPerGroup()
	inSize := channels * p.InputImageSize
	colSize := p.KernelSize * p.OutputImageSize
	for idx := 0; idx < p.N*p.Groups; idx++ {
		src := x[idx*inSize : (idx+1)*inSize]
		dst := col[idx*colSize : (idx+1)*colSize]
		if len(p.InputImageDims) == 2 {
			k.Im2Col(p.Order, src, channels, p.InputImageDims, p.OutputImageDims, p.Window, dst)
		} else {
			k.Im2ColNd(src, channels, p.InputImageDims, p.OutputImageDims, p.Window, dst)
		}
	}
}

// foldAll is the adjoint of unfoldAll: it overwrites dx with the
// accumulated image gradient.
func foldAll[T tensor.Float](k Kernels[T], p ShapeParams, col, dx []T) {
	channels := p.ChannelsPerGroup()
	inSize := channels * p.InputImageSize
	colSize := p.KernelSize * p.OutputImageSize
	for idx := 0; idx < p.N*p.Groups; idx++ {
		src := col[idx*colSize : (idx+1)*colSize]
		dst := dx[idx*inSize : (idx+1)*inSize]
		if len(p.InputImageDims) == 2 {
			k.Col2Im(p.Order, src, channels, p.InputImageDims, p.OutputImageDims, p.Window, dst)
		} else {
			k.Col2ImNd(src, channels, p.InputImageDims, p.OutputImageDims, p.Window, dst)
		}
	}
}

// runGemm dispatches one planned GEMM. filter is passed as A when the plan
// says so, otherwise as B.
func runGemm[T tensor.Float](k Kernels[T], g gemmOp, filter, other, c []T) {
	a, b := other, filter
	if g.aIsFilter {
		a, b = filter, other
	}
	k.GemmBatched(g.tA, g.tB, g.batch, g.m, g.n, g.k, 1, a, b, 0, c)
}

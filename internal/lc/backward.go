package lc

import (
	"gonum.org/v1/gonum/blas"

	"github.com/born-ml/localconn/internal/tensor"
)

// GradientBuffers are the typed outputs of RunBackward. A nil slice means
// the gradient is not requested.
type GradientBuffers[T tensor.Float] struct {
	Filter []T
	Bias   []T
	Input  []T
}

// RunBackward computes the requested gradients for one planned call.
//
// The filter gradient needs the unfolded X, so X is unfolded again here
// rather than kept from the forward pass. The input gradient reuses the
// transposed column buffer and is computed last.
func RunBackward[T tensor.Float](k Kernels[T], ws *Workspace, p ShapeParams, x, filter, dy []T, grads GradientBuffers[T]) error {
	if err := checkBackwardBuffers(p, len(x), len(filter), len(dy), grads); err != nil {
		return err
	}
	if ws == nil {
		ws = &Workspace{}
	}
	if err := ws.Reserve(tensor.DataTypeOf[T](), p); err != nil {
		return err
	}

	l := p.layout()
	col := tensor.Values[T](ws.Column)
	colT := tensor.Values[T](ws.ColumnTransposed)
	dyT := tensor.Values[T](ws.YTransposed)

	k.Transpose(p.YDims, p.YAxes, dy, dyT)

	if grads.Filter != nil {
		unfoldAll(k, p, x, col)
		k.Transpose(p.ColumnDims, p.ColumnAxes, col, colT)
		g := l.filterGradGemm(p)
		k.GemmBatched(g.tA, g.tB, g.batch, g.m, g.n, g.k, 1, dyT, colT, 0, grads.Filter)
	}

	if grads.Bias != nil {
		o := p.OutputImageSize
		if l.order == tensor.NHWC {
			// dbias[o, m] = sum_n dY[n, o, m]
			k.Gemv(blas.Trans, p.N, o*p.M, 1, dy, ones[T](ws), 0, grads.Bias)
		} else {
			// dbias[o, m] = sum_n dYT[o, m, n]
			k.Gemv(blas.NoTrans, o*p.M, p.N, 1, dyT, ones[T](ws), 0, grads.Bias)
		}
	}

	if grads.Input != nil {
		runGemm(k, l.inputGradGemm(p), filter, dyT, colT)
		k.Transpose(p.ColumnTransposedDims, tensor.InversePermutation(p.ColumnAxes), colT, col)
		foldAll(k, p, col, grads.Input)
	}
	return nil
}

func checkBackwardBuffers[T tensor.Float](p ShapeParams, x, filter, dy int, grads GradientBuffers[T]) error {
	if err := checkLen("X", x, p.XShape.NumElements()); err != nil {
		return err
	}
	if err := checkLen("filter", filter, p.FilterShape.NumElements()); err != nil {
		return err
	}
	if err := checkLen("dY", dy, p.YShape.NumElements()); err != nil {
		return err
	}
	if grads.Filter != nil {
		if err := checkLen("dFilter", len(grads.Filter), p.FilterShape.NumElements()); err != nil {
			return err
		}
	}
	if grads.Bias != nil {
		if err := checkLen("dBias", len(grads.Bias), p.BiasShape.NumElements()); err != nil {
			return err
		}
	}
	if grads.Input != nil {
		return checkLen("dX", len(grads.Input), p.XShape.NumElements())
	}
	return nil
}

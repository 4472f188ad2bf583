package lc

import (
	"fmt"

	"gonum.org/v1/gonum/blas"

	"github.com/born-ml/localconn/internal/tensor"
)

// layout captures everything that differs between storage orders: which
// configurations are supported, how the filter is read, the buffer shapes
// and the operand order of every GEMM.
type layout struct {
	order     tensor.StorageOrder
	grouped   bool // groups > 1 allowed
	ndKernels bool // spatial rank other than 2 allowed

	columnAxes []int
	yAxes      []int
}

var layouts = map[tensor.StorageOrder]layout{
	tensor.NCHW: {
		order:      tensor.NCHW,
		grouped:    true,
		ndKernels:  true,
		columnAxes: []int{3, 1, 2, 0}, // [N, G, K, O] -> [O, G, K, N]
		yAxes:      []int{2, 1, 0},    // [N, M, O] -> [O, M, N]
	},
	tensor.NHWC: {
		order:      tensor.NHWC,
		columnAxes: []int{1, 0, 2}, // [N, O, K] -> [O, N, K]
		yAxes:      []int{1, 0, 2}, // [N, O, M] -> [O, N, M]
	},
}

func layoutFor(order tensor.StorageOrder) layout {
	return layouts[order]
}

// supports reports whether the layout can run an ndim-d kernel with groups.
func (l layout) supports(ndim, groups int) error {
	if !l.ndKernels && ndim != 2 {
		return fmt.Errorf("%w: %s needs a 2-d kernel, got %d-d", ErrUnsupportedConfiguration, l.order, ndim)
	}
	if !l.grouped && groups != 1 {
		return fmt.Errorf("%w: %s does not support groups (got %d)", ErrUnsupportedConfiguration, l.order, groups)
	}
	return nil
}

// filterChannels returns M and checks the per-location filter block
// against the channel count and kernel.
//
//	NCHW: [out..., M, C/G, k...]
//	NHWC: [out_h, out_w, M, k_h, k_w, C]
func (l layout) filterChannels(filter tensor.Shape, kernel []int, channels, groups int) (int, error) {
	ndim := len(kernel)
	m := filter[ndim]
	if l.order == tensor.NHWC {
		for i, k := range kernel {
			if filter[ndim+1+i] != k {
				return 0, &ShapeError{Tensor: "filter", Dim: ndim + 1 + i, Got: filter[ndim+1+i], Want: k}
			}
		}
		if filter[2*ndim+1] != channels {
			return 0, &ShapeError{Tensor: "filter", Dim: 2*ndim + 1, Got: filter[2*ndim+1], Want: channels}
		}
		return m, nil
	}

	if channels%groups != 0 {
		return 0, fmt.Errorf("%w: input channels %d not divisible by groups %d", ErrShapeMismatch, channels, groups)
	}
	if m%groups != 0 {
		return 0, fmt.Errorf("%w: output channels %d not divisible by groups %d", ErrShapeMismatch, m, groups)
	}
	if filter[ndim+1] != channels/groups {
		return 0, &ShapeError{Tensor: "filter", Dim: ndim + 1, Got: filter[ndim+1], Want: channels / groups}
	}
	for i, k := range kernel {
		if filter[ndim+2+i] != k {
			return 0, &ShapeError{Tensor: "filter", Dim: ndim + 2 + i, Got: filter[ndim+2+i], Want: k}
		}
	}
	return m, nil
}

// kernelSize is the contraction length of one GEMM slab.
func (l layout) kernelSize(kernel []int, channels, groups int) int {
	return channels / groups * tensor.Product(kernel)
}

// columnDims is the unfolded buffer shape before the transpose.
func (l layout) columnDims(n, groups, k, o int) []int {
	if l.order == tensor.NHWC {
		return []int{n, o, k}
	}
	return []int{n, groups, k, o}
}

// yDims is the output viewed as a 3-d tensor.
func (l layout) yDims(n, m, o int) []int {
	if l.order == tensor.NHWC {
		return []int{n, o, m}
	}
	return []int{n, m, o}
}

// gemmOp describes one (batched) GEMM in terms of the planned sizes.
type gemmOp struct {
	tA, tB    blas.Transpose
	batch     int
	m, n, k   int
	aIsFilter bool // false: A is the activation-side operand
}

// forwardGemm: Y^T slab = filter slab x column^T slab (NCHW) or
// column^T slab x filter slab^T (NHWC).
func (l layout) forwardGemm(p ShapeParams) gemmOp {
	o := p.OutputImageSize
	if l.order == tensor.NHWC {
		return gemmOp{tA: blas.NoTrans, tB: blas.Trans, batch: o, m: p.N, n: p.M, k: p.KernelSize}
	}
	return gemmOp{
		tA: blas.NoTrans, tB: blas.NoTrans, batch: o * p.Groups,
		m: p.M / p.Groups, n: p.N, k: p.KernelSize, aIsFilter: true,
	}
}

// filterGradGemm: dFilter slab from dY^T and column^T.
func (l layout) filterGradGemm(p ShapeParams) gemmOp {
	o := p.OutputImageSize
	if l.order == tensor.NHWC {
		return gemmOp{tA: blas.Trans, tB: blas.NoTrans, batch: o, m: p.M, n: p.KernelSize, k: p.N}
	}
	return gemmOp{tA: blas.NoTrans, tB: blas.Trans, batch: o * p.Groups, m: p.M / p.Groups, n: p.KernelSize, k: p.N}
}

// inputGradGemm: column^T gradient slab from filter and dY^T.
func (l layout) inputGradGemm(p ShapeParams) gemmOp {
	o := p.OutputImageSize
	if l.order == tensor.NHWC {
		return gemmOp{tA: blas.NoTrans, tB: blas.NoTrans, batch: o, m: p.N, n: p.KernelSize, k: p.M}
	}
	return gemmOp{
		tA: blas.Trans, tB: blas.NoTrans, batch: o * p.Groups,
		m: p.KernelSize, n: p.N, k: p.M / p.Groups, aIsFilter: true,
	}
}

package lc

import (
	"fmt"

	"github.com/born-ml/localconn/internal/conv"
	"github.com/born-ml/localconn/internal/tensor"
)

// ShapeParams is everything the pipelines need to size buffers and drive
// the primitives for one call. It is derived from the config and the X and
// filter shapes by Plan and holds no data.
type ShapeParams struct {
	Order tensor.StorageOrder

	N      int // batch
	C      int // input channels
	M      int // output channels
	Groups int

	InputImageDims  []int
	OutputImageDims []int
	InputImageSize  int
	OutputImageSize int

	// KernelSize is the GEMM contraction length:
	// C/G * prod(kernel) for NCHW, prod(kernel) * C for NHWC.
	KernelSize int

	// Window carries the resolved pads.
	Window conv.Window

	ColumnDims           []int
	ColumnTransposedDims []int
	ColumnAxes           []int
	YDims                []int
	YTransposedDims      []int
	YAxes                []int

	XShape      tensor.Shape
	FilterShape tensor.Shape
	BiasShape   tensor.Shape
	YShape      tensor.Shape
}

// Plan validates X and filter shapes against cfg and derives the buffer
// shapes and transpose axes both pipelines use.
//
// Errors wrap ErrInvalidConfig, ErrUnsupportedConfiguration or
// ErrShapeMismatch (the latter usually as a *ShapeError).
func Plan(cfg Config, xShape, filterShape tensor.Shape) (ShapeParams, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return ShapeParams{}, err
	}

	ndim := len(cfg.Kernel)
	l := layoutFor(cfg.Order)
	if err := l.supports(ndim, cfg.Groups); err != nil {
		return ShapeParams{}, err
	}

	if len(xShape) != ndim+2 {
		return ShapeParams{}, &ShapeError{Tensor: "X", Dim: RankDim, Got: len(xShape), Want: ndim + 2}
	}
	if err := xShape.Validate(); err != nil {
		return ShapeParams{}, fmt.Errorf("%w: X: %w", ErrShapeMismatch, err)
	}
	if len(filterShape) != 2*ndim+2 {
		return ShapeParams{}, &ShapeError{Tensor: "filter", Dim: RankDim, Got: len(filterShape), Want: 2*ndim + 2}
	}
	if err := filterShape.Validate(); err != nil {
		return ShapeParams{}, fmt.Errorf("%w: filter: %w", ErrShapeMismatch, err)
	}

	n := xShape[0]
	c := cfg.Order.Channels(xShape)
	inDims := cfg.Order.ImageDims(xShape)

	window := cfg.Window().Resolve(cfg.PadMode, inDims)
	outDims, err := window.OutputDims(inDims)
	if err != nil {
		return ShapeParams{}, fmt.Errorf("%w: %w", ErrShapeMismatch, err)
	}
	for i, d := range outDims {
		if filterShape[i] != d {
			return ShapeParams{}, &ShapeError{Tensor: "filter", Dim: i, Got: filterShape[i], Want: d}
		}
	}

	m, err := l.filterChannels(filterShape, cfg.Kernel, c, cfg.Groups)
	if err != nil {
		return ShapeParams{}, err
	}

	o := tensor.Product(outDims)
	k := l.kernelSize(cfg.Kernel, c, cfg.Groups)
	colDims := l.columnDims(n, cfg.Groups, k, o)
	yDims := l.yDims(n, m, o)

	biasShape := make(tensor.Shape, 0, ndim+1)
	biasShape = append(biasShape, outDims...)
	biasShape = append(biasShape, m)

	return ShapeParams{
		Order:                cfg.Order,
		N:                    n,
		C:                    c,
		M:                    m,
		Groups:               cfg.Groups,
		InputImageDims:       inDims,
		OutputImageDims:      outDims,
		InputImageSize:       tensor.Product(inDims),
		OutputImageSize:      o,
		KernelSize:           k,
		Window:               window,
		ColumnDims:           colDims,
		ColumnTransposedDims: tensor.Shape(colDims).Permute(l.columnAxes),
		ColumnAxes:           append([]int(nil), l.columnAxes...),
		YDims:                yDims,
		YTransposedDims:      tensor.Shape(yDims).Permute(l.yAxes),
		YAxes:                append([]int(nil), l.yAxes...),
		XShape:               xShape.Clone(),
		FilterShape:          filterShape.Clone(),
		BiasShape:            biasShape,
		YShape:               cfg.Order.ImageShape(n, m, outDims),
	}, nil
}

// ChannelsPerGroup is C/G.
func (p ShapeParams) ChannelsPerGroup() int {
	return p.C / p.Groups
}

// layout returns the descriptor for p's order.
func (p ShapeParams) layout() layout {
	return layoutFor(p.Order)
}

func (p ShapeParams) equal(other ShapeParams) bool {
	return p.Order == other.Order && p.Groups == other.Groups &&
		p.XShape.Equal(other.XShape) && p.FilterShape.Equal(other.FilterShape)
}

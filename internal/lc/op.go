// Package lc implements the forward and backward passes of a
// locally-connected layer: a convolution whose weights are not shared
// across output positions.
//
// Plan derives every buffer shape from the config and the X and filter
// shapes. RunForward and RunBackward drive a Kernels implementation through
// a fixed unfold / transpose / GEMM / fold sequence. Op wraps both behind
// runtime-typed tensors and owns the scratch Workspace.
package lc

import (
	"fmt"
	"log/slog"

	"github.com/born-ml/localconn/internal/backend/cpu"
	"github.com/born-ml/localconn/internal/parallel"
	"github.com/born-ml/localconn/internal/tensor"
)

// Gradients names the tensors Backward writes. A nil field means the
// gradient is not requested. Requested tensors are resized to the filter,
// bias and X shapes.
type Gradients struct {
	Filter *tensor.RawTensor
	Bias   *tensor.RawTensor
	Input  *tensor.RawTensor
}

// Option configures an Op.
type Option func(*Op)

// WithLogger sets the logger used for plan diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(op *Op) {
		if logger != nil {
			op.logger = logger
		}
	}
}

// WithParallel sets how the CPU kernels fan work out.
func WithParallel(cfg parallel.Config) Option {
	return func(op *Op) {
		op.par = cfg
	}
}

// Op is a configured locally-connected layer operator. It keeps scratch
// buffers between calls and must not be used from several goroutines at once.
type Op struct {
	cfg    Config
	logger *slog.Logger
	par    parallel.Config

	k32 Kernels[float32]
	k64 Kernels[float64]

	ws   Workspace
	last ShapeParams
}

// New validates cfg and returns an Op running on the CPU kernels.
func New(cfg Config, opts ...Option) (*Op, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	op := &Op{
		cfg:    cfg,
		logger: slog.New(slog.DiscardHandler),
		par:    parallel.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(op)
	}
	op.k32 = cpu.NewWithConfig[float32](op.par)
	op.k64 = cpu.NewWithConfig[float64](op.par)
	return op, nil
}

// Config returns the defaulted config.
func (op *Op) Config() Config {
	return op.cfg
}

// Plan derives the shape parameters for x and filter, logging when they
// differ from the previous call.
func (op *Op) Plan(xShape, filterShape tensor.Shape) (ShapeParams, error) {
	p, err := Plan(op.cfg, xShape, filterShape)
	if err != nil {
		return ShapeParams{}, err
	}
	if !p.equal(op.last) {
		op.logger.Debug("locally connected plan",
			"order", p.Order.String(),
			"n", p.N,
			"c", p.C,
			"m", p.M,
			"groups", p.Groups,
			"input", p.InputImageDims,
			"output", p.OutputImageDims,
			"kernel_size", p.KernelSize,
		)
		op.last = p
	}
	return p, nil
}

// Forward computes y from x, filter and bias. bias may be nil and must be
// nil when the config sets NoBias. y is resized to [N, M, out...] (NCHW) or
// [N, out..., M] (NHWC). Nothing is written if validation fails.
func (op *Op) Forward(x, filter, bias, y *tensor.RawTensor) error {
	if x == nil || filter == nil || y == nil {
		return fmt.Errorf("%w: x, filter and y are required", ErrShapeMismatch)
	}
	if bias != nil && op.cfg.NoBias {
		return fmt.Errorf("%w: bias given to a layer configured without bias", ErrInvalidConfig)
	}
	if err := sameDType(x, filter, bias, y); err != nil {
		return err
	}

	p, err := op.Plan(x.Shape(), filter.Shape())
	if err != nil {
		return err
	}
	if bias != nil {
		if err := checkShape("bias", bias.Shape(), p.BiasShape); err != nil {
			return err
		}
	}
	if err := y.Resize(p.YShape); err != nil {
		return err
	}

	switch x.DType() {
	case tensor.Float32:
		return forward(op.k32, &op.ws, p, x, filter, bias, y)
	case tensor.Float64:
		return forward(op.k64, &op.ws, p, x, filter, bias, y)
	default:
		return fmt.Errorf("%w: unsupported dtype %s", ErrDTypeMismatch, x.DType())
	}
}

// Backward computes the requested gradients from x, filter and dy.
// grads.Bias is ignored when the config sets NoBias.
func (op *Op) Backward(x, filter, dy *tensor.RawTensor, grads Gradients) error {
	if x == nil || filter == nil || dy == nil {
		return fmt.Errorf("%w: x, filter and dY are required", ErrShapeMismatch)
	}
	if op.cfg.NoBias {
		grads.Bias = nil
	}
	if err := sameDType(x, filter, dy, grads.Filter, grads.Bias, grads.Input); err != nil {
		return err
	}

	p, err := op.Plan(x.Shape(), filter.Shape())
	if err != nil {
		return err
	}
	if err := checkShape("dY", dy.Shape(), p.YShape); err != nil {
		return err
	}
	for _, r := range []struct {
		t     *tensor.RawTensor
		shape tensor.Shape
	}{
		{grads.Filter, p.FilterShape},
		{grads.Bias, p.BiasShape},
		{grads.Input, p.XShape},
	} {
		if r.t == nil {
			continue
		}
		if err := r.t.Resize(r.shape); err != nil {
			return err
		}
	}

	switch x.DType() {
	case tensor.Float32:
		return backward(op.k32, &op.ws, p, x, filter, dy, grads)
	case tensor.Float64:
		return backward(op.k64, &op.ws, p, x, filter, dy, grads)
	default:
		return fmt.Errorf("%w: unsupported dtype %s", ErrDTypeMismatch, x.DType())
	}
}

func forward[T tensor.Float](k Kernels[T], ws *Workspace, p ShapeParams, x, filter, bias, y *tensor.RawTensor) error {
	return RunForward(k, ws, p,
		tensor.Values[T](x),
		tensor.Values[T](filter),
		optional[T](bias),
		tensor.Values[T](y))
}

func backward[T tensor.Float](k Kernels[T], ws *Workspace, p ShapeParams, x, filter, dy *tensor.RawTensor, grads Gradients) error {
	return RunBackward(k, ws, p,
		tensor.Values[T](x),
		tensor.Values[T](filter),
		tensor.Values[T](dy),
		GradientBuffers[T]{
			Filter: optional[T](grads.Filter),
			Bias:   optional[T](grads.Bias),
			Input:  optional[T](grads.Input),
		})
}

func optional[T tensor.Float](r *tensor.RawTensor) []T {
	if r == nil {
		return nil
	}
	return tensor.Values[T](r)
}

// sameDType checks that every non-nil tensor shares the first one's dtype.
func sameDType(first *tensor.RawTensor, rest ...*tensor.RawTensor) error {
	for _, r := range rest {
		if r != nil && r.DType() != first.DType() {
			return fmt.Errorf("%w: %s and %s", ErrDTypeMismatch, first.DType(), r.DType())
		}
	}
	return nil
}

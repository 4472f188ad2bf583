// Package optim implements optimization algorithms for training the
// locally-connected layer.
//
// This package provides:
//   - Optimizer interface: Base interface for all optimizers
//   - SGD: Stochastic Gradient Descent with momentum
//   - Adam: Adaptive Moment Estimation
//
// Optimizers read the gradients stored on nn.Parameter by Module.Backward.
//
// Example usage:
//
//	optimizer := optim.NewSGD(layer.Parameters(), optim.SGDConfig{LR: 0.01, Momentum: 0.9})
//
//	for step := range steps {
//	    y, _ := layer.Forward(x)
//	    loss, dy, _ := mse.Forward(y, target)
//	    _, _ = layer.Backward(dy)
//	    if err := optimizer.Step(); err != nil {
//	        return err
//	    }
//	    optimizer.ZeroGrad()
//	}
package optim

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/blas/blas32"
	"gonum.org/v1/gonum/blas/blas64"

	"github.com/born-ml/localconn/internal/nn"
	"github.com/born-ml/localconn/internal/tensor"
)

// ErrGradientMismatch is returned by Step when a gradient does not match its
// parameter's shape or dtype.
var ErrGradientMismatch = errors.New("gradient does not match parameter")

// Optimizer is the base interface for all optimization algorithms.
type Optimizer interface {
	// Step applies the stored gradients to all parameters. Parameters
	// without a gradient are skipped.
	Step() error

	// ZeroGrad clears all parameter gradients.
	ZeroGrad()

	// GetLR returns the current learning rate.
	GetLR() float64

	// SetLR updates the learning rate.
	SetLR(lr float64)
}

// Config is the base configuration for all optimizers.
type Config struct {
	LR float64 // Learning rate
}

// gradientOf returns the parameter gradient after checking it against the
// parameter, or nil when Backward has not produced one.
func gradientOf(param *nn.Parameter) (*tensor.RawTensor, error) {
	grad := param.Grad()
	if grad == nil || grad.NumElements() == 0 {
		return nil, nil
	}
	if !grad.Shape().Equal(param.Tensor().Shape()) || grad.DType() != param.Tensor().DType() {
		return nil, fmt.Errorf("%w: %q is %s%v, gradient is %s%v", ErrGradientMismatch,
			param.Name(), param.Tensor().DType(), param.Tensor().Shape(), grad.DType(), grad.Shape())
	}
	return grad, nil
}

// axpy computes y += alpha * x.
func axpy(alpha float64, x, y *tensor.RawTensor) {
	n := y.NumElements()
	switch y.DType() {
	case tensor.Float32:
		blas32.Axpy(float32(alpha),
			blas32.Vector{N: n, Inc: 1, Data: x.AsFloat32()},
			blas32.Vector{N: n, Inc: 1, Data: y.AsFloat32()})
	default:
		blas64.Axpy(alpha,
			blas64.Vector{N: n, Inc: 1, Data: x.AsFloat64()},
			blas64.Vector{N: n, Inc: 1, Data: y.AsFloat64()})
	}
}

// scal computes x *= alpha.
func scal(alpha float64, x *tensor.RawTensor) {
	n := x.NumElements()
	switch x.DType() {
	case tensor.Float32:
		blas32.Scal(float32(alpha), blas32.Vector{N: n, Inc: 1, Data: x.AsFloat32()})
	default:
		blas64.Scal(alpha, blas64.Vector{N: n, Inc: 1, Data: x.AsFloat64()})
	}
}

// loadBuffer validates a saved optimizer buffer against its parameter and
// returns a copy in the parameter's dtype.
func loadBuffer(key string, saved *tensor.RawTensor, param *nn.Parameter) (*tensor.RawTensor, error) {
	if !saved.Shape().Equal(param.Tensor().Shape()) {
		return nil, fmt.Errorf("%s shape mismatch for parameter %q: expected %v, got %v",
			key, param.Name(), param.Tensor().Shape(), saved.Shape())
	}
	buf, err := tensor.NewRaw(param.Tensor().Shape(), param.Tensor().DType())
	if err != nil {
		return nil, err
	}
	switch {
	case saved.DType() == buf.DType():
		copy(buf.Data(), saved.Data())
	case buf.DType() == tensor.Float32:
		dst := buf.AsFloat32()
		for i, v := range saved.AsFloat64() {
			dst[i] = float32(v)
		}
	default:
		dst := buf.AsFloat64()
		for i, v := range saved.AsFloat32() {
			dst[i] = float64(v)
		}
	}
	return buf, nil
}

var (
	_ Optimizer         = (*SGD)(nil)
	_ Optimizer         = (*Adam)(nil)
	_ nn.OptimizerState = (*SGD)(nil)
	_ nn.OptimizerState = (*Adam)(nil)
)

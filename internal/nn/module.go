// Package nn wraps the locally-connected operator in a trainable layer.
//
// This package provides:
//   - Module interface: Forward, Backward and Parameters
//   - Parameter: a named tensor with its gradient
//   - LocallyConnected: the layer itself
//   - Sequential and ReLU for stacking layers
//   - Checkpoint: layer and optimizer state in a SafeTensors file
//   - MSELoss: mean squared error with its gradient
//   - Xavier and Zeros initializers
package nn

import (
	"github.com/born-ml/localconn/internal/tensor"
)

// Module is the base interface for layers.
//
// Forward caches whatever Backward needs; Backward fills the gradients of
// Parameters and returns the gradient with respect to the input.
type Module interface {
	// Forward computes the output of the module for input.
	Forward(input *tensor.RawTensor) (*tensor.RawTensor, error)

	// Backward propagates gradOutput through the last Forward call.
	Backward(gradOutput *tensor.RawTensor) (*tensor.RawTensor, error)

	// Parameters returns all trainable parameters of this module.
	Parameters() []*Parameter

	// StateDict returns the parameter tensors keyed by name.
	StateDict() map[string]*tensor.RawTensor

	// LoadStateDict copies saved tensors into the parameters.
	LoadStateDict(state map[string]*tensor.RawTensor) error
}

package nn

import (
	"errors"

	"github.com/born-ml/localconn/internal/tensor"
)

// ReLU is a Rectified Linear Unit activation module.
//
// Applies the element-wise function: f(x) = max(0, x)
//
// Example:
//
//	relu := nn.NewReLU()
//	output, err := relu.Forward(input) // All negative values become 0
type ReLU struct {
	input *tensor.RawTensor
}

// NewReLU creates a new ReLU activation module.
func NewReLU() *ReLU {
	return &ReLU{}
}

// Forward applies ReLU activation: f(x) = max(0, x).
func (r *ReLU) Forward(input *tensor.RawTensor) (*tensor.RawTensor, error) {
	out := input.Clone()
	switch out.DType() {
	case tensor.Float32:
		relu(out.AsFloat32())
	default:
		relu(out.AsFloat64())
	}
	r.input = input
	return out, nil
}

// Backward passes gradOutput through where the input was positive.
func (r *ReLU) Backward(gradOutput *tensor.RawTensor) (*tensor.RawTensor, error) {
	if r.input == nil {
		return nil, errors.New("relu backward: Forward has not been called")
	}
	if !gradOutput.Shape().Equal(r.input.Shape()) || gradOutput.DType() != r.input.DType() {
		return nil, errors.New("relu backward: gradient does not match the cached input")
	}
	grad := gradOutput.Clone()
	switch grad.DType() {
	case tensor.Float32:
		reluGrad(r.input.AsFloat32(), grad.AsFloat32())
	default:
		reluGrad(r.input.AsFloat64(), grad.AsFloat64())
	}
	return grad, nil
}

// Parameters returns an empty slice (ReLU has no trainable parameters).
func (r *ReLU) Parameters() []*Parameter {
	return nil
}

// StateDict returns an empty map.
func (r *ReLU) StateDict() map[string]*tensor.RawTensor {
	return map[string]*tensor.RawTensor{}
}

// LoadStateDict is a no-op.
func (r *ReLU) LoadStateDict(map[string]*tensor.RawTensor) error {
	return nil
}

func relu[T tensor.Float](v []T) {
	for i, x := range v {
		if x < 0 {
			v[i] = 0
		}
	}
}

func reluGrad[T tensor.Float](input, grad []T) {
	for i, x := range input {
		if x <= 0 {
			grad[i] = 0
		}
	}
}

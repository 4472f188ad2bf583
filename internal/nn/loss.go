package nn

import (
	"fmt"

	"github.com/born-ml/localconn/internal/tensor"
)

// MSELoss computes Mean Squared Error loss and its gradient.
//
// Loss = mean((predictions - targets)²)
type MSELoss struct{}

// NewMSELoss creates a new MSE loss function.
func NewMSELoss() *MSELoss {
	return &MSELoss{}
}

// Forward returns the loss and dLoss/dPredictions, shaped like predictions.
func (m *MSELoss) Forward(predictions, targets *tensor.RawTensor) (float64, *tensor.RawTensor, error) {
	if !predictions.Shape().Equal(targets.Shape()) {
		return 0, nil, fmt.Errorf("mse: predictions %v and targets %v must have the same shape",
			predictions.Shape(), targets.Shape())
	}
	if predictions.DType() != targets.DType() {
		return 0, nil, fmt.Errorf("mse: predictions are %s, targets are %s", predictions.DType(), targets.DType())
	}

	grad, err := tensor.NewRaw(predictions.Shape(), predictions.DType())
	if err != nil {
		return 0, nil, err
	}

	switch predictions.DType() {
	case tensor.Float32:
		return mse(predictions.AsFloat32(), targets.AsFloat32(), grad.AsFloat32()), grad, nil
	default:
		return mse(predictions.AsFloat64(), targets.AsFloat64(), grad.AsFloat64()), grad, nil
	}
}

func mse[T tensor.Float](pred, target, grad []T) float64 {
	var sum float64
	scale := 2 / float64(len(pred))
	for i := range pred {
		diff := float64(pred[i] - target[i])
		sum += diff * diff
		grad[i] = T(scale * diff)
	}
	return sum / float64(len(pred))
}

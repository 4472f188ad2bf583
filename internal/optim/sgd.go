package optim

import (
	"fmt"

	"github.com/born-ml/localconn/internal/nn"
	"github.com/born-ml/localconn/internal/tensor"
)

// SGD implements Stochastic Gradient Descent optimizer with optional momentum.
//
// Update rule without momentum:
//
//	param = param - lr * gradient
//
// Update rule with momentum:
//
//	velocity = momentum * velocity + gradient
//	param = param - lr * velocity
//
// Example:
//
//	optimizer := optim.NewSGD(layer.Parameters(), optim.SGDConfig{
//	    LR:       0.01,
//	    Momentum: 0.9,
//	})
type SGD struct {
	params     []*nn.Parameter
	lr         float64
	momentum   float64
	velocities []*tensor.RawTensor // by parameter index, nil until first used
}

// SGDConfig holds configuration for SGD optimizer.
type SGDConfig struct {
	LR       float64 // Learning rate (default: 0.01)
	Momentum float64 // Momentum factor (default: 0.0, range: [0, 1))
}

// NewSGD creates a new SGD optimizer.
func NewSGD(params []*nn.Parameter, config SGDConfig) *SGD {
	if config.LR == 0 {
		config.LR = 0.01
	}

	return &SGD{
		params:     params,
		lr:         config.LR,
		momentum:   config.Momentum,
		velocities: make([]*tensor.RawTensor, len(params)),
	}
}

// Step performs a single optimization step.
func (s *SGD) Step() error {
	for i, param := range s.params {
		grad, err := gradientOf(param)
		if err != nil {
			return err
		}
		if grad == nil {
			continue
		}

		if s.momentum == 0 {
			axpy(-s.lr, grad, param.Tensor())
			continue
		}

		velocity := s.velocities[i]
		if velocity == nil {
			velocity, err = tensor.NewRaw(param.Tensor().Shape(), param.Tensor().DType())
			if err != nil {
				return err
			}
			s.velocities[i] = velocity
		}
		scal(s.momentum, velocity)
		axpy(1, grad, velocity)
		axpy(-s.lr, velocity, param.Tensor())
	}
	return nil
}

// ZeroGrad clears gradients for all parameters.
func (s *SGD) ZeroGrad() {
	for _, param := range s.params {
		param.ZeroGrad()
	}
}

// GetLR returns the current learning rate.
func (s *SGD) GetLR() float64 {
	return s.lr
}

// SetLR updates the learning rate.
func (s *SGD) SetLR(lr float64) {
	s.lr = lr
}

// StateDict returns the velocity buffers as "velocity.{param_index}".
// Without momentum it returns an empty map.
func (s *SGD) StateDict() map[string]*tensor.RawTensor {
	stateDict := make(map[string]*tensor.RawTensor)
	if s.momentum == 0 {
		return stateDict
	}
	for i, velocity := range s.velocities {
		if velocity != nil {
			stateDict[fmt.Sprintf("velocity.%d", i)] = velocity
		}
	}
	return stateDict
}

// LoadStateDict restores velocity buffers saved by StateDict.
func (s *SGD) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	if s.momentum == 0 {
		return nil
	}

	velocities := make([]*tensor.RawTensor, len(s.params))
	for i, param := range s.params {
		key := fmt.Sprintf("velocity.%d", i)
		saved, ok := stateDict[key]
		if !ok {
			continue
		}
		buf, err := loadBuffer(key, saved, param)
		if err != nil {
			return err
		}
		velocities[i] = buf
	}
	s.velocities = velocities
	return nil
}

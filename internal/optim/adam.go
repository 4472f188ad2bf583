package optim

import (
	"fmt"
	"math"

	"github.com/born-ml/localconn/internal/nn"
	"github.com/born-ml/localconn/internal/tensor"
)

// Adam implements the Adam (Adaptive Moment Estimation) optimizer.
//
// Update rule:
//
//	m_t = beta1 * m_{t-1} + (1-beta1) * gradient
//	v_t = beta2 * v_{t-1} + (1-beta2) * gradient²
//	m_hat = m_t / (1 - beta1^t)
//	v_hat = v_t / (1 - beta2^t)
//	param = param - lr * m_hat / (sqrt(v_hat) + eps)
//
// Reference: "Adam: A Method for Stochastic Optimization" (Kingma & Ba, 2014)
type Adam struct {
	params []*nn.Parameter
	lr     float64
	beta1  float64
	beta2  float64
	eps    float64
	t      int                 // Timestep for bias correction
	m      []*tensor.RawTensor // First moment estimates
	v      []*tensor.RawTensor // Second moment estimates
}

// AdamConfig holds configuration for Adam optimizer.
type AdamConfig struct {
	LR    float64    // Learning rate (default: 0.001)
	Betas [2]float64 // Coefficients for computing running averages (default: [0.9, 0.999])
	Eps   float64    // Term for numerical stability (default: 1e-8)
}

// NewAdam creates a new Adam optimizer, filling unset hyperparameters with
// the usual defaults.
func NewAdam(params []*nn.Parameter, config AdamConfig) *Adam {
	if config.LR == 0 {
		config.LR = 0.001
	}
	if config.Betas[0] == 0 {
		config.Betas[0] = 0.9
	}
	if config.Betas[1] == 0 {
		config.Betas[1] = 0.999
	}
	if config.Eps == 0 {
		config.Eps = 1e-8
	}

	return &Adam{
		params: params,
		lr:     config.LR,
		beta1:  config.Betas[0],
		beta2:  config.Betas[1],
		eps:    config.Eps,
		m:      make([]*tensor.RawTensor, len(params)),
		v:      make([]*tensor.RawTensor, len(params)),
	}
}

// Step performs a single optimization step using Adam algorithm.
func (a *Adam) Step() error {
	a.t++
	c1 := 1.0 - math.Pow(a.beta1, float64(a.t))
	c2 := 1.0 - math.Pow(a.beta2, float64(a.t))

	for i, param := range a.params {
		grad, err := gradientOf(param)
		if err != nil {
			return err
		}
		if grad == nil {
			continue
		}

		if a.m[i] == nil {
			shape, dtype := param.Tensor().Shape(), param.Tensor().DType()
			if a.m[i], err = tensor.NewRaw(shape, dtype); err != nil {
				return err
			}
			if a.v[i], err = tensor.NewRaw(shape, dtype); err != nil {
				return err
			}
		}

		switch grad.DType() {
		case tensor.Float32:
			adamUpdate(a, c1, c2, param.Tensor().AsFloat32(), grad.AsFloat32(), a.m[i].AsFloat32(), a.v[i].AsFloat32())
		default:
			adamUpdate(a, c1, c2, param.Tensor().AsFloat64(), grad.AsFloat64(), a.m[i].AsFloat64(), a.v[i].AsFloat64())
		}
	}
	return nil
}

func adamUpdate[T tensor.Float](a *Adam, c1, c2 float64, param, grad, m, v []T) {
	for i := range param {
		g := float64(grad[i])
		mi := a.beta1*float64(m[i]) + (1-a.beta1)*g
		vi := a.beta2*float64(v[i]) + (1-a.beta2)*g*g
		m[i], v[i] = T(mi), T(vi)

		param[i] -= T(a.lr * (mi / c1) / (math.Sqrt(vi/c2) + a.eps))
	}
}

// ZeroGrad clears gradients for all parameters.
func (a *Adam) ZeroGrad() {
	for _, param := range a.params {
		param.ZeroGrad()
	}
}

// GetLR returns the current learning rate.
func (a *Adam) GetLR() float64 {
	return a.lr
}

// SetLR updates the learning rate.
func (a *Adam) SetLR(lr float64) {
	a.lr = lr
}

// GetTimestep returns the current timestep.
func (a *Adam) GetTimestep() int {
	return a.t
}

// StateDict returns the moment buffers ("m.{i}", "v.{i}") and the timestep.
func (a *Adam) StateDict() map[string]*tensor.RawTensor {
	stateDict := make(map[string]*tensor.RawTensor)
	for i := range a.params {
		if a.m[i] == nil {
			continue
		}
		stateDict[fmt.Sprintf("m.%d", i)] = a.m[i]
		stateDict[fmt.Sprintf("v.%d", i)] = a.v[i]
	}
	step, _ := tensor.FromSlice([]float64{float64(a.t)}, tensor.Shape{1})
	stateDict["step"] = step
	return stateDict
}

// LoadStateDict restores state saved by StateDict.
func (a *Adam) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	m := make([]*tensor.RawTensor, len(a.params))
	v := make([]*tensor.RawTensor, len(a.params))
	for i, param := range a.params {
		mKey, vKey := fmt.Sprintf("m.%d", i), fmt.Sprintf("v.%d", i)
		savedM, okM := stateDict[mKey]
		savedV, okV := stateDict[vKey]
		if !okM || !okV {
			continue
		}
		var err error
		if m[i], err = loadBuffer(mKey, savedM, param); err != nil {
			return err
		}
		if v[i], err = loadBuffer(vKey, savedV, param); err != nil {
			return err
		}
	}

	t := 0
	if step, ok := stateDict["step"]; ok && step.NumElements() == 1 {
		switch step.DType() {
		case tensor.Float32:
			t = int(step.AsFloat32()[0])
		default:
			t = int(step.AsFloat64()[0])
		}
	}
	a.m, a.v, a.t = m, v, t
	return nil
}

// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package optim provides the optimizers used to train locally-connected
// layers.
//
// Optimizers read the gradients left on each nn.Parameter by Backward:
//
//	opt := optim.NewSGD(layer.Parameters(), optim.SGDConfig{LR: 0.01, Momentum: 0.9})
//	_, _ = layer.Backward(dy)
//	if err := opt.Step(); err != nil {
//	    return err
//	}
//	opt.ZeroGrad()
package optim

import (
	"github.com/born-ml/localconn/internal/optim"
	"github.com/born-ml/localconn/nn"
)

// Optimizer is the interface shared by all optimizers.
type Optimizer = optim.Optimizer

// SGD is stochastic gradient descent with optional momentum.
type SGD = optim.SGD

// SGDConfig configures SGD.
type SGDConfig = optim.SGDConfig

// Adam is the Adam optimizer.
type Adam = optim.Adam

// AdamConfig configures Adam.
type AdamConfig = optim.AdamConfig

// ErrGradientMismatch is returned by Step for gradients that do not match
// their parameter.
var ErrGradientMismatch = optim.ErrGradientMismatch

// NewSGD creates an SGD optimizer.
func NewSGD(params []*nn.Parameter, config SGDConfig) *SGD {
	return optim.NewSGD(params, config)
}

// NewAdam creates an Adam optimizer.
func NewAdam(params []*nn.Parameter, config AdamConfig) *Adam {
	return optim.NewAdam(params, config)
}

// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package nn provides the trainable locally-connected layer and the small
// set of modules needed to train and checkpoint it.
//
// Example:
//
//	layer, err := nn.NewLocallyConnected(nn.LocallyConnectedConfig{
//	    Layer:       lc.Config{Kernel: []int{3, 3}},
//	    InChannels:  3,
//	    OutChannels: 8,
//	    InputDims:   []int{16, 16},
//	})
//	y, err := layer.Forward(x)
//	loss, dy, err := nn.NewMSELoss().Forward(y, target)
//	dx, err := layer.Backward(dy)
package nn

import (
	"math/rand"

	"github.com/born-ml/localconn/internal/nn"
	"github.com/born-ml/localconn/internal/serialization"
	"github.com/born-ml/localconn/lc"
	"github.com/born-ml/localconn/tensor"
)

// Module is the interface shared by all layers.
type Module = nn.Module

// Parameter is a named trainable tensor with its gradient.
type Parameter = nn.Parameter

// LocallyConnectedConfig describes a LocallyConnected layer.
type LocallyConnectedConfig = nn.LocallyConnectedConfig

// LocallyConnected is a convolution-like layer with unshared weights.
type LocallyConnected = nn.LocallyConnected

// Sequential chains modules.
type Sequential = nn.Sequential

// ReLU is the rectified linear activation.
type ReLU = nn.ReLU

// MSELoss is the mean squared error loss.
type MSELoss = nn.MSELoss

// Checkpoint is a snapshot of layer and optimizer state.
type Checkpoint = nn.Checkpoint

// OptimizerState is implemented by optimizers that can be checkpointed.
type OptimizerState = nn.OptimizerState

// WriteOption configures how checkpoints are written.
type WriteOption = serialization.WriteOption

// ErrNotCheckpoint is returned when loading a file Checkpoint.Save did not write.
var ErrNotCheckpoint = nn.ErrNotCheckpoint

// NewParameter creates a parameter.
func NewParameter(name string, t *tensor.RawTensor) *Parameter {
	return nn.NewParameter(name, t)
}

// NewLocallyConnected creates the layer with Xavier weights and zero bias.
func NewLocallyConnected(cfg LocallyConnectedConfig, opts ...lc.Option) (*LocallyConnected, error) {
	return nn.NewLocallyConnected(cfg, opts...)
}

// NewSequential creates a Sequential container.
func NewSequential(modules ...Module) *Sequential {
	return nn.NewSequential(modules...)
}

// NewReLU creates a ReLU activation.
func NewReLU() *ReLU {
	return nn.NewReLU()
}

// NewMSELoss creates the MSE loss.
func NewMSELoss() *MSELoss {
	return nn.NewMSELoss()
}

// LoadCheckpoint restores model and optimizer state from path.
func LoadCheckpoint(path string, model Module, optimizer OptimizerState) (*Checkpoint, error) {
	return nn.LoadCheckpoint(path, model, optimizer)
}

// WithHalfPrecision stores checkpoint tensors as float16.
func WithHalfPrecision() WriteOption {
	return serialization.WithHalfPrecision()
}

// Xavier returns a tensor drawn from the Xavier/Glorot uniform distribution.
func Xavier(fanIn, fanOut int, shape tensor.Shape, dtype tensor.DataType, rng *rand.Rand) (*tensor.RawTensor, error) {
	return nn.Xavier(fanIn, fanOut, shape, dtype, rng)
}

// Zeros returns a zero-filled tensor.
func Zeros(shape tensor.Shape, dtype tensor.DataType) (*tensor.RawTensor, error) {
	return nn.Zeros(shape, dtype)
}

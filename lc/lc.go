// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package lc exposes the locally-connected layer operator.
//
// A locally-connected layer is a convolution whose filter weights differ at
// every output position. The operator supports N-d kernels, channel groups,
// explicit/VALID/SAME padding, NCHW and NHWC (2-d, ungrouped) storage and an
// optional per-position bias.
//
// Example:
//
//	op, err := lc.New(lc.Config{Kernel: []int{3, 3}, Stride: []int{1, 1}})
//	y := tensor.Empty(tensor.Float32)
//	err = op.Forward(x, filter, bias, y)
//
//	grads := lc.Gradients{
//	    Filter: tensor.Empty(tensor.Float32),
//	    Bias:   tensor.Empty(tensor.Float32),
//	    Input:  tensor.Empty(tensor.Float32),
//	}
//	err = op.Backward(x, filter, dy, grads)
package lc

import (
	"log/slog"

	"github.com/born-ml/localconn/internal/conv"
	"github.com/born-ml/localconn/internal/lc"
	"github.com/born-ml/localconn/internal/parallel"
	"github.com/born-ml/localconn/tensor"
)

// Config holds the layer hyperparameters.
type Config = lc.Config

// Op is a configured operator with its scratch buffers.
type Op = lc.Op

// Option configures an Op.
type Option = lc.Option

// Gradients names the outputs of Op.Backward; nil fields are skipped.
type Gradients = lc.Gradients

// ShapeParams is the geometry derived by Plan.
type ShapeParams = lc.ShapeParams

// ShapeError reports a single mismatched dimension.
type ShapeError = lc.ShapeError

// PadMode selects how pads are derived.
type PadMode = conv.PadMode

// ParallelConfig controls how CPU kernels fan work out.
type ParallelConfig = parallel.Config

// Padding modes.
const (
	PadExplicit = conv.PadExplicit
	PadValid    = conv.PadValid
	PadSame     = conv.PadSame
)

// Errors returned by the operator.
var (
	ErrShapeMismatch            = lc.ErrShapeMismatch
	ErrUnsupportedConfiguration = lc.ErrUnsupportedConfiguration
	ErrInvalidConfig            = lc.ErrInvalidConfig
	ErrDTypeMismatch            = lc.ErrDTypeMismatch
)

// New validates cfg and returns an operator running on the CPU.
func New(cfg Config, opts ...Option) (*Op, error) {
	return lc.New(cfg, opts...)
}

// Plan derives all buffer shapes for the given X and filter shapes.
func Plan(cfg Config, xShape, filterShape tensor.Shape) (ShapeParams, error) {
	return lc.Plan(cfg, xShape, filterShape)
}

// WithLogger sets the logger used for plan diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return lc.WithLogger(logger)
}

// WithParallel sets the CPU parallelism.
func WithParallel(cfg ParallelConfig) Option {
	return lc.WithParallel(cfg)
}

// DefaultParallel returns the parallelism used when WithParallel is not given.
func DefaultParallel() ParallelConfig {
	return parallel.DefaultConfig()
}

package lc

import (
	"bytes"
	"errors"
	"log/slog"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/localconn/internal/parallel"
	"github.com/born-ml/localconn/internal/tensor"
)

func TestNew_InvalidConfig(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(Config{Kernel: []int{2, 2}, Dilation: []int{1}})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	op, err := New(Config{Kernel: []int{3, 3}})
	require.NoError(t, err)
	cfg := op.Config()
	assert.Equal(t, []int{1, 1}, cfg.Stride)
	assert.Equal(t, []int{1, 1}, cfg.Dilation)
	assert.Equal(t, []int{0, 0, 0, 0}, cfg.Pads)
	assert.Equal(t, 1, cfg.Groups)
	assert.Equal(t, tensor.NCHW, cfg.Order)
}

// TestOp_ShapeSymmetry checks that Forward and Backward resize their outputs
// to the planned shapes and that the gradients mirror their inputs.
func TestOp_ShapeSymmetry(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	for _, tc := range layerCases() {
		t.Run(tc.name, func(t *testing.T) {
			op, err := New(tc.cfg, WithParallel(parallel.Config{Enabled: true, NumWorkers: 3, MinChunkSize: 2}))
			require.NoError(t, err)

			filterShape := filterShapeFor(t, tc.cfg, tc.x, tc.m)
			p, err := op.Plan(tc.x, filterShape)
			require.NoError(t, err)

			x := randomTensor(t, rng, tc.x)
			filter := randomTensor(t, rng, filterShape)
			bias := randomTensor(t, rng, p.BiasShape)
			y := tensor.Empty(tensor.Float64)
			require.NoError(t, op.Forward(x, filter, bias, y))
			assert.Equal(t, p.YShape, y.Shape())

			dy := randomTensor(t, rng, y.Shape())
			grads := Gradients{
				Filter: tensor.Empty(tensor.Float64),
				Bias:   tensor.Empty(tensor.Float64),
				Input:  tensor.Empty(tensor.Float64),
			}
			require.NoError(t, op.Backward(x, filter, dy, grads))
			assert.Equal(t, x.Shape(), grads.Input.Shape())
			assert.Equal(t, filter.Shape(), grads.Filter.Shape())
			assert.Equal(t, bias.Shape(), grads.Bias.Shape())

			// The parallel op agrees with the sequential pipeline.
			want := make([]float64, p.YShape.NumElements())
			require.NoError(t, RunForward(sequentialKernels(), nil, p,
				x.AsFloat64(), filter.AsFloat64(), bias.AsFloat64(), want))
			assert.InDeltaSlice(t, want, y.AsFloat64(), 1e-12)
		})
	}
}

func TestOp_Float32(t *testing.T) {
	op, err := New(Config{Kernel: []int{2}})
	require.NoError(t, err)

	x, err := tensor.FromSlice([]float32{1, 2, 3}, tensor.Shape{1, 1, 3})
	require.NoError(t, err)
	filter, err := tensor.FromSlice([]float32{1, 1, 2, -1}, tensor.Shape{2, 1, 1, 2})
	require.NoError(t, err)
	bias, err := tensor.FromSlice([]float32{0, 10}, tensor.Shape{2, 1})
	require.NoError(t, err)

	y := tensor.Empty(tensor.Float32)
	require.NoError(t, op.Forward(x, filter, bias, y))
	assert.Equal(t, tensor.Shape{1, 1, 2}, y.Shape())
	assert.Equal(t, []float32{3, 11}, y.AsFloat32())

	dy, err := tensor.FromSlice([]float32{1, 1}, tensor.Shape{1, 1, 2})
	require.NoError(t, err)
	dx := tensor.Empty(tensor.Float32)
	require.NoError(t, op.Backward(x, filter, dy, Gradients{Input: dx}))
	assert.Equal(t, []float32{1, 3, -1}, dx.AsFloat32())
}

func TestOp_Errors(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	op, err := New(Config{Kernel: []int{2, 2}})
	require.NoError(t, err)

	x := randomTensor(t, rng, tensor.Shape{1, 2, 3, 3})
	filter := randomTensor(t, rng, tensor.Shape{2, 2, 1, 2, 2, 2})

	t.Run("bias_shape", func(t *testing.T) {
		bias := randomTensor(t, rng, tensor.Shape{2, 2, 2})
		err := op.Forward(x, filter, bias, tensor.Empty(tensor.Float64))
		var se *ShapeError
		require.True(t, errors.As(err, &se), "got %v", err)
		assert.Equal(t, "bias", se.Tensor)
		assert.Equal(t, 2, se.Dim)
	})

	t.Run("dtype", func(t *testing.T) {
		f32, err := tensor.NewRaw(tensor.Shape{2, 2, 1, 2, 2, 2}, tensor.Float32)
		require.NoError(t, err)
		err = op.Forward(x, f32, nil, tensor.Empty(tensor.Float64))
		assert.ErrorIs(t, err, ErrDTypeMismatch)
	})

	t.Run("dy_shape", func(t *testing.T) {
		dy := randomTensor(t, rng, tensor.Shape{1, 1, 3, 2})
		err := op.Backward(x, filter, dy, Gradients{Input: tensor.Empty(tensor.Float64)})
		assert.ErrorIs(t, err, ErrShapeMismatch)
	})

	t.Run("y_untouched_on_error", func(t *testing.T) {
		y := randomTensor(t, rng, tensor.Shape{4})
		before := y.Clone()
		bad := randomTensor(t, rng, tensor.Shape{2, 3, 1, 2, 2, 2})
		require.Error(t, op.Forward(x, bad, nil, y))
		assert.Equal(t, before.Shape(), y.Shape())
		assert.Equal(t, before.AsFloat64(), y.AsFloat64())
	})
}

func TestOp_NoBias(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	op, err := New(Config{Kernel: []int{2, 2}, NoBias: true})
	require.NoError(t, err)

	x := randomTensor(t, rng, tensor.Shape{1, 1, 3, 3})
	filter := randomTensor(t, rng, tensor.Shape{2, 2, 1, 1, 2, 2})
	bias := randomTensor(t, rng, tensor.Shape{2, 2, 1})

	err = op.Forward(x, filter, bias, tensor.Empty(tensor.Float64))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	y := tensor.Empty(tensor.Float64)
	require.NoError(t, op.Forward(x, filter, nil, y))

	dBias := tensor.Empty(tensor.Float64)
	dFilter := tensor.Empty(tensor.Float64)
	require.NoError(t, op.Backward(x, filter, y, Gradients{Filter: dFilter, Bias: dBias}))
	assert.Equal(t, 0, dBias.NumElements())
	assert.Equal(t, filter.Shape(), dFilter.Shape())
}

func TestOp_LogsPlanOnChange(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	rng := rand.New(rand.NewSource(4))
	op, err := New(Config{Kernel: []int{2}}, WithLogger(logger))
	require.NoError(t, err)

	filter := randomTensor(t, rng, tensor.Shape{2, 1, 1, 2})
	y := tensor.Empty(tensor.Float64)
	require.NoError(t, op.Forward(randomTensor(t, rng, tensor.Shape{1, 1, 3}), filter, nil, y))
	require.NoError(t, op.Forward(randomTensor(t, rng, tensor.Shape{1, 1, 3}), filter, nil, y))
	require.NoError(t, op.Forward(randomTensor(t, rng, tensor.Shape{4, 1, 3}), filter, nil, y))

	out := buf.String()
	assert.Equal(t, 2, strings.Count(out, "locally connected plan"), out)
	assert.Contains(t, out, "n=4")
}

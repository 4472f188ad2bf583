package lc_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/localconn/backend/cpu"
	"github.com/born-ml/localconn/lc"
	"github.com/born-ml/localconn/nn"
	"github.com/born-ml/localconn/optim"
	"github.com/born-ml/localconn/tensor"
)

// TestForwardBackward runs a 1-d layer by hand: two output positions, each
// with its own 2-tap filter.
func TestForwardBackward(t *testing.T) {
	op, err := lc.New(lc.Config{Kernel: []int{2}}, lc.WithParallel(lc.DefaultParallel()))
	require.NoError(t, err)

	x, err := tensor.FromSlice([]float64{1, 2, 3}, tensor.Shape{1, 1, 3})
	require.NoError(t, err)
	filter, err := tensor.FromSlice([]float64{1, 1, 1, -1}, tensor.Shape{2, 1, 1, 2})
	require.NoError(t, err)
	bias, err := tensor.FromSlice([]float64{10, 20}, tensor.Shape{2, 1})
	require.NoError(t, err)

	p, err := lc.Plan(op.Config(), x.Shape(), filter.Shape())
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{1, 1, 2}, p.YShape)

	y := tensor.Empty(tensor.Float64)
	require.NoError(t, op.Forward(x, filter, bias, y))
	assert.Equal(t, []float64{13, 19}, y.AsFloat64())

	dy, err := tensor.FromSlice([]float64{1, 1}, tensor.Shape{1, 1, 2})
	require.NoError(t, err)
	grads := lc.Gradients{
		Filter: tensor.Empty(tensor.Float64),
		Bias:   tensor.Empty(tensor.Float64),
		Input:  tensor.Empty(tensor.Float64),
	}
	require.NoError(t, op.Backward(x, filter, dy, grads))
	assert.Equal(t, []float64{1, 2, 2, 3}, grads.Filter.AsFloat64())
	assert.Equal(t, []float64{1, 1}, grads.Bias.AsFloat64())
	assert.Equal(t, []float64{1, 2, -1}, grads.Input.AsFloat64())
}

func TestErrors(t *testing.T) {
	_, err := lc.New(lc.Config{})
	assert.ErrorIs(t, err, lc.ErrInvalidConfig)

	op, err := lc.New(lc.Config{Kernel: []int{2}, PadMode: lc.PadValid})
	require.NoError(t, err)
	x, err := tensor.NewRaw(tensor.Shape{1, 1, 3}, tensor.Float64)
	require.NoError(t, err)
	filter, err := tensor.NewRaw(tensor.Shape{3, 1, 1, 2}, tensor.Float64)
	require.NoError(t, err)

	err = op.Forward(x, filter, nil, tensor.Empty(tensor.Float64))
	assert.ErrorIs(t, err, lc.ErrShapeMismatch)
	var shapeErr *lc.ShapeError
	assert.ErrorAs(t, err, &shapeErr)
}

func TestTrainingStep(t *testing.T) {
	layer, err := nn.NewLocallyConnected(nn.LocallyConnectedConfig{
		Layer:       lc.Config{Kernel: []int{2, 2}, Order: tensor.NHWC},
		InChannels:  2,
		OutChannels: 3,
		InputDims:   []int{3, 3},
		DType:       tensor.Float32,
		Seed:        3,
	})
	require.NoError(t, err)
	model := nn.NewSequential(layer, nn.NewReLU())
	opt := optim.NewSGD(model.Parameters(), optim.SGDConfig{LR: 0.05})

	x, err := tensor.NewRaw(tensor.Shape{1, 3, 3, 2}, tensor.Float32)
	require.NoError(t, err)
	for i := range x.AsFloat32() {
		x.AsFloat32()[i] = float32(i%5) - 2
	}
	target, err := tensor.NewRaw(tensor.Shape{1, 2, 2, 3}, tensor.Float32)
	require.NoError(t, err)

	y, err := model.Forward(x)
	require.NoError(t, err)
	loss, dy, err := nn.NewMSELoss().Forward(y, target)
	require.NoError(t, err)
	_, err = model.Backward(dy)
	require.NoError(t, err)
	require.NoError(t, opt.Step())
	opt.ZeroGrad()

	y, err = model.Forward(x)
	require.NoError(t, err)
	after, _, err := nn.NewMSELoss().Forward(y, target)
	require.NoError(t, err)
	assert.LessOrEqual(t, after, loss)
}

func TestCPUKernels(t *testing.T) {
	k := cpu.New[float32]()
	dst := make([]float32, 4)
	k.Transpose([]int{2, 2}, []int{1, 0}, []float32{1, 2, 3, 4}, dst)
	assert.Equal(t, []float32{1, 3, 2, 4}, dst)
}

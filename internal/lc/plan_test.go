package lc

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/localconn/internal/conv"
	"github.com/born-ml/localconn/internal/tensor"
)

func TestPlan_NCHW(t *testing.T) {
	cfg := Config{Kernel: []int{3, 3}, Pads: []int{1, 1, 1, 1}, Groups: 2}
	p, err := Plan(cfg, tensor.Shape{2, 4, 5, 6}, tensor.Shape{5, 6, 6, 2, 3, 3})
	require.NoError(t, err)

	assert.Equal(t, 2, p.N)
	assert.Equal(t, 4, p.C)
	assert.Equal(t, 6, p.M)
	assert.Equal(t, 2, p.Groups)
	assert.Equal(t, []int{5, 6}, p.InputImageDims)
	assert.Equal(t, []int{5, 6}, p.OutputImageDims)
	assert.Equal(t, 30, p.InputImageSize)
	assert.Equal(t, 30, p.OutputImageSize)
	assert.Equal(t, 18, p.KernelSize)

	assert.Equal(t, []int{2, 2, 18, 30}, p.ColumnDims)
	assert.Equal(t, []int{30, 2, 18, 2}, p.ColumnTransposedDims)
	assert.Equal(t, []int{3, 1, 2, 0}, p.ColumnAxes)
	assert.Equal(t, []int{2, 6, 30}, p.YDims)
	assert.Equal(t, []int{30, 6, 2}, p.YTransposedDims)
	assert.Equal(t, []int{2, 1, 0}, p.YAxes)

	assert.Equal(t, tensor.Shape{5, 6, 6}, p.BiasShape)
	assert.Equal(t, tensor.Shape{2, 6, 5, 6}, p.YShape)
}

func TestPlan_NHWC(t *testing.T) {
	cfg := Config{Kernel: []int{2, 2}, Stride: []int{2, 2}, Order: tensor.NHWC}
	p, err := Plan(cfg, tensor.Shape{2, 5, 6, 3}, tensor.Shape{2, 3, 4, 2, 2, 3})
	require.NoError(t, err)

	assert.Equal(t, 3, p.C)
	assert.Equal(t, 4, p.M)
	assert.Equal(t, []int{2, 3}, p.OutputImageDims)
	assert.Equal(t, 12, p.KernelSize)

	assert.Equal(t, []int{2, 6, 12}, p.ColumnDims)
	assert.Equal(t, []int{6, 2, 12}, p.ColumnTransposedDims)
	assert.Equal(t, []int{2, 6, 4}, p.YDims)
	assert.Equal(t, []int{6, 2, 4}, p.YTransposedDims)
	assert.Equal(t, tensor.Shape{2, 3, 4}, p.BiasShape)
	assert.Equal(t, tensor.Shape{2, 2, 3, 4}, p.YShape)
}

func TestPlan_SamePadding(t *testing.T) {
	cfg := Config{Kernel: []int{3, 3}, Stride: []int{2, 2}, PadMode: conv.PadSame}
	p, err := Plan(cfg, tensor.Shape{1, 1, 5, 6}, tensor.Shape{3, 3, 1, 1, 3, 3})
	require.NoError(t, err)

	assert.Equal(t, []int{3, 3}, p.OutputImageDims)
	// Odd total padding puts the extra element at the end.
	assert.Equal(t, []int{1, 0, 1, 1}, p.Window.Pads)
}

// TestPlan_ShapeClosure checks the size relations every plan must satisfy.
func TestPlan_ShapeClosure(t *testing.T) {
	for _, tc := range layerCases() {
		t.Run(tc.name, func(t *testing.T) {
			p, err := Plan(tc.cfg, tc.x, filterShapeFor(t, tc.cfg, tc.x, tc.m))
			require.NoError(t, err)

			n, o := p.N, p.OutputImageSize
			assert.Equal(t, n*p.C*p.InputImageSize, tensor.Product(p.XShape))
			assert.Equal(t, n*p.Groups*p.KernelSize*o, tensor.Product(p.ColumnDims))
			assert.Equal(t, tensor.Product(p.ColumnDims), tensor.Product(p.ColumnTransposedDims))
			assert.Equal(t, n*p.M*o, tensor.Product(p.YDims))
			assert.Equal(t, tensor.Product(p.YDims), p.YShape.NumElements())
			assert.Equal(t, o*p.M*p.KernelSize, p.FilterShape.NumElements())
			assert.Equal(t, o*p.M, p.BiasShape.NumElements())
			assert.Equal(t, p.ColumnTransposedDims, []int(tensor.Shape(p.ColumnDims).Permute(p.ColumnAxes)))
		})
	}
}

func TestPlan_Errors(t *testing.T) {
	tests := []struct {
		name   string
		cfg    Config
		x      tensor.Shape
		filter tensor.Shape
		want   error
		shape  *ShapeError
	}{
		{
			name:   "nhwc_1d_kernel",
			cfg:    Config{Kernel: []int{3}, Order: tensor.NHWC},
			x:      tensor.Shape{1, 5, 2},
			filter: tensor.Shape{3, 1, 3, 2},
			want:   ErrUnsupportedConfiguration,
		},
		{
			name:   "nhwc_groups",
			cfg:    Config{Kernel: []int{2, 2}, Groups: 2, Order: tensor.NHWC},
			x:      tensor.Shape{1, 3, 3, 2},
			filter: tensor.Shape{2, 2, 2, 2, 2, 1},
			want:   ErrUnsupportedConfiguration,
		},
		{
			name:   "negative_groups",
			cfg:    Config{Kernel: []int{2, 2}, Groups: -1},
			x:      tensor.Shape{1, 1, 3, 3},
			filter: tensor.Shape{2, 2, 1, 1, 2, 2},
			want:   ErrInvalidConfig,
		},
		{
			name:   "zero_stride",
			cfg:    Config{Kernel: []int{2, 2}, Stride: []int{0, 1}},
			x:      tensor.Shape{1, 1, 3, 3},
			filter: tensor.Shape{2, 2, 1, 1, 2, 2},
			want:   ErrInvalidConfig,
		},
		{
			name:   "x_rank",
			cfg:    Config{Kernel: []int{2, 2}},
			x:      tensor.Shape{1, 3, 3},
			filter: tensor.Shape{2, 2, 1, 1, 2, 2},
			want:   ErrShapeMismatch,
			shape:  &ShapeError{Tensor: "X", Dim: RankDim, Got: 3, Want: 4},
		},
		{
			name:   "filter_output_dim",
			cfg:    Config{Kernel: []int{2, 2}},
			x:      tensor.Shape{1, 1, 3, 3},
			filter: tensor.Shape{2, 3, 1, 1, 2, 2},
			want:   ErrShapeMismatch,
			shape:  &ShapeError{Tensor: "filter", Dim: 1, Got: 3, Want: 2},
		},
		{
			name:   "filter_channels_per_group",
			cfg:    Config{Kernel: []int{2, 2}, Groups: 2},
			x:      tensor.Shape{1, 4, 3, 3},
			filter: tensor.Shape{2, 2, 2, 4, 2, 2},
			want:   ErrShapeMismatch,
			shape:  &ShapeError{Tensor: "filter", Dim: 3, Got: 4, Want: 2},
		},
		{
			name:   "filter_kernel_dim",
			cfg:    Config{Kernel: []int{2, 2}},
			x:      tensor.Shape{1, 1, 3, 3},
			filter: tensor.Shape{2, 2, 1, 1, 2, 3},
			want:   ErrShapeMismatch,
			shape:  &ShapeError{Tensor: "filter", Dim: 5, Got: 3, Want: 2},
		},
		{
			name:   "output_channels_not_divisible",
			cfg:    Config{Kernel: []int{2, 2}, Groups: 2},
			x:      tensor.Shape{1, 2, 3, 3},
			filter: tensor.Shape{2, 2, 3, 1, 2, 2},
			want:   ErrShapeMismatch,
		},
		{
			name:   "nhwc_filter_channels",
			cfg:    Config{Kernel: []int{2, 2}, Order: tensor.NHWC},
			x:      tensor.Shape{1, 3, 3, 2},
			filter: tensor.Shape{2, 2, 1, 2, 2, 3},
			want:   ErrShapeMismatch,
			shape:  &ShapeError{Tensor: "filter", Dim: 5, Got: 3, Want: 2},
		},
		{
			name:   "input_smaller_than_kernel",
			cfg:    Config{Kernel: []int{4, 4}},
			x:      tensor.Shape{1, 1, 3, 3},
			filter: tensor.Shape{1, 1, 1, 1, 4, 4},
			want:   ErrShapeMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Plan(tt.cfg, tt.x, tt.filter)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)

			if tt.shape != nil {
				var se *ShapeError
				require.True(t, errors.As(err, &se), "got %v", err)
				assert.Equal(t, tt.shape, se)
			}
		})
	}
}

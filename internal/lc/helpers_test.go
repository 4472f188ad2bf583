package lc

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/born-ml/localconn/internal/backend/cpu"
	"github.com/born-ml/localconn/internal/conv"
	"github.com/born-ml/localconn/internal/parallel"
	"github.com/born-ml/localconn/internal/tensor"
)

// layerCase is one layer geometry exercised by several tests.
type layerCase struct {
	name string
	cfg  Config
	x    tensor.Shape
	m    int
}

func layerCases() []layerCase {
	return []layerCase{
		{
			name: "nchw_2d_groups",
			cfg: Config{
				Kernel: []int{3, 2}, Stride: []int{2, 1}, Dilation: []int{1, 2},
				Pads: []int{1, 0, 0, 1}, Groups: 2,
			},
			x: tensor.Shape{2, 4, 5, 6},
			m: 4,
		},
		{
			name: "nchw_1d",
			cfg:  Config{Kernel: []int{3}, Stride: []int{2}, Pads: []int{1, 1}},
			x:    tensor.Shape{3, 2, 7},
			m:    3,
		},
		{
			name: "nchw_3d_same",
			cfg:  Config{Kernel: []int{2, 2, 2}, Stride: []int{1, 2, 1}, PadMode: conv.PadSame},
			x:    tensor.Shape{1, 2, 3, 4, 3},
			m:    2,
		},
		{
			name: "nhwc_2d",
			cfg: Config{
				Kernel: []int{2, 3}, Stride: []int{1, 2}, Pads: []int{0, 1, 1, 0},
				Order: tensor.NHWC,
			},
			x: tensor.Shape{2, 4, 5, 3},
			m: 2,
		},
	}
}

// filterShapeFor builds the filter shape matching cfg, x and m output channels.
func filterShapeFor(t *testing.T, cfg Config, x tensor.Shape, m int) tensor.Shape {
	t.Helper()
	cfg = cfg.WithDefaults()
	inDims := cfg.Order.ImageDims(x)
	out, err := cfg.Window().Resolve(cfg.PadMode, inDims).OutputDims(inDims)
	require.NoError(t, err)

	shape := append(tensor.Shape{}, out...)
	shape = append(shape, m)
	c := cfg.Order.Channels(x)
	if cfg.Order == tensor.NHWC {
		shape = append(shape, cfg.Kernel...)
		return append(shape, c)
	}
	shape = append(shape, c/cfg.Groups)
	return append(shape, cfg.Kernel...)
}

func randomValues(rng *rand.Rand, n int) []float64 {
	v := make([]float64, n)
	for i := range v {
		v[i] = rng.Float64()*2 - 1
	}
	return v
}

func randomTensor(t *testing.T, rng *rand.Rand, shape tensor.Shape) *tensor.RawTensor {
	t.Helper()
	r, err := tensor.FromSlice(randomValues(rng, shape.NumElements()), shape)
	require.NoError(t, err)
	return r
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func unravel(flat int, dims []int) []int {
	idx := make([]int, len(dims))
	for d := len(dims) - 1; d >= 0; d-- {
		idx[d] = flat % dims[d]
		flat /= dims[d]
	}
	return idx
}

func sequentialKernels() *cpu.Kernels[float64] {
	return cpu.NewWithConfig[float64](parallel.Sequential())
}

// referenceForwardNCHW evaluates the layer by direct summation.
func referenceForwardNCHW(p ShapeParams, x, filter, bias []float64) []float64 {
	cpg := p.C / p.Groups
	mpg := p.M / p.Groups
	taps := p.Window.Size()
	inStrides := tensor.Shape(p.InputImageDims).ComputeStrides()
	o, in := p.OutputImageSize, p.InputImageSize

	y := make([]float64, p.YShape.NumElements())
	for n := 0; n < p.N; n++ {
		for m := 0; m < p.M; m++ {
			g := m / mpg
			for pos := 0; pos < o; pos++ {
				outIdx := unravel(pos, p.OutputImageDims)
				var sum float64
				for c := 0; c < cpg; c++ {
					for tap := 0; tap < taps; tap++ {
						kIdx := unravel(tap, p.Window.Kernel)
						off, inside := 0, true
						for d := range outIdx {
							at := outIdx[d]*p.Window.Stride[d] - p.Window.PadBegin(d) + kIdx[d]*p.Window.Dilation[d]
							if at < 0 || at >= p.InputImageDims[d] {
								inside = false
								break
							}
							off += at * inStrides[d]
						}
						if !inside {
							continue
						}
						xv := x[(n*p.C+g*cpg+c)*in+off]
						fv := filter[((pos*p.M+m)*cpg+c)*taps+tap]
						sum += xv * fv
					}
				}
				if bias != nil {
					sum += bias[pos*p.M+m]
				}
				y[(n*p.M+m)*o+pos] = sum
			}
		}
	}
	return y
}

// referenceForward handles NHWC by converting to channel-first and back.
func referenceForward(t *testing.T, cfg Config, p ShapeParams, x, filter, bias []float64) []float64 {
	t.Helper()
	if p.Order == tensor.NCHW {
		return referenceForwardNCHW(p, x, filter, bias)
	}

	k := sequentialKernels()
	xc := make([]float64, len(x))
	k.Transpose(p.XShape, []int{0, 3, 1, 2}, x, xc)
	fc := make([]float64, len(filter))
	k.Transpose(p.FilterShape, []int{0, 1, 2, 5, 3, 4}, filter, fc)

	nchw := cfg
	nchw.Order = tensor.NCHW
	pc, err := Plan(nchw, p.XShape.Permute([]int{0, 3, 1, 2}), p.FilterShape.Permute([]int{0, 1, 2, 5, 3, 4}))
	require.NoError(t, err)

	yc := referenceForwardNCHW(pc, xc, fc, bias)
	y := make([]float64, len(yc))
	k.Transpose(pc.YShape, []int{0, 2, 3, 1}, yc, y)
	return y
}

func newKernels32() *cpu.Kernels[float32] {
	return cpu.NewWithConfig[float32](parallel.Sequential())
}

package cpu

import (
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/localconn/internal/conv"
	"github.com/born-ml/localconn/internal/parallel"
	"github.com/born-ml/localconn/internal/tensor"
)

func window2D(kh, kw, stride int, pads ...int) conv.Window {
	if len(pads) == 0 {
		pads = []int{0, 0, 0, 0}
	}
	return conv.Window{
		Kernel:   []int{kh, kw},
		Stride:   []int{stride, stride},
		Dilation: []int{1, 1},
		Pads:     pads,
	}
}

func randomSlice(rng *rand.Rand, n int) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = rng.Float64()*2 - 1
	}
	return s
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

// TestIm2Col_NCHW unfolds a 3x3 image with a 2x2 kernel.
func TestIm2Col_NCHW(t *testing.T) {
	k := NewWithConfig[float32](parallel.Sequential())

	// 1 2 3
	// 4 5 6
	// 7 8 9
	src := []float32{1, 2, 3, 4, 5, 6, 7, 8, 9}
	dst := make([]float32, 4*4)

	k.Im2Col(tensor.NCHW, src, 1, []int{3, 3}, []int{2, 2}, window2D(2, 2, 1), dst)

	// One row per kernel tap, one column per output position.
	expected := []float32{
		1, 2, 4, 5, // tap (0,0)
		2, 3, 5, 6, // tap (0,1)
		4, 5, 7, 8, // tap (1,0)
		5, 6, 8, 9, // tap (1,1)
	}
	assert.Equal(t, expected, dst)
}

// TestIm2Col_NHWC checks the channel-last row layout with two channels.
func TestIm2Col_NHWC(t *testing.T) {
	k := NewWithConfig[float32](parallel.Sequential())

	// 2x2 image, channels interleaved: pixel p has values (p, 10+p).
	src := []float32{0, 10, 1, 11, 2, 12, 3, 13}
	dst := make([]float32, 1*2*2*2)

	k.Im2Col(tensor.NHWC, src, 2, []int{2, 2}, []int{1, 1}, window2D(2, 2, 1), dst)

	assert.Equal(t, []float32{0, 10, 1, 11, 2, 12, 3, 13}, dst)
}

// TestIm2Col_Padding checks that taps in the pad region read as zero.
func TestIm2Col_Padding(t *testing.T) {
	k := NewWithConfig[float64](parallel.Sequential())

	src := []float64{1, 2, 3, 4}
	w := window2D(2, 2, 1, 1, 1, 0, 0)
	out, err := w.OutputDims([]int{2, 2})
	require.NoError(t, err)
	require.Equal(t, []int{2, 2}, out)

	dst := make([]float64, 4*4)
	for i := range dst {
		dst[i] = -1
	}
	k.Im2Col(tensor.NCHW, src, 1, []int{2, 2}, out, w, dst)

	expected := []float64{
		0, 0, 0, 1, // tap (0,0)
		0, 0, 1, 2, // tap (0,1)
		0, 1, 0, 3, // tap (1,0)
		1, 2, 3, 4, // tap (1,1)
	}
	assert.Equal(t, expected, dst)
}

// TestIm2Col_LayoutsAgree compares NCHW and NHWC unfolding of the same image
// after reordering rows and columns.
func TestIm2Col_LayoutsAgree(t *testing.T) {
	k := NewWithConfig[float64](parallel.Sequential())
	rng := rand.New(rand.NewSource(7))

	const c, h, wd = 3, 5, 4
	w := conv.Window{Kernel: []int{2, 3}, Stride: []int{2, 1}, Dilation: []int{1, 2}, Pads: []int{1, 0, 0, 2}}
	out, err := w.OutputDims([]int{h, wd})
	require.NoError(t, err)
	outSize := out[0] * out[1]
	taps := w.Size()

	nchw := randomSlice(rng, c*h*wd)
	nhwc := make([]float64, len(nchw))
	k.Transpose([]int{c, h, wd}, []int{1, 2, 0}, nchw, nhwc)

	colNCHW := make([]float64, c*taps*outSize)
	colNHWC := make([]float64, c*taps*outSize)
	k.Im2Col(tensor.NCHW, nchw, c, []int{h, wd}, out, w, colNCHW)
	k.Im2Col(tensor.NHWC, nhwc, c, []int{h, wd}, out, w, colNHWC)

	for ch := 0; ch < c; ch++ {
		for tap := 0; tap < taps; tap++ {
			for pos := 0; pos < outSize; pos++ {
				a := colNCHW[(ch*taps+tap)*outSize+pos]
				b := colNHWC[pos*taps*c+tap*c+ch]
				require.Equal(t, a, b, "channel %d tap %d pos %d", ch, tap, pos)
			}
		}
	}
}

// TestIm2ColNd_MatchesIm2Col checks the generic path against the 2-d one.
func TestIm2ColNd_MatchesIm2Col(t *testing.T) {
	k := New[float64]()
	rng := rand.New(rand.NewSource(11))

	const c = 2
	dims := []int{6, 5}
	w := conv.Window{Kernel: []int{3, 2}, Stride: []int{1, 2}, Dilation: []int{2, 1}, Pads: []int{1, 1, 2, 0}}
	out, err := w.OutputDims(dims)
	require.NoError(t, err)

	src := randomSlice(rng, c*30)
	want := make([]float64, c*w.Size()*out[0]*out[1])
	got := make([]float64, len(want))
	k.Im2Col(tensor.NCHW, src, c, dims, out, w, want)
	k.Im2ColNd(src, c, dims, out, w, got)

	assert.Equal(t, want, got)
}

// TestIm2ColNd_1D unfolds a sequence.
func TestIm2ColNd_1D(t *testing.T) {
	k := NewWithConfig[float32](parallel.Sequential())

	w := conv.Window{Kernel: []int{2}, Stride: []int{2}, Dilation: []int{1}, Pads: []int{0, 1}}
	out, err := w.OutputDims([]int{5})
	require.NoError(t, err)
	require.Equal(t, []int{3}, out)

	dst := make([]float32, 2*3)
	k.Im2ColNd([]float32{1, 2, 3, 4, 5}, 1, []int{5}, out, w, dst)

	assert.Equal(t, []float32{1, 3, 5, 2, 4, 0}, dst)
}

// TestCol2Im_Adjoint checks <im2col(x), c> == <x, col2im(c)> for every path.
func TestCol2Im_Adjoint(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	k := New[float64]()

	w2 := conv.Window{Kernel: []int{3, 2}, Stride: []int{1, 2}, Dilation: []int{1, 1}, Pads: []int{1, 0, 1, 1}}
	w3 := conv.Window{Kernel: []int{2, 2, 2}, Stride: []int{1, 1, 2}, Dilation: []int{1, 2, 1}, Pads: []int{0, 1, 0, 1, 0, 1}}

	tests := []struct {
		name     string
		channels int
		dims     []int
		w        conv.Window
		unfold   func(src []float64, channels int, dims, out []int, w conv.Window, dst []float64)
		fold     func(src []float64, channels int, dims, out []int, w conv.Window, dst []float64)
	}{
		{
			name: "nchw", channels: 3, dims: []int{5, 6}, w: w2,
			unfold: func(s []float64, c int, d, o []int, w conv.Window, dst []float64) { k.Im2Col(tensor.NCHW, s, c, d, o, w, dst) },
			fold:   func(s []float64, c int, d, o []int, w conv.Window, dst []float64) { k.Col2Im(tensor.NCHW, s, c, d, o, w, dst) },
		},
		{
			name: "nhwc", channels: 3, dims: []int{5, 6}, w: w2,
			unfold: func(s []float64, c int, d, o []int, w conv.Window, dst []float64) { k.Im2Col(tensor.NHWC, s, c, d, o, w, dst) },
			fold:   func(s []float64, c int, d, o []int, w conv.Window, dst []float64) { k.Col2Im(tensor.NHWC, s, c, d, o, w, dst) },
		},
		{
			name: "nd", channels: 2, dims: []int{3, 4, 5}, w: w3,
			unfold: k.Im2ColNd,
			fold:   k.Col2ImNd,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := tt.w.OutputDims(tt.dims)
			require.NoError(t, err)

			imageLen := tt.channels * tensor.Product(tt.dims)
			colLen := tt.channels * tt.w.Size() * tensor.Product(out)

			x := randomSlice(rng, imageLen)
			c := randomSlice(rng, colLen)

			unfolded := make([]float64, colLen)
			tt.unfold(x, tt.channels, tt.dims, out, tt.w, unfolded)

			folded := randomSlice(rng, imageLen) // overwritten, not accumulated into
			tt.fold(c, tt.channels, tt.dims, out, tt.w, folded)

			assert.InDelta(t, dot(unfolded, c), dot(x, folded), 1e-9)
		})
	}
}

// TestCol2Im_OverlapAccumulates folds all-ones columns: each pixel receives
// the number of windows covering it.
func TestCol2Im_OverlapAccumulates(t *testing.T) {
	k := NewWithConfig[float32](parallel.Sequential())

	cols := make([]float32, 4*4)
	for i := range cols {
		cols[i] = 1
	}
	img := make([]float32, 9)
	k.Col2Im(tensor.NCHW, cols, 1, []int{3, 3}, []int{2, 2}, window2D(2, 2, 1), img)

	expected := []float32{
		1, 2, 1,
		2, 4, 2,
		1, 2, 1,
	}
	if diff := cmp.Diff(expected, img, cmpopts.EquateApprox(0, 1e-6)); diff != "" {
		t.Errorf("col2im mismatch (-want +got):\n%s", diff)
	}
}

func TestIm2Col_PanicsOnShortBuffer(t *testing.T) {
	k := New[float32]()
	assert.Panics(t, func() {
		k.Im2Col(tensor.NCHW, make([]float32, 9), 1, []int{3, 3}, []int{2, 2}, window2D(2, 2, 1), make([]float32, 3))
	})
	assert.Panics(t, func() {
		k.Im2Col(tensor.NCHW, make([]float32, 27), 1, []int{3, 3, 3}, []int{2, 2, 2}, window2D(2, 2, 1), make([]float32, 64))
	})
}

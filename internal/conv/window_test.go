package conv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func window1D(k, s, d, padBegin, padEnd int) Window {
	return Window{Kernel: []int{k}, Stride: []int{s}, Dilation: []int{d}, Pads: []int{padBegin, padEnd}}
}

func TestOutputDims(t *testing.T) {
	tests := []struct {
		name string
		w    Window
		in   []int
		want []int
	}{
		{"unit stride", window1D(3, 1, 1, 0, 0), []int{5}, []int{3}},
		{"strided padded", window1D(3, 2, 1, 1, 1), []int{7}, []int{4}},
		{"dilated", window1D(3, 1, 2, 0, 0), []int{5}, []int{1}},
		{"asymmetric pads", window1D(2, 1, 1, 0, 1), []int{3}, []int{3}},
		{
			"2-d",
			Window{Kernel: []int{3, 2}, Stride: []int{1, 2}, Dilation: []int{1, 1}, Pads: []int{1, 0, 1, 0}},
			[]int{4, 6},
			[]int{4, 3},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, tt.w.Validate())
			got, err := tt.w.OutputDims(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOutputDims_Errors(t *testing.T) {
	_, err := window1D(3, 1, 1, 0, 0).OutputDims([]int{2})
	assert.ErrorIs(t, err, ErrWindow)

	_, err = window1D(3, 1, 1, 0, 0).OutputDims([]int{4, 4})
	assert.ErrorIs(t, err, ErrWindow)
}

func TestValidate(t *testing.T) {
	bad := []Window{
		{},
		{Kernel: []int{3}, Stride: []int{1, 1}, Dilation: []int{1}, Pads: []int{0, 0}},
		{Kernel: []int{3}, Stride: []int{1}, Dilation: []int{1}, Pads: []int{0}},
		window1D(0, 1, 1, 0, 0),
		window1D(3, 0, 1, 0, 0),
		window1D(3, 1, 1, -1, 0),
	}
	for i, w := range bad {
		assert.ErrorIs(t, w.Validate(), ErrWindow, "case %d", i)
	}
}

func TestResolve(t *testing.T) {
	w := window1D(3, 2, 1, 5, 5)

	valid := w.Resolve(PadValid, []int{7})
	assert.Equal(t, []int{0, 0}, valid.Pads)

	explicit := w.Resolve(PadExplicit, []int{7})
	assert.Equal(t, []int{5, 5}, explicit.Pads)

	same := w.Resolve(PadSame, []int{7})
	assert.Equal(t, []int{1, 1}, same.Pads)
	out, err := same.OutputDims([]int{7})
	require.NoError(t, err)
	assert.Equal(t, []int{4}, out)

	// Odd padding puts the extra element at the end.
	odd := window1D(4, 1, 1, 0, 0).Resolve(PadSame, []int{6})
	assert.Equal(t, []int{1, 2}, odd.Pads)
	out, err = odd.OutputDims([]int{6})
	require.NoError(t, err)
	assert.Equal(t, []int{6}, out)

	// Resolve does not alias the receiver.
	same.Kernel[0] = 9
	assert.Equal(t, 3, w.Kernel[0])
}

func TestParsePadMode(t *testing.T) {
	for s, want := range map[string]PadMode{"": PadExplicit, "explicit": PadExplicit, "valid": PadValid, "same": PadSame} {
		got, err := ParsePadMode(s)
		require.NoError(t, err)
		assert.Equal(t, want, got)
		if s != "" {
			assert.Equal(t, s, got.String())
		}
	}
	_, err := ParsePadMode("full")
	assert.Error(t, err)
}

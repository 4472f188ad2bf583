// Package conv holds the sliding-window arithmetic shared by the unfold/fold
// kernels and the locally-connected shape planner.
package conv

import (
	"errors"
	"fmt"
)

// ErrWindow reports a window that cannot produce a positive output extent.
var ErrWindow = errors.New("invalid sliding window")

// PadMode selects how pads are derived.
type PadMode int

// Pad modes.
const (
	// PadExplicit uses Window.Pads as given.
	PadExplicit PadMode = iota
	// PadValid uses no padding at all.
	PadValid
	// PadSame pads so that out = ceil(in / stride), extra pad going to the end.
	PadSame
)

// String returns the lowercase mode name.
func (m PadMode) String() string {
	switch m {
	case PadExplicit:
		return "explicit"
	case PadValid:
		return "valid"
	case PadSame:
		return "same"
	default:
		return "unknown"
	}
}

// ParsePadMode accepts "explicit", "valid" and "same".
func ParsePadMode(s string) (PadMode, error) {
	switch s {
	case "", "explicit":
		return PadExplicit, nil
	case "valid":
		return PadValid, nil
	case "same":
		return PadSame, nil
	default:
		return PadExplicit, fmt.Errorf("unknown pad mode %q", s)
	}
}

// Window describes an N-d sliding window.
//
// Pads follows the [begin_0 .. begin_{n-1}, end_0 .. end_{n-1}] convention.
type Window struct {
	Kernel   []int
	Stride   []int
	Dilation []int
	Pads     []int
}

// NDim returns the number of spatial dimensions.
func (w Window) NDim() int { return len(w.Kernel) }

// PadBegin returns the leading pad of dimension i.
func (w Window) PadBegin(i int) int { return w.Pads[i] }

// PadEnd returns the trailing pad of dimension i.
func (w Window) PadEnd(i int) int { return w.Pads[len(w.Kernel)+i] }

// Extent returns the dilated kernel extent of dimension i.
func (w Window) Extent(i int) int { return w.Dilation[i]*(w.Kernel[i]-1) + 1 }

// Size returns the product of the kernel dims.
func (w Window) Size() int {
	n := 1
	for _, k := range w.Kernel {
		n *= k
	}
	return n
}

// Validate checks that every per-dimension list is consistent and positive.
func (w Window) Validate() error {
	n := len(w.Kernel)
	if n == 0 {
		return fmt.Errorf("%w: empty kernel", ErrWindow)
	}
	if len(w.Stride) != n || len(w.Dilation) != n {
		return fmt.Errorf("%w: kernel rank %d, stride rank %d, dilation rank %d",
			ErrWindow, n, len(w.Stride), len(w.Dilation))
	}
	if len(w.Pads) != 2*n {
		return fmt.Errorf("%w: want %d pads, got %d", ErrWindow, 2*n, len(w.Pads))
	}
	for i := 0; i < n; i++ {
		if w.Kernel[i] <= 0 || w.Stride[i] <= 0 || w.Dilation[i] <= 0 {
			return fmt.Errorf("%w: dim %d has kernel=%d stride=%d dilation=%d",
				ErrWindow, i, w.Kernel[i], w.Stride[i], w.Dilation[i])
		}
	}
	for i, p := range w.Pads {
		if p < 0 {
			return fmt.Errorf("%w: negative pad %d at index %d", ErrWindow, p, i)
		}
	}
	return nil
}

// Resolve returns a copy of w whose pads are computed for mode and the given
// input spatial dims.
func (w Window) Resolve(mode PadMode, inputDims []int) Window {
	out := Window{
		Kernel:   append([]int(nil), w.Kernel...),
		Stride:   append([]int(nil), w.Stride...),
		Dilation: append([]int(nil), w.Dilation...),
		Pads:     make([]int, 2*len(w.Kernel)),
	}
	switch mode {
	case PadValid:
	case PadSame:
		n := len(w.Kernel)
		for i := 0; i < n; i++ {
			target := (inputDims[i] + w.Stride[i] - 1) / w.Stride[i]
			needed := max((target-1)*w.Stride[i]+w.Extent(i)-inputDims[i], 0)
			out.Pads[i] = needed / 2
			out.Pads[n+i] = needed - needed/2
		}
	default:
		copy(out.Pads, w.Pads)
	}
	return out
}

// OutputDims applies the window to inputDims:
//
//	out_i = (in_i + pad_begin_i + pad_end_i - extent_i) / stride_i + 1
func (w Window) OutputDims(inputDims []int) ([]int, error) {
	if len(inputDims) != len(w.Kernel) {
		return nil, fmt.Errorf("%w: %d-d kernel on %d-d image", ErrWindow, len(w.Kernel), len(inputDims))
	}
	out := make([]int, len(inputDims))
	for i, in := range inputDims {
		padded := in + w.PadBegin(i) + w.PadEnd(i)
		if padded < w.Extent(i) {
			return nil, fmt.Errorf("%w: dim %d: padded input %d smaller than kernel extent %d",
				ErrWindow, i, padded, w.Extent(i))
		}
		out[i] = (padded-w.Extent(i))/w.Stride[i] + 1
	}
	return out, nil
}

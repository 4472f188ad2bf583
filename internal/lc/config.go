package lc

import (
	"fmt"

	"github.com/born-ml/localconn/internal/conv"
	"github.com/born-ml/localconn/internal/tensor"
)

// Config holds the locally-connected layer hyper-parameters.
//
// Only Kernel is required; WithDefaults fills stride and dilation with 1,
// pads with 0 and groups with 1. Pads follow the
// [begin_0 .. begin_{n-1}, end_0 .. end_{n-1}] convention and are only read
// when PadMode is conv.PadExplicit.
type Config struct {
	Kernel   []int
	Stride   []int
	Dilation []int
	Pads     []int
	PadMode  conv.PadMode
	Groups   int
	Order    tensor.StorageOrder
	NoBias   bool
}

// WithDefaults returns a copy of c with unset fields defaulted.
func (c Config) WithDefaults() Config {
	n := len(c.Kernel)
	out := c
	out.Kernel = append([]int(nil), c.Kernel...)
	out.Stride = fill(c.Stride, n, 1)
	out.Dilation = fill(c.Dilation, n, 1)
	out.Pads = fill(c.Pads, 2*n, 0)
	if out.Groups == 0 {
		out.Groups = 1
	}
	return out
}

func fill(s []int, n, v int) []int {
	if len(s) > 0 {
		return append([]int(nil), s...)
	}
	out := make([]int, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// Validate checks the scalar parts of the config. Shape-dependent checks
// happen in Plan.
func (c Config) Validate() error {
	if c.Groups <= 0 {
		return fmt.Errorf("%w: groups must be positive, got %d", ErrInvalidConfig, c.Groups)
	}
	if c.Order != tensor.NCHW && c.Order != tensor.NHWC {
		return fmt.Errorf("%w: unknown storage order %d", ErrInvalidConfig, int(c.Order))
	}
	switch c.PadMode {
	case conv.PadExplicit, conv.PadValid, conv.PadSame:
	default:
		return fmt.Errorf("%w: unknown pad mode %d", ErrInvalidConfig, int(c.PadMode))
	}
	if err := c.Window().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// Window returns the sliding window described by the config.
func (c Config) Window() conv.Window {
	return conv.Window{
		Kernel:   c.Kernel,
		Stride:   c.Stride,
		Dilation: c.Dilation,
		Pads:     c.Pads,
	}
}

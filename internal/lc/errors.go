package lc

import (
	"errors"
	"fmt"
)

// Common errors.
var (
	ErrShapeMismatch            = errors.New("shape mismatch")
	ErrUnsupportedConfiguration = errors.New("unsupported configuration")
	ErrInvalidConfig            = errors.New("invalid config")
	ErrDTypeMismatch            = errors.New("data type mismatch")
)

// RankDim is the ShapeError.Dim value used when the tensor rank is wrong.
const RankDim = -1

// ShapeError describes a single dimension that does not match what the
// layer expects. It unwraps to ErrShapeMismatch.
type ShapeError struct {
	Tensor string // "X", "filter", "bias", "dY", ...
	Dim    int    // Axis index, or RankDim
	Got    int
	Want   int
}

// Error implements the error interface.
func (e *ShapeError) Error() string {
	if e.Dim == RankDim {
		return fmt.Sprintf("%s: %s has rank %d, want %d", ErrShapeMismatch, e.Tensor, e.Got, e.Want)
	}
	return fmt.Sprintf("%s: %s dim %d is %d, want %d", ErrShapeMismatch, e.Tensor, e.Dim, e.Got, e.Want)
}

// Unwrap returns ErrShapeMismatch.
func (e *ShapeError) Unwrap() error {
	return ErrShapeMismatch
}

// checkShape compares a whole shape and reports the first differing axis.
func checkShape(name string, got, want []int) error {
	if len(got) != len(want) {
		return &ShapeError{Tensor: name, Dim: RankDim, Got: len(got), Want: len(want)}
	}
	for i := range want {
		if got[i] != want[i] {
			return &ShapeError{Tensor: name, Dim: i, Got: got[i], Want: want[i]}
		}
	}
	return nil
}

// checkLen validates a flat buffer length against the planned element count.
func checkLen(name string, got, want int) error {
	if got != want {
		return fmt.Errorf("%w: %s has %d elements, want %d", ErrShapeMismatch, name, got, want)
	}
	return nil
}

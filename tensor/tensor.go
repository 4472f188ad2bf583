// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"github.com/born-ml/localconn/internal/tensor"
)

// RawTensor is a contiguous row-major buffer with a shape and a runtime
// element type.
type RawTensor = tensor.RawTensor

// Shape represents the dimensions of a tensor.
type Shape = tensor.Shape

// DataType is the runtime element type of a RawTensor.
type DataType = tensor.DataType

// Float is the constraint for element types the kernels support.
type Float = tensor.Float

// StorageOrder selects where the channel axis lives in an image tensor.
type StorageOrder = tensor.StorageOrder

// Supported data types.
const (
	Float32 = tensor.Float32
	Float64 = tensor.Float64
)

// Supported storage orders.
const (
	NCHW = tensor.NCHW
	NHWC = tensor.NHWC
)

// NewRaw creates a zero-filled tensor.
func NewRaw(shape Shape, dtype DataType) (*RawTensor, error) {
	return tensor.NewRaw(shape, dtype)
}

// Empty returns a tensor without storage, for use as an output buffer.
func Empty(dtype DataType) *RawTensor {
	return tensor.Empty(dtype)
}

// FromSlice creates a tensor holding a copy of data.
//
// Example:
//
//	bias, err := tensor.FromSlice([]float64{0, 0, 0}, tensor.Shape{1, 1, 3})
func FromSlice[T Float](data []T, shape Shape) (*RawTensor, error) {
	return tensor.FromSlice(data, shape)
}

// ParseStorageOrder accepts "NCHW" or "NHWC" in any case.
func ParseStorageOrder(s string) (StorageOrder, error) {
	return tensor.ParseStorageOrder(s)
}

// ParseDataType accepts "float32" or "float64".
func ParseDataType(s string) (DataType, error) {
	return tensor.ParseDataType(s)
}

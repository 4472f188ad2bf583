// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the raw tensor buffers used by the
// locally-connected layer.
//
// # Overview
//
// A RawTensor is a contiguous row-major buffer with a Shape and a runtime
// DataType (Float32 or Float64). Image tensors are laid out in one of two
// storage orders:
//   - NCHW: [batch, channels, spatial...]
//   - NHWC: [batch, spatial..., channels]
//
// # Basic Usage
//
//	import "github.com/born-ml/localconn/tensor"
//
//	func main() {
//	    x, _ := tensor.FromSlice([]float32{1, 2, 3, 4}, tensor.Shape{1, 1, 2, 2})
//	    y := tensor.Empty(tensor.Float32) // resized by the operator
//	    _ = x.AsFloat32()
//	}
package tensor

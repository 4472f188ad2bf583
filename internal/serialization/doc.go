// Package serialization reads and writes layer state dicts in the
// SafeTensors format:
//
//	[8 bytes: header size (uint64 LE)]
//	[header: JSON, tensor entries plus optional "__metadata__"]
//	[tensor data: raw little-endian bytes, entries in name order]
//
// Supported dtypes are F32 and F64. Writers can store float tensors as F16
// to halve checkpoint size; readers widen F16 back to float32.
//
// Example usage:
//
//	err := serialization.WriteSafeTensors("layer.safetensors", layer.StateDict(),
//	    map[string]string{"step": "100"}, serialization.WithHalfPrecision())
//
//	state, meta, err := serialization.ReadSafeTensors("layer.safetensors")
//	err = layer.LoadStateDict(state)
package serialization

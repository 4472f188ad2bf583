package serialization

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/x448/float16"

	"github.com/born-ml/localconn/internal/tensor"
)

// SafeTensorHeader represents a tensor in the SafeTensors header.
type SafeTensorHeader struct {
	DType       string   `json:"dtype"`
	Shape       []int64  `json:"shape"`
	DataOffsets [2]int64 `json:"data_offsets"`
}

// WriteOption configures WriteSafeTensors.
type WriteOption func(*writeOptions)

type writeOptions struct {
	half bool
}

// WithHalfPrecision stores every tensor as F16.
func WithHalfPrecision() WriteOption {
	return func(o *writeOptions) {
		o.half = true
	}
}

// WriteSafeTensors writes tensors to a SafeTensors file.
//
// Tensors are written in alphabetical order by name. The hex SHA-256 of the
// data section is added to the metadata under ChecksumKey.
func WriteSafeTensors(path string, tensors map[string]*tensor.RawTensor, metadata map[string]string, opts ...WriteOption) (err error) {
	var o writeOptions
	for _, opt := range opts {
		opt(&o)
	}

	header, data, err := encodeSafeTensors(tensors, metadata, o)
	if err != nil {
		return err
	}

	//nolint:gosec // G304: File path comes from user input, which is expected for model saving
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	if err := binary.Write(file, binary.LittleEndian, uint64(len(header))); err != nil {
		return fmt.Errorf("failed to write header size: %w", err)
	}
	if _, err := file.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if _, err := file.Write(data); err != nil {
		return fmt.Errorf("failed to write tensor data: %w", err)
	}
	return nil
}

// encodeSafeTensors builds the JSON header and the data section.
func encodeSafeTensors(tensors map[string]*tensor.RawTensor, metadata map[string]string, o writeOptions) ([]byte, []byte, error) {
	names := make([]string, 0, len(tensors))
	for name := range tensors {
		if err := ValidateTensorName(name); err != nil {
			return nil, nil, err
		}
		names = append(names, name)
	}
	sort.Strings(names)

	header := make(map[string]any, len(names)+1)
	var data []byte
	for _, name := range names {
		raw := tensors[name]
		start := int64(len(data))
		dtype, encoded, err := encodeTensor(data, raw, o.half)
		if err != nil {
			return nil, nil, fmt.Errorf("tensor %q: %w", name, err)
		}
		data = encoded

		shape := make([]int64, len(raw.Shape()))
		for i, dim := range raw.Shape() {
			shape[i] = int64(dim)
		}
		header[name] = SafeTensorHeader{
			DType:       dtype,
			Shape:       shape,
			DataOffsets: [2]int64{start, int64(len(data))},
		}
	}

	meta := make(map[string]string, len(metadata)+1)
	for k, v := range metadata {
		meta[k] = v
	}
	sum := ComputeChecksum(data)
	meta[ChecksumKey] = hex.EncodeToString(sum[:])
	header["__metadata__"] = meta

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal header: %w", err)
	}
	return headerJSON, data, nil
}

// encodeTensor appends raw's values in little-endian order and returns the
// SafeTensors dtype used.
func encodeTensor(dst []byte, raw *tensor.RawTensor, half bool) (string, []byte, error) {
	switch raw.DType() {
	case tensor.Float32:
		values := raw.AsFloat32()
		if half {
			for _, v := range values {
				dst = binary.LittleEndian.AppendUint16(dst, float16.Fromfloat32(v).Bits())
			}
			return "F16", dst, nil
		}
		for _, v := range values {
			dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(v))
		}
		return "F32", dst, nil
	case tensor.Float64:
		values := raw.AsFloat64()
		if half {
			for _, v := range values {
				dst = binary.LittleEndian.AppendUint16(dst, float16.Fromfloat32(float32(v)).Bits())
			}
			return "F16", dst, nil
		}
		for _, v := range values {
			dst = binary.LittleEndian.AppendUint64(dst, math.Float64bits(v))
		}
		return "F64", dst, nil
	default:
		return "", nil, fmt.Errorf("%w: %s", ErrUnsupportedDType, raw.DType())
	}
}

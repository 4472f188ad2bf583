package serialization

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/bits"
	"os"

	"github.com/x448/float16"

	"github.com/born-ml/localconn/internal/tensor"
)

// safeTensorsHeader is the parsed JSON header.
type safeTensorsHeader struct {
	Metadata map[string]string
	Tensors  map[string]SafeTensorHeader
}

// UnmarshalJSON splits "__metadata__" from the tensor entries.
func (h *safeTensorsHeader) UnmarshalJSON(data []byte) error {
	var rawMap map[string]json.RawMessage
	if err := json.Unmarshal(data, &rawMap); err != nil {
		return err
	}

	if metadataRaw, ok := rawMap["__metadata__"]; ok {
		if err := json.Unmarshal(metadataRaw, &h.Metadata); err != nil {
			return fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	h.Tensors = make(map[string]SafeTensorHeader, len(rawMap))
	for key, value := range rawMap {
		if key == "__metadata__" {
			continue
		}
		var info SafeTensorHeader
		if err := json.Unmarshal(value, &info); err != nil {
			return fmt.Errorf("failed to unmarshal tensor %s: %w", key, err)
		}
		h.Tensors[key] = info
	}
	return nil
}

// ReadSafeTensors loads every tensor of a SafeTensors file. F16 tensors are
// widened to float32. When the metadata carries a checksum it is verified.
func ReadSafeTensors(path string) (map[string]*tensor.RawTensor, map[string]string, error) {
	//nolint:gosec // G304: File path comes from user input, which is expected for model loading
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() {
		_ = file.Close() // read-only
	}()

	var headerSize uint64
	if err := binary.Read(file, binary.LittleEndian, &headerSize); err != nil {
		return nil, nil, fmt.Errorf("failed to read header size: %w", err)
	}
	if headerSize > MaxHeaderSize {
		return nil, nil, fmt.Errorf("%w: %d bytes", ErrHeaderTooLarge, headerSize)
	}

	headerBytes := make([]byte, headerSize)
	if _, err := io.ReadFull(file, headerBytes); err != nil {
		return nil, nil, fmt.Errorf("failed to read header: %w", err)
	}
	var header safeTensorsHeader
	if err := json.Unmarshal(headerBytes, &header); err != nil {
		return nil, nil, fmt.Errorf("failed to parse header JSON: %w", err)
	}

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read tensor data: %w", err)
	}
	if stored, ok := header.Metadata[ChecksumKey]; ok {
		if err := ValidateChecksum(data, stored); err != nil {
			return nil, nil, err
		}
	}

	metas := make([]TensorMeta, 0, len(header.Tensors))
	for name, info := range header.Tensors {
		if err := ValidateTensorName(name); err != nil {
			return nil, nil, err
		}
		metas = append(metas, TensorMeta{
			Name:   name,
			Offset: info.DataOffsets[0],
			Size:   info.DataOffsets[1] - info.DataOffsets[0],
		})
	}
	if err := ValidateTensorOffsets(metas, int64(len(data))); err != nil {
		return nil, nil, err
	}

	tensors := make(map[string]*tensor.RawTensor, len(header.Tensors))
	for name, info := range header.Tensors {
		raw, err := decodeTensor(info, data[info.DataOffsets[0]:info.DataOffsets[1]])
		if err != nil {
			return nil, nil, fmt.Errorf("tensor %q: %w", name, err)
		}
		tensors[name] = raw
	}
	return tensors, header.Metadata, nil
}

// decodeTensor converts one little-endian data region into a RawTensor.
func decodeTensor(info SafeTensorHeader, data []byte) (*tensor.RawTensor, error) {

	var dtype tensor.DataType
	var width int
	switch info.DType {
	case "F16":
		dtype, width = tensor.Float32, 2
	case "F32":
		dtype, width = tensor.Float32, 4
	case "F64":
		dtype, width = tensor.Float64, 8
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDType, info.DType)
	}

	size, ok := byteSize(info.Shape, width)
	if !ok || size != uint64(len(data)) {
		return nil, fmt.Errorf("%w: %d bytes for shape %v (%s)", ErrSizeMismatch, len(data), info.Shape, info.DType)
	}
	shape := make(tensor.Shape, len(info.Shape))
	for i, dim := range info.Shape {
		shape[i] = int(dim)
	}
	raw, err := tensor.NewRaw(shape, dtype)
	if err != nil {
		return nil, err
	}

	switch info.DType {
	case "F16":
		out := raw.AsFloat32()
		for i := range out {
			out[i] = float16.Frombits(binary.LittleEndian.Uint16(data[2*i:])).Float32()
		}
	case "F32":
		out := raw.AsFloat32()
		for i := range out {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
		}
	case "F64":
		out := raw.AsFloat64()
		for i := range out {
			out[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[8*i:]))
		}
	}
	return raw, nil
}

// byteSize returns the storage size of shape at width bytes per element.
// ok is false for negative dims and when the size does not fit in an int.
func byteSize(shape []int64, width int) (size uint64, ok bool) {
	size = uint64(width)
	for _, dim := range shape {
		if dim < 0 {
			return 0, false
		}
		hi, lo := bits.Mul64(size, uint64(dim))
		if hi != 0 || lo > math.MaxInt {
			return 0, false
		}
		size = lo
	}
	return size, true
}

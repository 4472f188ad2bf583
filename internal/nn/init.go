package nn

import (
	"math"
	"math/rand"

	"github.com/born-ml/localconn/internal/tensor"
)

// Xavier (Glorot) initialization for weights.
//
// Values are drawn from U(-sqrt(6/(fan_in + fan_out)), sqrt(6/(fan_in + fan_out))).
func Xavier(fanIn, fanOut int, shape tensor.Shape, dtype tensor.DataType, rng *rand.Rand) (*tensor.RawTensor, error) {
	bound := math.Sqrt(6.0 / float64(fanIn+fanOut))

	t, err := tensor.NewRaw(shape, dtype)
	if err != nil {
		return nil, err
	}

	switch dtype {
	case tensor.Float32:
		data := t.AsFloat32()
		for i := range data {
			data[i] = float32((rng.Float64()*2.0 - 1.0) * bound)
		}
	case tensor.Float64:
		data := t.AsFloat64()
		for i := range data {
			data[i] = (rng.Float64()*2.0 - 1.0) * bound
		}
	}
	return t, nil
}

// Zeros creates a zero-filled tensor, commonly used for bias initialization.
func Zeros(shape tensor.Shape, dtype tensor.DataType) (*tensor.RawTensor, error) {
	return tensor.NewRaw(shape, dtype)
}

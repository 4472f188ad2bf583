package main

import (
	"log/slog"
	"math"
	"math/rand"

	"github.com/born-ml/localconn/internal/config"
	"github.com/born-ml/localconn/internal/lc"
	"github.com/born-ml/localconn/internal/nn"
	"github.com/born-ml/localconn/internal/tensor"
)

// opOptions wires the configured parallelism and the default logger into
// the operator.
func opOptions(cfg config.Config) []lc.Option {
	return []lc.Option{
		lc.WithLogger(slog.Default()),
		lc.WithParallel(cfg.Parallel()),
	}
}

func buildLayer(cfg config.Config, seed int64) (*nn.LocallyConnected, error) {
	layerCfg, err := cfg.LocallyConnected()
	if err != nil {
		return nil, err
	}
	layerCfg.Seed = seed
	return nn.NewLocallyConnected(layerCfg, opOptions(cfg)...)
}

// uniform returns a tensor with values in [-1, 1).
func uniform(rng *rand.Rand, shape tensor.Shape, dtype tensor.DataType) (*tensor.RawTensor, error) {
	t, err := tensor.NewRaw(shape, dtype)
	if err != nil {
		return nil, err
	}
	switch dtype {
	case tensor.Float32:
		for i := range t.AsFloat32() {
			t.AsFloat32()[i] = float32(rng.Float64()*2 - 1)
		}
	default:
		for i := range t.AsFloat64() {
			t.AsFloat64()[i] = rng.Float64()*2 - 1
		}
	}
	return t, nil
}

type summary struct {
	Mean, Std, Min, Max float64
}

func summarize(t *tensor.RawTensor) summary {
	var values []float64
	if t.DType() == tensor.Float32 {
		values = make([]float64, 0, t.NumElements())
		for _, v := range t.AsFloat32() {
			values = append(values, float64(v))
		}
	} else {
		values = t.AsFloat64()
	}
	if len(values) == 0 {
		return summary{}
	}

	s := summary{Min: math.Inf(1), Max: math.Inf(-1)}
	for _, v := range values {
		s.Mean += v
		s.Min = min(s.Min, v)
		s.Max = max(s.Max, v)
	}
	s.Mean /= float64(len(values))
	for _, v := range values {
		s.Std += (v - s.Mean) * (v - s.Mean)
	}
	s.Std = math.Sqrt(s.Std / float64(len(values)))
	return s
}

package nn

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/born-ml/localconn/internal/lc"
	"github.com/born-ml/localconn/internal/tensor"
)

// LocallyConnectedConfig describes a LocallyConnected layer.
//
// The filter holds one weight block per output position, so the layer is
// tied to the spatial size of its input: InputDims fixes the output
// positions and therefore the weight shape.
type LocallyConnectedConfig struct {
	Layer       lc.Config
	InChannels  int
	OutChannels int
	InputDims   []int
	DType       tensor.DataType
	Seed        int64
}

// LocallyConnected is a convolution-like layer with unshared weights.
//
// Shapes, NCHW then NHWC:
//
//	input:  [batch, in, spatial...]                 [batch, h, w, in]
//	weight: [out_spatial..., out, in/groups, k...]  [out_h, out_w, out, k_h, k_w, in]
//	bias:   [out_spatial..., out]                   [out_h, out_w, out]
//
// Example:
//
//	layer, err := nn.NewLocallyConnected(nn.LocallyConnectedConfig{
//	    Layer:       lc.Config{Kernel: []int{3, 3}},
//	    InChannels:  3,
//	    OutChannels: 8,
//	    InputDims:   []int{16, 16},
//	})
//	y, err := layer.Forward(x) // [batch, 8, 14, 14]
type LocallyConnected struct {
	cfg LocallyConnectedConfig
	op  *lc.Op

	weight *Parameter
	bias   *Parameter // nil when Layer.NoBias

	input *tensor.RawTensor // cached by Forward
}

// NewLocallyConnected creates the layer with Xavier weights and zero bias.
func NewLocallyConnected(cfg LocallyConnectedConfig, opts ...lc.Option) (*LocallyConnected, error) {
	if cfg.InChannels <= 0 || cfg.OutChannels <= 0 {
		return nil, fmt.Errorf("%w: invalid channels in=%d, out=%d",
			lc.ErrInvalidConfig, cfg.InChannels, cfg.OutChannels)
	}
	if len(cfg.InputDims) != len(cfg.Layer.Kernel) {
		return nil, fmt.Errorf("%w: %d input dims for a %d-d kernel",
			lc.ErrInvalidConfig, len(cfg.InputDims), len(cfg.Layer.Kernel))
	}

	op, err := lc.New(cfg.Layer, opts...)
	if err != nil {
		return nil, err
	}
	layerCfg := op.Config()
	if cfg.InChannels%layerCfg.Groups != 0 {
		return nil, fmt.Errorf("%w: in_channels %d not divisible by groups %d",
			lc.ErrInvalidConfig, cfg.InChannels, layerCfg.Groups)
	}

	weightShape, err := filterShape(layerCfg, cfg.InChannels, cfg.OutChannels, cfg.InputDims)
	if err != nil {
		return nil, err
	}
	// Validate the whole geometry once, with a batch of one.
	p, err := lc.Plan(layerCfg, layerCfg.Order.ImageShape(1, cfg.InChannels, cfg.InputDims), weightShape)
	if err != nil {
		return nil, err
	}

	//nolint:gosec // weight initialization, not security sensitive
	rng := rand.New(rand.NewSource(cfg.Seed))
	kernelVolume := tensor.Product(layerCfg.Kernel)
	fanIn := p.KernelSize
	fanOut := cfg.OutChannels / layerCfg.Groups * kernelVolume

	w, err := Xavier(fanIn, fanOut, weightShape, cfg.DType, rng)
	if err != nil {
		return nil, err
	}

	l := &LocallyConnected{
		cfg:    cfg,
		op:     op,
		weight: NewParameter("weight", w),
	}
	if !layerCfg.NoBias {
		b, err := Zeros(p.BiasShape, cfg.DType)
		if err != nil {
			return nil, err
		}
		l.bias = NewParameter("bias", b)
	}
	return l, nil
}

// filterShape computes the weight shape for a layer config and input size.
func filterShape(cfg lc.Config, in, out int, inputDims []int) (tensor.Shape, error) {
	outDims, err := cfg.Window().Resolve(cfg.PadMode, inputDims).OutputDims(inputDims)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", lc.ErrShapeMismatch, err)
	}
	shape := make(tensor.Shape, 0, 2*len(outDims)+2)
	shape = append(shape, outDims...)
	shape = append(shape, out)
	if cfg.Order == tensor.NHWC {
		shape = append(shape, cfg.Kernel...)
		return append(shape, in), nil
	}
	shape = append(shape, in/cfg.Groups)
	return append(shape, cfg.Kernel...), nil
}

// Forward computes the layer output and caches input for Backward.
func (l *LocallyConnected) Forward(input *tensor.RawTensor) (*tensor.RawTensor, error) {
	var bias *tensor.RawTensor
	if l.bias != nil {
		bias = l.bias.Tensor()
	}
	out := tensor.Empty(input.DType())
	if err := l.op.Forward(input, l.weight.Tensor(), bias, out); err != nil {
		return nil, fmt.Errorf("locally connected forward: %w", err)
	}
	l.input = input
	return out, nil
}

// Backward sets the weight and bias gradients and returns the input gradient.
func (l *LocallyConnected) Backward(gradOutput *tensor.RawTensor) (*tensor.RawTensor, error) {
	if l.input == nil {
		return nil, errors.New("locally connected backward: Forward has not been called")
	}
	grads := lc.Gradients{
		Filter: l.weight.gradBuffer(),
		Input:  tensor.Empty(l.input.DType()),
	}
	if l.bias != nil {
		grads.Bias = l.bias.gradBuffer()
	}
	if err := l.op.Backward(l.input, l.weight.Tensor(), gradOutput, grads); err != nil {
		return nil, fmt.Errorf("locally connected backward: %w", err)
	}
	return grads.Input, nil
}

// Parameters returns weight and, unless disabled, bias.
func (l *LocallyConnected) Parameters() []*Parameter {
	if l.bias == nil {
		return []*Parameter{l.weight}
	}
	return []*Parameter{l.weight, l.bias}
}

// Weight returns the weight parameter.
func (l *LocallyConnected) Weight() *Parameter {
	return l.weight
}

// Bias returns the bias parameter, or nil when the layer has none.
func (l *LocallyConnected) Bias() *Parameter {
	return l.bias
}

// Config returns the layer configuration.
func (l *LocallyConnected) Config() LocallyConnectedConfig {
	return l.cfg
}

// StateDict returns the layer parameters keyed by name.
func (l *LocallyConnected) StateDict() map[string]*tensor.RawTensor {
	state := make(map[string]*tensor.RawTensor, 2)
	for _, p := range l.Parameters() {
		state[p.Name()] = p.Tensor()
	}
	return state
}

// LoadStateDict copies saved parameters into the layer. Tensors stored with
// a different float type are converted.
func (l *LocallyConnected) LoadStateDict(state map[string]*tensor.RawTensor) error {
	for _, p := range l.Parameters() {
		src, ok := state[p.Name()]
		if !ok {
			return fmt.Errorf("load state: missing %q", p.Name())
		}
		if !src.Shape().Equal(p.Tensor().Shape()) {
			return fmt.Errorf("load state: %q has shape %v, want %v", p.Name(), src.Shape(), p.Tensor().Shape())
		}
		copyConvert(p.Tensor(), src)
	}
	return nil
}

// copyConvert copies src into dst, converting between float32 and float64.
func copyConvert(dst, src *tensor.RawTensor) {
	switch {
	case dst.DType() == src.DType():
		copy(dst.Data(), src.Data())
	case dst.DType() == tensor.Float32:
		d := dst.AsFloat32()
		for i, v := range src.AsFloat64() {
			d[i] = float32(v)
		}
	default:
		d := dst.AsFloat64()
		for i, v := range src.AsFloat32() {
			d[i] = float64(v)
		}
	}
}

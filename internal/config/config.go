// Package config loads the lconn application configuration from defaults,
// an optional config file, LCONN_* environment variables and flags.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/born-ml/localconn/internal/conv"
	"github.com/born-ml/localconn/internal/lc"
	"github.com/born-ml/localconn/internal/nn"
	"github.com/born-ml/localconn/internal/parallel"
	"github.com/born-ml/localconn/internal/tensor"
)

// EnvPrefix is the prefix of environment overrides, e.g. LCONN_LAYER_KERNEL=3,3.
const EnvPrefix = "LCONN"

type Config struct {
	Layer          LayerConfig      `mapstructure:"layer"`
	Input          InputConfig      `mapstructure:"input"`
	OutputChannels int              `mapstructure:"output_channels"`
	Runtime        RuntimeConfig    `mapstructure:"runtime"`
	Train          TrainConfig      `mapstructure:"train"`
	Log            LogConfig        `mapstructure:"log"`
	Checkpoint     CheckpointConfig `mapstructure:"checkpoint"`
}

type LayerConfig struct {
	Kernel   []int  `mapstructure:"kernel"`
	Stride   []int  `mapstructure:"stride"`
	Pad      []int  `mapstructure:"pad"`
	PadMode  string `mapstructure:"pad_mode"`
	Dilation []int  `mapstructure:"dilation"`
	Groups   int    `mapstructure:"groups"`
	Order    string `mapstructure:"order"`
	NoBias   bool   `mapstructure:"no_bias"`
}

type InputConfig struct {
	Batch    int    `mapstructure:"batch"`
	Channels int    `mapstructure:"channels"`
	Dims     []int  `mapstructure:"dims"`
	DType    string `mapstructure:"dtype"`
}

type RuntimeConfig struct {
	Workers  int `mapstructure:"workers"`
	MinChunk int `mapstructure:"min_chunk"`
}

type TrainConfig struct {
	Steps     int     `mapstructure:"steps"`
	Optimizer string  `mapstructure:"optimizer"`
	LR        float64 `mapstructure:"lr"`
	Momentum  float64 `mapstructure:"momentum"`
	Seed      int64   `mapstructure:"seed"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type CheckpointConfig struct {
	Path string `mapstructure:"path"`
	Half bool   `mapstructure:"half"`
}

type LoadOptions struct {
	Cmd        flagBinder
	ConfigFile string
	Defaults   Config
}

type flagBinder interface {
	Flags() *pflag.FlagSet
}

func DefaultConfig() Config {
	par := parallel.DefaultConfig()
	return Config{
		Layer: LayerConfig{
			Kernel:  []int{3, 3},
			PadMode: "explicit",
			Groups:  1,
			Order:   "NCHW",
		},
		Input: InputConfig{
			Batch:    8,
			Channels: 4,
			Dims:     []int{16, 16},
			DType:    "float32",
		},
		OutputChannels: 8,
		Runtime: RuntimeConfig{
			Workers:  par.NumWorkers,
			MinChunk: par.MinChunkSize,
		},
		Train: TrainConfig{
			Steps:     100,
			Optimizer: "sgd",
			LR:        0.05,
			Momentum:  0.9,
			Seed:      1,
		},
		Log: LogConfig{
			Level: "info",
		},
		Checkpoint: CheckpointConfig{
			Path: "lconn.safetensors",
		},
	}
}

func RegisterFlags(fs *pflag.FlagSet, defaults Config) {
	fs.IntSlice("layer-kernel", defaults.Layer.Kernel, "Kernel size per spatial dim")
	fs.IntSlice("layer-stride", defaults.Layer.Stride, "Stride per spatial dim (default 1)")
	fs.IntSlice("layer-pad", defaults.Layer.Pad, "Pads as begin_0..begin_n, end_0..end_n")
	fs.String("layer-pad-mode", defaults.Layer.PadMode, "Padding mode: explicit|valid|same")
	fs.IntSlice("layer-dilation", defaults.Layer.Dilation, "Dilation per spatial dim (default 1)")
	fs.Int("layer-groups", defaults.Layer.Groups, "Number of channel groups")
	fs.String("layer-order", defaults.Layer.Order, "Storage order: NCHW|NHWC")
	fs.Bool("layer-no-bias", defaults.Layer.NoBias, "Disable the bias term")
	fs.Int("input-batch", defaults.Input.Batch, "Batch size")
	fs.Int("input-channels", defaults.Input.Channels, "Input channels")
	fs.IntSlice("input-dims", defaults.Input.Dims, "Input spatial dims")
	fs.String("input-dtype", defaults.Input.DType, "Element type: float32|float64")
	fs.Int("output-channels", defaults.OutputChannels, "Output channels")
	fs.Int("runtime-workers", defaults.Runtime.Workers, "Worker goroutines for CPU kernels (1 disables parallelism)")
	fs.Int("runtime-min-chunk", defaults.Runtime.MinChunk, "Minimum items per worker")
	fs.Int("train-steps", defaults.Train.Steps, "Training steps")
	fs.String("train-optimizer", defaults.Train.Optimizer, "Optimizer: sgd|adam")
	fs.Float64("train-lr", defaults.Train.LR, "Learning rate")
	fs.Float64("train-momentum", defaults.Train.Momentum, "SGD momentum")
	fs.Int64("train-seed", defaults.Train.Seed, "Random seed for weights and data")
	fs.String("log-level", defaults.Log.Level, "Log level: debug|info|warn|error")
	fs.String("checkpoint-path", defaults.Checkpoint.Path, "Checkpoint file written by train")
	fs.Bool("checkpoint-half", defaults.Checkpoint.Half, "Store checkpoint tensors as float16")
}

func Load(opts LoadOptions) (Config, error) {
	v := viper.New()

	setDefaults(v, opts.Defaults)
	if opts.Cmd != nil {
		if err := bindFlags(v, opts.Cmd.Flags()); err != nil {
			return Config{}, err
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	replacer := strings.NewReplacer("-", "_", ".", "_", "__", "_")
	v.SetEnvKeyReplacer(replacer)
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("lconn")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("layer.kernel", c.Layer.Kernel)
	v.SetDefault("layer.stride", c.Layer.Stride)
	v.SetDefault("layer.pad", c.Layer.Pad)
	v.SetDefault("layer.pad_mode", c.Layer.PadMode)
	v.SetDefault("layer.dilation", c.Layer.Dilation)
	v.SetDefault("layer.groups", c.Layer.Groups)
	v.SetDefault("layer.order", c.Layer.Order)
	v.SetDefault("layer.no_bias", c.Layer.NoBias)
	v.SetDefault("input.batch", c.Input.Batch)
	v.SetDefault("input.channels", c.Input.Channels)
	v.SetDefault("input.dims", c.Input.Dims)
	v.SetDefault("input.dtype", c.Input.DType)
	v.SetDefault("output_channels", c.OutputChannels)
	v.SetDefault("runtime.workers", c.Runtime.Workers)
	v.SetDefault("runtime.min_chunk", c.Runtime.MinChunk)
	v.SetDefault("train.steps", c.Train.Steps)
	v.SetDefault("train.optimizer", c.Train.Optimizer)
	v.SetDefault("train.lr", c.Train.LR)
	v.SetDefault("train.momentum", c.Train.Momentum)
	v.SetDefault("train.seed", c.Train.Seed)
	v.SetDefault("log.level", c.Log.Level)
	v.SetDefault("checkpoint.path", c.Checkpoint.Path)
	v.SetDefault("checkpoint.half", c.Checkpoint.Half)
}

// flagKeys maps config keys to the flags registered by RegisterFlags.
var flagKeys = []struct{ key, flag string }{
	{"layer.kernel", "layer-kernel"},
	{"layer.stride", "layer-stride"},
	{"layer.pad", "layer-pad"},
	{"layer.pad_mode", "layer-pad-mode"},
	{"layer.dilation", "layer-dilation"},
	{"layer.groups", "layer-groups"},
	{"layer.order", "layer-order"},
	{"layer.no_bias", "layer-no-bias"},
	{"input.batch", "input-batch"},
	{"input.channels", "input-channels"},
	{"input.dims", "input-dims"},
	{"input.dtype", "input-dtype"},
	{"output_channels", "output-channels"},
	{"runtime.workers", "runtime-workers"},
	{"runtime.min_chunk", "runtime-min-chunk"},
	{"train.steps", "train-steps"},
	{"train.optimizer", "train-optimizer"},
	{"train.lr", "train-lr"},
	{"train.momentum", "train-momentum"},
	{"train.seed", "train-seed"},
	{"log.level", "log-level"},
	{"checkpoint.path", "checkpoint-path"},
	{"checkpoint.half", "checkpoint-half"},
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for _, kf := range flagKeys {
		flag := fs.Lookup(kf.flag)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(kf.key, flag); err != nil {
			return fmt.Errorf("bind flag %s: %w", kf.flag, err)
		}
	}
	return nil
}

// LayerConfig converts the layer section into an operator config.
func (c Config) LayerConfig() (lc.Config, error) {
	order, err := tensor.ParseStorageOrder(c.Layer.Order)
	if err != nil {
		return lc.Config{}, fmt.Errorf("layer.order: %w", err)
	}
	padMode, err := conv.ParsePadMode(c.Layer.PadMode)
	if err != nil {
		return lc.Config{}, fmt.Errorf("layer.pad_mode: %w", err)
	}
	return lc.Config{
		Kernel:   c.Layer.Kernel,
		Stride:   c.Layer.Stride,
		Dilation: c.Layer.Dilation,
		Pads:     c.Layer.Pad,
		PadMode:  padMode,
		Groups:   c.Layer.Groups,
		Order:    order,
		NoBias:   c.Layer.NoBias,
	}, nil
}

// LocallyConnected converts the layer, input and train sections into a
// layer config.
func (c Config) LocallyConnected() (nn.LocallyConnectedConfig, error) {
	layer, err := c.LayerConfig()
	if err != nil {
		return nn.LocallyConnectedConfig{}, err
	}
	dtype, err := tensor.ParseDataType(c.Input.DType)
	if err != nil {
		return nn.LocallyConnectedConfig{}, fmt.Errorf("input.dtype: %w", err)
	}
	return nn.LocallyConnectedConfig{
		Layer:       layer,
		InChannels:  c.Input.Channels,
		OutChannels: c.OutputChannels,
		InputDims:   c.Input.Dims,
		DType:       dtype,
		Seed:        c.Train.Seed,
	}, nil
}

// InputShape returns the input tensor shape in the configured storage order.
func (c Config) InputShape() (tensor.Shape, error) {
	order, err := tensor.ParseStorageOrder(c.Layer.Order)
	if err != nil {
		return nil, fmt.Errorf("layer.order: %w", err)
	}
	return order.ImageShape(c.Input.Batch, c.Input.Channels, c.Input.Dims), nil
}

// Parallel returns the kernel parallelism settings.
func (c Config) Parallel() parallel.Config {
	return parallel.Config{
		Enabled:      c.Runtime.Workers > 1,
		NumWorkers:   max(c.Runtime.Workers, 1),
		MinChunkSize: max(c.Runtime.MinChunk, 1),
	}
}

// ParseLogLevel converts a case-insensitive level string to slog.Level.
// An empty string returns slog.LevelInfo. Unknown strings return an error.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

package main

import (
	"fmt"
	"log/slog"
	"math/rand"
	"strings"

	"github.com/spf13/cobra"

	"github.com/born-ml/localconn/internal/config"
	"github.com/born-ml/localconn/internal/nn"
	"github.com/born-ml/localconn/internal/optim"
	"github.com/born-ml/localconn/internal/serialization"
)

// stateOptimizer is an optimizer whose state goes into checkpoints.
type stateOptimizer interface {
	optim.Optimizer
	nn.OptimizerState
}

func newOptimizer(cfg config.Config, params []*nn.Parameter) (stateOptimizer, error) {
	switch strings.ToLower(cfg.Train.Optimizer) {
	case "", "sgd":
		return optim.NewSGD(params, optim.SGDConfig{LR: cfg.Train.LR, Momentum: cfg.Train.Momentum}), nil
	case "adam":
		return optim.NewAdam(params, optim.AdamConfig{LR: cfg.Train.LR}), nil
	default:
		return nil, fmt.Errorf("unknown optimizer %q (want sgd or adam)", cfg.Train.Optimizer)
	}
}

type trainResult struct {
	FirstLoss float64
	LastLoss  float64
}

func newTrainCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "train",
		Short: "Fit the layer to a random target and write a checkpoint",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			res, err := runTrain(cfg)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "loss %.6g -> %.6g, checkpoint %s\n",
				res.FirstLoss, res.LastLoss, cfg.Checkpoint.Path)
			return nil
		},
	}
}

// runTrain regresses the layer onto the output of a second, differently
// seeded layer with the same geometry.
func runTrain(cfg config.Config) (trainResult, error) {
	if cfg.Train.Steps < 1 {
		return trainResult{}, fmt.Errorf("train.steps must be at least 1, got %d", cfg.Train.Steps)
	}

	layer, err := buildLayer(cfg, cfg.Train.Seed)
	if err != nil {
		return trainResult{}, err
	}
	target, err := buildLayer(cfg, cfg.Train.Seed+1)
	if err != nil {
		return trainResult{}, err
	}
	shape, err := cfg.InputShape()
	if err != nil {
		return trainResult{}, err
	}

	//nolint:gosec // synthetic data
	rng := rand.New(rand.NewSource(cfg.Train.Seed + 2))
	x, err := uniform(rng, shape, layer.Weight().Tensor().DType())
	if err != nil {
		return trainResult{}, err
	}
	want, err := target.Forward(x)
	if err != nil {
		return trainResult{}, err
	}

	opt, err := newOptimizer(cfg, layer.Parameters())
	if err != nil {
		return trainResult{}, err
	}
	mse := nn.NewMSELoss()
	logEvery := max(cfg.Train.Steps/10, 1)

	var res trainResult
	for step := 1; step <= cfg.Train.Steps; step++ {
		y, err := layer.Forward(x)
		if err != nil {
			return trainResult{}, err
		}
		loss, dy, err := mse.Forward(y, want)
		if err != nil {
			return trainResult{}, err
		}
		if step == 1 {
			res.FirstLoss = loss
		}
		res.LastLoss = loss

		if _, err := layer.Backward(dy); err != nil {
			return trainResult{}, err
		}
		if err := opt.Step(); err != nil {
			return trainResult{}, err
		}
		opt.ZeroGrad()

		if step%logEvery == 0 || step == cfg.Train.Steps {
			slog.Info("train", "step", step, "loss", loss, "lr", opt.GetLR())
		}
	}

	var writeOpts []serialization.WriteOption
	if cfg.Checkpoint.Half {
		writeOpts = append(writeOpts, serialization.WithHalfPrecision())
	}
	ckpt := &nn.Checkpoint{
		Model:     layer,
		Optimizer: opt,
		Step:      int64(cfg.Train.Steps),
		Loss:      res.LastLoss,
		Metadata: map[string]string{
			"order":     cfg.Layer.Order,
			"kernel":    fmt.Sprint(cfg.Layer.Kernel),
			"optimizer": cfg.Train.Optimizer,
		},
	}
	if err := ckpt.Save(cfg.Checkpoint.Path, writeOpts...); err != nil {
		return trainResult{}, err
	}
	slog.Info("checkpoint written", "path", cfg.Checkpoint.Path, "half", cfg.Checkpoint.Half)
	return res, nil
}

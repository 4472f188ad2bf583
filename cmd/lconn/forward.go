package main

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/spf13/cobra"
)

func newForwardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "forward",
		Short: "Run one forward pass on random input and print output statistics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			layer, err := buildLayer(cfg, cfg.Train.Seed)
			if err != nil {
				return err
			}
			shape, err := cfg.InputShape()
			if err != nil {
				return err
			}
			//nolint:gosec // synthetic input
			rng := rand.New(rand.NewSource(cfg.Train.Seed + 1))
			x, err := uniform(rng, shape, layer.Weight().Tensor().DType())
			if err != nil {
				return err
			}

			start := time.Now()
			y, err := layer.Forward(x)
			if err != nil {
				return err
			}
			elapsed := time.Since(start)

			s := summarize(y)
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "input:  %v %s\n", x.Shape(), x.DType())
			_, _ = fmt.Fprintf(out, "weight: %v\n", layer.Weight().Tensor().Shape())
			_, _ = fmt.Fprintf(out, "output: %v\n", y.Shape())
			_, _ = fmt.Fprintf(out, "mean=%.6g std=%.6g min=%.6g max=%.6g\n", s.Mean, s.Std, s.Min, s.Max)
			_, _ = fmt.Fprintf(out, "elapsed: %s\n", elapsed)
			return nil
		},
	}
}

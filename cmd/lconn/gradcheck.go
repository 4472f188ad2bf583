package main

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/spf13/cobra"

	"github.com/born-ml/localconn/internal/config"
	"github.com/born-ml/localconn/internal/lc"
	"github.com/born-ml/localconn/internal/tensor"
)

var errGradCheck = errors.New("gradient check failed")

type gradCheckOptions struct {
	Samples int
	Eps     float64
	Tol     float64
}

type gradTarget struct {
	name     string
	values   *tensor.RawTensor
	analytic *tensor.RawTensor
}

type gradCheckResult struct {
	Name     string
	Checked  int
	MaxError float64
}

func newGradCheckCmd() *cobra.Command {
	opts := gradCheckOptions{}

	cmd := &cobra.Command{
		Use:   "gradcheck",
		Short: "Compare analytic gradients with central finite differences",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			if opts.Samples < 1 {
				return fmt.Errorf("--samples must be at least 1")
			}

			// Finite differences need double precision.
			cfg.Input.DType = tensor.Float64.String()
			results, err := runGradCheck(cfg, opts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			failed := false
			for _, r := range results {
				status := "ok"
				if r.MaxError > opts.Tol {
					status = "FAIL"
					failed = true
				}
				_, _ = fmt.Fprintf(out, "%-7s checked=%-4d max_error=%.3g %s\n", r.Name, r.Checked, r.MaxError, status)
			}
			if failed {
				return fmt.Errorf("%w: tolerance %g", errGradCheck, opts.Tol)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&opts.Samples, "samples", 32, "Elements checked per tensor")
	cmd.Flags().Float64Var(&opts.Eps, "eps", 1e-5, "Finite-difference step")
	cmd.Flags().Float64Var(&opts.Tol, "tol", 1e-6, "Maximum absolute error")

	return cmd
}

// runGradCheck checks dX, dFilter and dBias of L = <Y, R> against central
// differences at randomly chosen elements.
func runGradCheck(cfg config.Config, opts gradCheckOptions) ([]gradCheckResult, error) {
	layer, err := buildLayer(cfg, cfg.Train.Seed)
	if err != nil {
		return nil, err
	}
	op, err := lc.New(layer.Config().Layer, opOptions(cfg)...)
	if err != nil {
		return nil, err
	}
	shape, err := cfg.InputShape()
	if err != nil {
		return nil, err
	}

	//nolint:gosec // synthetic data
	rng := rand.New(rand.NewSource(cfg.Train.Seed + 1))
	x, err := uniform(rng, shape, tensor.Float64)
	if err != nil {
		return nil, err
	}
	filter := layer.Weight().Tensor()
	var bias *tensor.RawTensor
	if layer.Bias() != nil {
		bias = layer.Bias().Tensor()
		for i := range bias.AsFloat64() {
			bias.AsFloat64()[i] = rng.Float64()*2 - 1
		}
	}

	y := tensor.Empty(tensor.Float64)
	if err := op.Forward(x, filter, bias, y); err != nil {
		return nil, err
	}
	r, err := uniform(rng, y.Shape(), tensor.Float64)
	if err != nil {
		return nil, err
	}

	grads := lc.Gradients{
		Filter: tensor.Empty(tensor.Float64),
		Input:  tensor.Empty(tensor.Float64),
	}
	if bias != nil {
		grads.Bias = tensor.Empty(tensor.Float64)
	}
	if err := op.Backward(x, filter, r, grads); err != nil {
		return nil, err
	}

	var lossErr error
	loss := func() float64 {
		if err := op.Forward(x, filter, bias, y); err != nil {
			lossErr = err
			return 0
		}
		var s float64
		for i, v := range y.AsFloat64() {
			s += v * r.AsFloat64()[i]
		}
		return s
	}

	checks := []gradTarget{
		{"input", x, grads.Input},
		{"filter", filter, grads.Filter},
	}
	if bias != nil {
		checks = append(checks, gradTarget{"bias", bias, grads.Bias})
	}

	results := make([]gradCheckResult, 0, len(checks))
	for _, c := range checks {
		values, analytic := c.values.AsFloat64(), c.analytic.AsFloat64()
		n := min(opts.Samples, len(values))
		res := gradCheckResult{Name: c.name, Checked: n}
		for _, i := range rng.Perm(len(values))[:n] {
			orig := values[i]
			values[i] = orig + opts.Eps
			plus := loss()
			values[i] = orig - opts.Eps
			minus := loss()
			values[i] = orig
			numeric := (plus - minus) / (2 * opts.Eps)
			res.MaxError = max(res.MaxError, math.Abs(numeric-analytic[i]))
		}
		if lossErr != nil {
			return nil, lossErr
		}
		results = append(results, res)
	}
	return results, nil
}

package main

import (
	"context"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/born-ml/bpgrad/internal/bp"
	"github.com/born-ml/bpgrad/internal/decode"
	"github.com/born-ml/bpgrad/internal/graph"
	"github.com/born-ml/bpgrad/internal/metrics"
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"
)

// runFlags are the flags shared by the commands running belief propagation.
type runFlags struct {
	config  string
	algebra string
}

func (f *runFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.config, "config", "", "YAML file with belief propagation options")
	cmd.Flags().StringVar(&f.algebra, "algebra", "", "overrides the algebra of the options (REAL, LOG, LOG_SIGN, SPLIT, SHIFTED_REAL)")
}

// options loads the options file, if any, and applies the overrides.
func (f *runFlags) options() (bp.Options, error) {
	opts := bp.DefaultOptions()
	if f.config != "" {
		var err error
		if opts, err = bp.LoadOptions(f.config); err != nil {
			return opts, err
		}
	}
	if f.algebra != "" {
		opts.Algebra = f.algebra
		if err := opts.Validate(); err != nil {
			return opts, err
		}
	}
	return opts, nil
}

func newChainCmd() *cobra.Command {
	var (
		flags       runFlags
		showMetrics bool
		samples     int
		sampling    = decode.DefaultSamplingConfig()
	)
	cmd := &cobra.Command{
		Use:   "chain",
		Short: "Runs belief propagation on a three-variable chain and compares it with exact inference",
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts, err := flags.options()
			if err != nil {
				return err
			}
			var reg *prometheus.Registry
			var m *metrics.Inference
			if showMetrics {
				reg = prometheus.NewRegistry()
				m = metrics.New(reg)
			}
			fg := chainGraph()
			engine, err := runEngine(cmd.Context(), fg, opts, m)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if err := printComparison(out, fg, engine); err != nil {
				return err
			}
			fmt.Fprintf(out, "max marginal: %s\n", formatConfig(fg, decode.MaxMarginal(fg, engine.VarBeliefs())))
			sampler := decode.NewSampler(sampling)
			for k := range samples {
				fmt.Fprintf(out, "sample %d: %s\n", k+1, formatConfig(fg, decode.Sample(fg, engine.VarBeliefs(), sampler)))
			}
			if reg != nil {
				return printMetrics(out, reg)
			}
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&showMetrics, "metrics", false, "prints the inference metrics after the run")
	cmd.Flags().IntVar(&samples, "samples", 0, "number of assignments to sample from the beliefs")
	cmd.Flags().Float64Var(&sampling.Temperature, "temperature", sampling.Temperature, "sampling temperature (0: argmax)")
	cmd.Flags().IntVar(&sampling.TopK, "top-k", sampling.TopK, "samples among the K most probable states (0: all)")
	cmd.Flags().Float64Var(&sampling.TopP, "top-p", sampling.TopP, "nucleus sampling threshold (1: disabled)")
	cmd.Flags().Uint64Var(&sampling.Seed, "seed", sampling.Seed, "seed of the sampler")
	return cmd
}

// runEngine creates an engine over fg and runs it to completion.
func runEngine(ctx context.Context, fg *graph.FactorGraph, opts bp.Options, m *metrics.Inference) (*bp.BeliefPropagation, error) {
	engine, err := bp.New(fg, opts)
	if err != nil {
		return nil, err
	}
	engine.SetMetrics(m)
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()
	if err := engine.RunContext(ctx); err != nil {
		return nil, errors.WithMessage(err, "bpgrad")
	}
	klog.V(1).Infof("run %s: %s after %d iterations in %s", engine.RunID(), engine.Status(), engine.Iterations(), time.Since(start))
	return engine, nil
}

// printComparison prints every variable's belief next to its exact marginal,
// and the estimated log partition next to the exact one.
func printComparison(w io.Writer, fg *graph.FactorGraph, engine *bp.BeliefPropagation) error {
	exact, err := graph.BruteForce(fg)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "algebra %s, status %s, %s iterations, max residual %.3g\n",
		engine.Algebra().Name(), engine.Status(), humanize.Comma(int64(engine.Iterations())), engine.MaxResidual())
	maxDiff := 0.0
	for i, v := range fg.Vars() {
		belief := engine.VarBelief(i).Reals()
		want := exact.VarMarginals[i].Reals()
		fmt.Fprintf(w, "  %-12s bp %.6f  exact %.6f\n", v.Name(), belief, want)
		for k := range belief {
			maxDiff = max(maxDiff, math.Abs(belief[k]-want[k]))
		}
	}
	fmt.Fprintf(w, "log Z: bp %.6f  exact %.6f\n", engine.LogPartition(), exact.LogPartition)
	fmt.Fprintf(w, "max marginal error %.3g\n", maxDiff)
	return nil
}

// formatConfig prints an assignment as name=state pairs in node order.
func formatConfig(fg *graph.FactorGraph, cfg graph.VarConfig) string {
	parts := make([]string, 0, len(cfg))
	for _, v := range fg.Vars() {
		if k, ok := cfg[v]; ok {
			parts = append(parts, v.Name()+"="+v.StateName(k))
		}
	}
	return strings.Join(parts, " ")
}

func printMetrics(w io.Writer, reg *prometheus.Registry) error {
	families, err := reg.Gather()
	if err != nil {
		return errors.Wrap(err, "bpgrad: gathering metrics")
	}
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			switch {
			case metric.GetCounter() != nil:
				fmt.Fprintf(w, "%s %s\n", mf.GetName(), humanize.Ftoa(metric.GetCounter().GetValue()))
			case metric.GetHistogram() != nil:
				h := metric.GetHistogram()
				fmt.Fprintf(w, "%s count=%s sum=%s\n", mf.GetName(),
					humanize.Comma(int64(h.GetSampleCount())), humanize.SIWithDigits(h.GetSampleSum(), 3, ""))
			}
		}
	}
	return nil
}

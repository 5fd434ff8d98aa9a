package main

import (
	"fmt"
	"math/rand/v2"

	"github.com/born-ml/bpgrad/internal/algebra"
	"github.com/born-ml/bpgrad/internal/autodiff"
	"github.com/born-ml/bpgrad/internal/bp"
	"github.com/born-ml/bpgrad/internal/graph"
	"github.com/born-ml/bpgrad/internal/tensor"
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newGradCheckCmd() *cobra.Command {
	var (
		flags   runFlags
		epsilon float64
		seed    uint64
		words   int
	)
	cmd := &cobra.Command{
		Use:   "gradcheck",
		Short: "Compares the adjoints of belief propagation with finite differences",
		Long: `Builds feature weights reproducing the potentials of a built-in graph,
runs belief propagation and a squared-error loss on its beliefs, and compares
the adjoints of the weights with central finite differences.

Without --words the graph is the three-variable chain; with --words it is a
projective dependency tree over that many words.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts, err := flags.options()
			if err != nil {
				return err
			}
			fg := chainGraph()
			if words > 0 {
				fg, _, _ = parserGraph(words, seed)
			}
			var (
				res      autodiff.GradCheckResult
				checkErr error
			)
			if err := exceptions.TryCatch[error](func() {
				res, checkErr = checkGraph(fg, opts, epsilon, seed)
			}); err != nil {
				return errors.WithMessage(err, "bpgrad: gradient check failed")
			}
			if checkErr != nil {
				return checkErr
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d weights, max |analytic - numeric| = %.3g\n", len(res.Analytic[0]), res.MaxAbsDiff)
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().Float64Var(&epsilon, "epsilon", 1e-5, "finite difference step")
	cmd.Flags().Uint64Var(&seed, "seed", 1, "seed of the output projection and of the random graph")
	cmd.Flags().IntVar(&words, "words", 0, "checks a dependency tree over this many words instead of the chain")
	return cmd
}

// checkGraph differentiates the squared error of fg's beliefs against the
// all-zero assignment with respect to per-entry feature weights.
func checkGraph(fg *graph.FactorGraph, opts bp.Options, epsilon float64, seed uint64) (autodiff.GradCheckResult, error) {
	s, err := opts.AlgebraImpl()
	if err != nil {
		return autodiff.GradCheckResult{}, err
	}
	feats, weights := entryFeatures(fg)
	theta := autodiff.NewIdentity(tensor.FromReals(algebra.Real, weights, len(weights)))
	factors := bp.NewFactorsModule(fg, theta, feats, s)
	beliefs, err := bp.NewModule(fg, factors, opts)
	if err != nil {
		return autodiff.GradCheckResult{}, err
	}
	gold := make(graph.VarConfig, fg.NumVars())
	for _, v := range fg.Vars() {
		gold[v] = 0
	}
	loss := bp.NewMSELoss(fg, beliefs, gold)
	topo, err := autodiff.NewTopoOrderFromRoot(loss, theta)
	if err != nil {
		return autodiff.GradCheckResult{}, errors.WithMessage(err, "bpgrad")
	}
	rng := rand.New(rand.NewPCG(seed, 7))
	return autodiff.CheckGradients[*tensor.Tensor](topo, []*autodiff.Identity[*tensor.Tensor]{theta}, epsilon, rng), nil
}

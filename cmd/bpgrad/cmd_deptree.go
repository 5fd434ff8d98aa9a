package main

import (
	"fmt"
	"math"

	"github.com/born-ml/bpgrad/internal/deptree"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newDepTreeCmd() *cobra.Command {
	var (
		flags runFlags
		n     int
		seed  uint64
	)
	cmd := &cobra.Command{
		Use:   "deptree",
		Short: "Runs belief propagation over the links of a projective dependency tree and compares it with inside-outside",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if n < 1 {
				return errors.Errorf("bpgrad: --words must be positive, got %d", n)
			}
			opts, err := flags.options()
			if err != nil {
				return err
			}
			fg, tree, scores := parserGraph(n, seed)
			engine, err := runEngine(cmd.Context(), fg, opts, nil)
			if err != nil {
				return err
			}
			marginals, logZ := deptree.InsideOutside(scores)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "algebra %s, status %s, %d iterations\n", engine.Algebra().Name(), engine.Status(), engine.Iterations())
			maxDiff := 0.0
			for h := 0; h <= n; h++ {
				for m := 1; m <= n; m++ {
					if h == m {
						continue
					}
					got := engine.VarBelief(fg.VarIndex(tree.Link(h, m))).Reals()[deptree.On]
					maxDiff = max(maxDiff, math.Abs(got-marginals[h][m]))
					fmt.Fprintf(out, "  %d -> %d  bp %.6f  exact %.6f\n", h, m, got, marginals[h][m])
				}
			}
			fmt.Fprintf(out, "log Z: bp %.6f  exact %.6f\n", engine.LogPartition(), logZ)
			fmt.Fprintf(out, "max marginal error %.3g\n", maxDiff)
			heads, recall := deptree.MaxTree(tree.ArcMarginals(fg, engine.VarBeliefs()))
			fmt.Fprintf(out, "minimum Bayes risk tree: heads %v, expected recall %.4f\n", heads[1:], recall)
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().IntVar(&n, "words", 4, "sentence length")
	cmd.Flags().Uint64Var(&seed, "seed", 1, "seed of the random arc scores")
	return cmd
}

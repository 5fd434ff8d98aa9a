package main

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/born-ml/bpgrad/internal/algebra"
	"github.com/born-ml/bpgrad/internal/bp"
	"github.com/born-ml/bpgrad/internal/deptree"
	"github.com/born-ml/bpgrad/internal/graph"
	"github.com/born-ml/bpgrad/internal/train"
)

// chainGraph builds a three-variable chain with unary emission factors and
// two pairwise transition factors.
func chainGraph() *graph.FactorGraph {
	vars := make([]*graph.Var, 3)
	for i := range vars {
		vars[i] = graph.NewVar(graph.Predicted, 2, fmt.Sprintf("t%d", i), "N", "V")
	}
	fg := graph.New()
	emissions := [][]float64{{0.1, 0.9}, {0.3, 0.7}, {0.5, 0.5}}
	for i, v := range vars {
		fg.AddFactor(graph.NewExplicitFactor(fmt.Sprintf("emit%d", i),
			graph.NewVarTensorFromReals(algebra.Real, graph.NewVarSet(v), emissions[i]...)))
	}
	fg.AddFactor(graph.NewExplicitFactor("tran01",
		graph.NewVarTensorFromReals(algebra.Real, graph.NewVarSet(vars[0], vars[1]), 0.2, 0.4, 0.3, 0.5)))
	fg.AddFactor(graph.NewExplicitFactor("tran12",
		graph.NewVarTensorFromReals(algebra.Real, graph.NewVarSet(vars[1], vars[2]), 1.2, 1.4, 1.3, 1.5)))
	return fg
}

// entryFeatures gives every entry of every explicit factor its own
// indicator feature. theta holds the log of the current potentials, so the
// log-linear factors reproduce them.
func entryFeatures(fg *graph.FactorGraph) (feats []bp.FeatureTable, theta []float64) {
	feats = make([]bp.FeatureTable, fg.NumFactors())
	for a, f := range fg.Factors() {
		if f.Kind() == graph.Global {
			continue
		}
		pot := f.Potential()
		feats[a] = make(bp.FeatureTable, pot.Size())
		for c := range feats[a] {
			feats[a][c] = []bp.Feature{{Index: len(theta), Value: 1}}
			theta = append(theta, pot.Algebra().ToLogProb(pot.Value(c)))
		}
	}
	return feats, theta
}

// parserGraph builds the link variables of an n-word sentence constrained
// by a projective tree factor, with one unary factor per link scoring it
// exp(score) when present. scores are drawn uniformly from [-1, 1).
func parserGraph(n int, seed uint64) (*graph.FactorGraph, *deptree.ProjDepTreeFactor, [][]float64) {
	rng := rand.New(rand.NewPCG(seed, 99))
	tree := deptree.NewProjDepTreeFactor(n, graph.Predicted)
	fg := graph.New()
	fg.AddFactor(tree.Factor())
	scores := make([][]float64, n+1)
	for h := range scores {
		scores[h] = make([]float64, n+1)
		for m := 1; m <= n; m++ {
			if h == m {
				continue
			}
			scores[h][m] = 2*rng.Float64() - 1
			v := tree.Link(h, m)
			fg.AddFactor(graph.NewExplicitFactor("u"+v.Name(),
				graph.NewVarTensorFromReals(algebra.Real, graph.NewVarSet(v), 1, math.Exp(scores[h][m]))))
		}
	}
	return fg, tree, scores
}

// taggerExamples builds tagging chains of the given tag sequences. Unary
// factors share one weight per tag and transition factors one weight per
// tag pair, so every example updates the same numTags·(numTags+1) weights.
func taggerExamples(numTags int, sentences [][]int) []train.Example {
	examples := make([]train.Example, 0, len(sentences))
	for si, tags := range sentences {
		vars := make([]*graph.Var, len(tags))
		fg := graph.New()
		gold := make(graph.VarConfig, len(tags))
		var feats []bp.FeatureTable
		for i := range vars {
			vars[i] = graph.NewVar(graph.Predicted, numTags, fmt.Sprintf("s%d_t%d", si, i))
			gold[vars[i]] = tags[i]
			fg.AddFactor(graph.NewExplicitFactor("emit_"+vars[i].Name(),
				graph.NewVarTensor(algebra.Real, graph.NewVarSet(vars[i]))))
			table := make(bp.FeatureTable, numTags)
			for k := range table {
				table[k] = []bp.Feature{{Index: k, Value: 1}}
			}
			feats = append(feats, table)
		}
		for i := 0; i+1 < len(vars); i++ {
			fg.AddFactor(graph.NewExplicitFactor(fmt.Sprintf("tran_%s", vars[i].Name()),
				graph.NewVarTensor(algebra.Real, graph.NewVarSet(vars[i], vars[i+1]))))
			table := make(bp.FeatureTable, numTags*numTags)
			for k := range table {
				table[k] = []bp.Feature{{Index: numTags + k, Value: 1}}
			}
			feats = append(feats, table)
		}
		examples = append(examples, train.Example{Graph: fg, Features: feats, Gold: gold})
	}
	return examples
}

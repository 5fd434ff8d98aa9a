package deptree

import (
	"math"

	"github.com/born-ml/bpgrad/internal/graph"
	"github.com/born-ml/bpgrad/internal/tensor"
	"github.com/gomlx/exceptions"
)

// MaxTree returns the projective tree maximizing Σ_{h→m ∈ tree} scores[h][m]
// and its score, by Eisner's algorithm with max in place of sum. scores is
// indexed like the arguments of InsideOutside. Given arc marginals it finds
// the minimum Bayes risk tree under recall.
func MaxTree(scores [][]float64) (heads []int, score float64) {
	n := len(scores) - 1
	if n < 1 {
		exceptions.Panicf("deptree.MaxTree: need at least one word, got %d", n)
	}
	n1 := n + 1
	at := func(i, j, d int) int { return (i*n1+j)*2 + d }
	size := n1 * n1 * 2
	complete := make([]float64, size)
	incomplete := make([]float64, size)
	completeSplit := make([]int, size)
	incompleteSplit := make([]int, size)
	for i := range complete {
		complete[i] = math.Inf(-1)
		incomplete[i] = math.Inf(-1)
	}
	for i := range n1 {
		complete[at(i, i, left)] = 0
		complete[at(i, i, right)] = 0
	}
	for k := 1; k < n1; k++ {
		for i := 0; i+k < n1; i++ {
			j := i + k
			base, split := math.Inf(-1), i
			for r := i; r < j; r++ {
				if v := complete[at(i, r, right)] + complete[at(r+1, j, left)]; v > base {
					base, split = v, r
				}
			}
			incomplete[at(i, j, right)] = base + scores[i][j]
			incompleteSplit[at(i, j, right)] = split
			if i > 0 {
				incomplete[at(i, j, left)] = base + scores[j][i]
				incompleteSplit[at(i, j, left)] = split
			}

			best, split := math.Inf(-1), i+1
			for r := i + 1; r <= j; r++ {
				if v := incomplete[at(i, r, right)] + complete[at(r, j, right)]; v > best {
					best, split = v, r
				}
			}
			complete[at(i, j, right)], completeSplit[at(i, j, right)] = best, split
			if i == 0 {
				continue
			}
			best, split = math.Inf(-1), i
			for r := i; r < j; r++ {
				if v := complete[at(i, r, left)] + incomplete[at(r, j, left)]; v > best {
					best, split = v, r
				}
			}
			complete[at(i, j, left)], completeSplit[at(i, j, left)] = best, split
		}
	}

	heads = make([]int, n1)
	heads[0] = -1
	var backtrackComplete, backtrackIncomplete func(i, j, d int)
	backtrackComplete = func(i, j, d int) {
		if i == j {
			return
		}
		r := completeSplit[at(i, j, d)]
		if d == right {
			backtrackIncomplete(i, r, right)
			backtrackComplete(r, j, right)
		} else {
			backtrackComplete(i, r, left)
			backtrackIncomplete(r, j, left)
		}
	}
	backtrackIncomplete = func(i, j, d int) {
		if d == right {
			heads[j] = i
		} else {
			heads[i] = j
		}
		r := incompleteSplit[at(i, j, d)]
		backtrackComplete(i, r, right)
		backtrackComplete(r+1, j, left)
	}
	backtrackComplete(0, n, right)
	return heads, complete[at(0, n, right)]
}

// ArcMarginals collects, from the variable beliefs of a run over fg (in any
// algebra, indexed by var node), the probability that each link is present,
// indexed [head][modifier] like the arguments of MaxTree.
func (f *ProjDepTreeFactor) ArcMarginals(fg *graph.FactorGraph, beliefs []*tensor.Tensor) [][]float64 {
	marginals := make([][]float64, f.n+1)
	for h := range marginals {
		marginals[h] = make([]float64, f.n+1)
		for m := 1; m <= f.n; m++ {
			if h == m {
				continue
			}
			i := fg.VarIndex(f.links[h][m])
			if i < 0 {
				exceptions.Panicf("deptree: link %s is not in the factor graph", f.links[h][m].Name())
			}
			b := beliefs[i]
			marginals[h][m] = b.Algebra().ToReal(b.Value(On))
		}
	}
	return marginals
}

// Heads converts an assignment of the link variables into a head array, or
// returns nil if the present links do not give every word exactly one head.
func (f *ProjDepTreeFactor) Heads(cfg graph.VarConfig) []int {
	heads := make([]int, f.n+1)
	heads[0] = -1
	for m := 1; m <= f.n; m++ {
		heads[m] = -1
		for h := 0; h <= f.n; h++ {
			if h == m || cfg[f.links[h][m]] != On {
				continue
			}
			if heads[m] >= 0 {
				return nil
			}
			heads[m] = h
		}
		if heads[m] < 0 {
			return nil
		}
	}
	return heads
}

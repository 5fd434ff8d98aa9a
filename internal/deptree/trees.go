package deptree

import (
	"github.com/born-ml/bpgrad/internal/algebra"
	"github.com/born-ml/bpgrad/internal/autodiff"
	"github.com/gomlx/exceptions"
)

// IsProjectiveTree reports whether heads, with heads[m] the head of word m
// for m in 1..len(heads)-1 (heads[0] is ignored), is a projective tree
// rooted at the wall: every word reaches the wall, and every word between
// the ends of an arc descends from its head.
func IsProjectiveTree(heads []int) bool {
	n := len(heads) - 1
	for m := 1; m <= n; m++ {
		if h := heads[m]; h < 0 || h > n || h == m {
			return false
		}
	}
	// Ancestry: each word must reach the wall in at most n steps.
	for m := 1; m <= n; m++ {
		k, steps := m, 0
		for k != 0 {
			k = heads[k]
			if steps++; steps > n {
				return false
			}
		}
	}
	descends := func(k, h int) bool {
		for ; k != 0; k = heads[k] {
			if k == h {
				return true
			}
		}
		return h == 0
	}
	for m := 1; m <= n; m++ {
		h := heads[m]
		lo, hi := min(h, m), max(h, m)
		for k := lo + 1; k < hi; k++ {
			if !descends(k, h) {
				return false
			}
		}
	}
	return true
}

// BruteForceTrees enumerates every projective tree over n words, as head
// arrays (see IsProjectiveTree) with heads[0] = -1.
func BruteForceTrees(n int) [][]int {
	var trees [][]int
	heads := make([]int, n+1)
	heads[0] = -1
	var rec func(m int)
	rec = func(m int) {
		if m > n {
			if IsProjectiveTree(heads) {
				trees = append(trees, append([]int(nil), heads...))
			}
			return
		}
		for h := 0; h <= n; h++ {
			if h != m {
				heads[m] = h
				rec(m + 1)
			}
		}
	}
	rec(1)
	return trees
}

// InsideOutside returns the arc marginals and log Z of the distribution
// over projective trees with p(tree) ∝ exp(Σ_{h→m ∈ tree} scores[h][m]).
// scores is indexed [head][modifier] over 0..n; the diagonal and the
// column of the wall are ignored. Marginals are indexed like scores.
func InsideOutside(scores [][]float64) (marginals [][]float64, logZ float64) {
	n := len(scores) - 1
	if n < 1 {
		exceptions.Panicf("deptree.InsideOutside: need at least one word, got %d", n)
	}
	s := algebra.LogSign
	t := autodiff.NewScalarTape(s)
	weights := make([][]autodiff.Scalar, n+1)
	for h := range weights {
		if len(scores[h]) != n+1 {
			exceptions.Panicf("deptree.InsideOutside: row %d has %d scores, want %d", h, len(scores[h]), n+1)
		}
		weights[h] = make([]autodiff.Scalar, n+1)
		for m := 1; m <= n; m++ {
			if h != m {
				weights[h][m] = t.Const(s.FromLogProb(scores[h][m]))
			}
		}
	}
	e := newEisner(t, n, weights)
	e.outside()
	marginals = make([][]float64, n+1)
	for h := range marginals {
		marginals[h] = make([]float64, n+1)
		for m := 1; m <= n; m++ {
			if h != m {
				marginals[h][m] = s.ToReal(t.Value(t.Divide(e.arcMass(h, m), e.z)))
			}
		}
	}
	return marginals, s.ToLogProb(t.Value(e.z))
}

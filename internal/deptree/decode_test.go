package deptree

import (
	"math/rand/v2"
	"testing"

	"github.com/born-ml/bpgrad/internal/bp"
	"github.com/born-ml/bpgrad/internal/graph"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func treeScore(scores [][]float64, heads []int) float64 {
	sum := 0.0
	for m := 1; m < len(heads); m++ {
		sum += scores[heads[m]][m]
	}
	return sum
}

func TestMaxTree(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	for n := 1; n <= 5; n++ {
		for range 5 {
			scores := randomScores(rng, n)
			heads, score := MaxTree(scores)
			require.True(t, IsProjectiveTree(heads), "n=%d heads=%v", n, heads)
			assert.InDelta(t, treeScore(scores, heads), score, 1e-12)
			for _, other := range BruteForceTrees(n) {
				assert.LessOrEqual(t, treeScore(scores, other), score+1e-12, "n=%d: %v beats %v", n, other, heads)
			}
		}
	}
	assert.Panics(t, func() { MaxTree([][]float64{{0}}) })
}

func TestMaxTree_MinimumBayesRisk(t *testing.T) {
	rng := rand.New(rand.NewPCG(5, 6))
	scores := randomScores(rng, 4)
	marginals, _ := InsideOutside(scores)
	heads, recall := MaxTree(marginals)
	for _, other := range BruteForceTrees(4) {
		assert.LessOrEqual(t, treeScore(marginals, other), recall+1e-12)
	}
	// Expected recall of a tree never exceeds the number of words.
	assert.LessOrEqual(t, recall, 4.0)
	assert.True(t, IsProjectiveTree(heads))
}

func TestArcMarginalsAndHeads(t *testing.T) {
	fg, tree := parserGraph(3, 7)
	opts := bp.DefaultOptions()
	opts.UpdateOrder = bp.Sequential
	opts.Schedule = bp.TreeLike
	opts.NormalizeMessages = false
	opts.MaxIterations = 1
	engine := must.M1(bp.New(fg, opts))
	engine.Run()

	exact := must.M1(graph.BruteForce(fg))
	got := tree.ArcMarginals(fg, engine.VarBeliefs())
	want := tree.ArcMarginals(fg, exact.VarMarginals)
	for h := range want {
		assert.InDeltaSlice(t, want[h], got[h], 1e-10)
	}
	for m := 1; m <= 3; m++ {
		sum := 0.0
		for h := 0; h <= 3; h++ {
			sum += got[h][m]
		}
		assert.InDelta(t, 1, sum, 1e-10, "every word has one head")
	}

	heads, _ := MaxTree(got)
	cfg := make(graph.VarConfig)
	for _, v := range tree.Vars().Vars() {
		cfg[v] = Off
	}
	for m := 1; m <= 3; m++ {
		cfg[tree.Link(heads[m], m)] = On
	}
	assert.Equal(t, heads, tree.Heads(cfg))

	cfg[tree.Link(0, 1)], cfg[tree.Link(2, 1)] = On, On
	assert.Nil(t, tree.Heads(cfg), "two heads")
	for _, v := range tree.Vars().Vars() {
		cfg[v] = Off
	}
	assert.Nil(t, tree.Heads(cfg), "no head")
}

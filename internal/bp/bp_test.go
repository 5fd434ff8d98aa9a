package bp

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/born-ml/bpgrad/internal/algebra"
	"github.com/born-ml/bpgrad/internal/graph"
	"github.com/born-ml/bpgrad/internal/metrics"
	"github.com/janpfeifer/must"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// linearChain builds the 3-tag chain t0 - t1 - t2 with emission factors on
// every tag and transition factors between neighbours.
func linearChain() (*graph.FactorGraph, []*graph.Var) {
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
	return fg, vars
}

// randomPotential draws every entry uniformly from [lo, lo+1).
func randomPotential(rng *rand.Rand, lo float64, vars ...*graph.Var) *graph.VarTensor {
	vs := graph.NewVarSet(vars...)
	reals := make([]float64, vs.NumConfigs())
	for i := range reals {
		reals[i] = lo + rng.Float64()
	}
	return graph.NewVarTensorFromReals(algebra.Real, vs, reals...)
}

// randomForest builds a tree with a ternary factor and mixed arities, plus a
// second component made of a single variable.
func randomForest(seed uint64) *graph.FactorGraph {
	rng := rand.New(rand.NewPCG(seed, 1))
	a := graph.NewVar(graph.Predicted, 2, "a")
	b := graph.NewVar(graph.Latent, 3, "b")
	c := graph.NewVar(graph.Predicted, 2, "c")
	d := graph.NewVar(graph.Predicted, 2, "d")
	e := graph.NewVar(graph.Predicted, 3, "e")
	fg := graph.New()
	fg.AddFactor(graph.NewExplicitFactor("ua", randomPotential(rng, 0.1, a)))
	fg.AddFactor(graph.NewExplicitFactor("fab", randomPotential(rng, 0.1, a, b)))
	fg.AddFactor(graph.NewExplicitFactor("fbcd", randomPotential(rng, 0.1, b, c, d)))
	fg.AddFactor(graph.NewExplicitFactor("ud", randomPotential(rng, 0.1, d)))
	fg.AddFactor(graph.NewExplicitFactor("ue", randomPotential(rng, 0.1, e)))
	return fg
}

// loop builds a 4-cycle of binary variables.
func loop(seed uint64) *graph.FactorGraph {
	rng := rand.New(rand.NewPCG(seed, 2))
	vars := make([]*graph.Var, 4)
	for i := range vars {
		vars[i] = graph.NewVar(graph.Predicted, 2, fmt.Sprintf("x%d", i))
	}
	fg := graph.New()
	for i, v := range vars {
		fg.AddFactor(graph.NewExplicitFactor("u"+v.Name(), randomPotential(rng, 0.5, v)))
		fg.AddFactor(graph.NewExplicitFactor(fmt.Sprintf("p%d", i), randomPotential(rng, 0.5, v, vars[(i+1)%len(vars)])))
	}
	return fg
}

func treeOptions(s algebra.Algebra) Options {
	opts := DefaultOptions()
	opts.Schedule = TreeLike
	opts.UpdateOrder = Sequential
	opts.MaxIterations = 1
	opts.NormalizeMessages = false
	opts.Algebra = s.Name()
	return opts
}

func realsOf(t *testing.T, bp *BeliefPropagation, i int) []float64 {
	t.Helper()
	return bp.VarBelief(i).Reals()
}

func TestLinearChain(t *testing.T) {
	for _, s := range algebra.All() {
		t.Run(s.Name(), func(t *testing.T) {
			fg, _ := linearChain()
			bp := must.M1(New(fg, treeOptions(s)))
			bp.Run()
			assert.InDeltaSlice(t, []float64{0.079, 0.920}, realsOf(t, bp, 0), 1e-2)
			assert.InDelta(t, 0.5932, bp.Partition(), 1e-2)
			assert.InDelta(t, 0.5933, bp.Partition(), 1e-4)
			assert.InDelta(t, math.Log(0.5933), bp.LogPartition(), 1e-3)
		})
	}
}

// assertMatchesBruteForce compares the beliefs and log Z of a run with exact
// enumeration.
func assertMatchesBruteForce(t *testing.T, fg *graph.FactorGraph, bp *BeliefPropagation, tol float64) {
	t.Helper()
	exact := must.M1(graph.BruteForce(fg))
	for i := range fg.Vars() {
		assert.InDeltaSlice(t, exact.VarMarginals[i].Reals(), realsOf(t, bp, i), tol, "var %s", fg.Var(i))
	}
	for a, b := range bp.FactorBeliefs() {
		assert.InDeltaSlice(t, exact.FactorMarginals[a].Reals(), b.Reals(), tol, "factor %s", fg.Factor(a))
	}
	assert.InDelta(t, exact.LogPartition, bp.LogPartition(), tol)
}

func TestTreeExactInOneSweep(t *testing.T) {
	for _, s := range []algebra.Algebra{algebra.Real, algebra.LogSign, algebra.Log} {
		for _, cache := range []bool{false, true} {
			t.Run(fmt.Sprintf("%s/cache=%v", s.Name(), cache), func(t *testing.T) {
				fg := randomForest(3)
				opts := treeOptions(s)
				opts.CacheFactorBeliefs = cache
				bp := must.M1(New(fg, opts))
				assert.Equal(t, MaxIterationsReached, bp.Run())
				assert.Equal(t, 1, bp.Iterations())
				assertMatchesBruteForce(t, fg, bp, 1e-13)
			})
		}
	}
}

func TestScheduleEquivalence(t *testing.T) {
	fg := randomForest(5)
	ref := must.M1(New(fg, treeOptions(algebra.Real)))
	ref.Run()

	variants := map[string]func(*Options){
		"parallel": func(o *Options) { o.UpdateOrder = Parallel },
		"random":   func(o *Options) { o.Schedule = RandomSchedule },
		"random-normalized": func(o *Options) {
			o.Schedule = RandomSchedule
			o.NormalizeMessages = true
		},
		"parallel-normalized-cached": func(o *Options) {
			o.UpdateOrder = Parallel
			o.NormalizeMessages = true
			o.CacheFactorBeliefs = true
		},
		"parallel-workers": func(o *Options) {
			o.UpdateOrder = Parallel
			o.NumWorkers = 4
		},
	}
	for name, apply := range variants {
		t.Run(name, func(t *testing.T) {
			opts := treeOptions(algebra.Real)
			opts.MaxIterations = 50
			opts.ConvergenceThreshold = 1e-14
			apply(&opts)
			bp := must.M1(New(fg, opts))
			bp.Run()
			assert.True(t, bp.IsConverged())
			for i := range fg.Vars() {
				assert.InDeltaSlice(t, ref.VarBelief(i).Reals(), bp.VarBelief(i).Reals(), 1e-10)
			}
			for a, b := range bp.FactorBeliefs() {
				assert.InDeltaSlice(t, ref.FactorBeliefs()[a].Reals(), b.Reals(), 1e-10)
			}
			// Normalized messages go through the Bethe free energy, exact on trees.
			assert.InDelta(t, ref.LogPartition(), bp.LogPartition(), 1e-10)
		})
	}
}

func TestRandomSchedule_Deterministic(t *testing.T) {
	fg := loop(1)
	opts := DefaultOptions()
	opts.Schedule = RandomSchedule
	opts.UpdateOrder = Sequential
	opts.MaxIterations = 3
	opts.Seed = 99
	run := func() []float64 {
		bp := must.M1(New(fg, opts))
		bp.Run()
		return bp.VarBelief(2).Values()
	}
	assert.Equal(t, run(), run())
}

func TestLoopyConverges(t *testing.T) {
	fg := loop(7)
	opts := DefaultOptions()
	opts.Algebra = algebra.Real.Name()
	opts.MaxIterations = 500
	opts.ConvergenceThreshold = 1e-10
	bp := must.M1(New(fg, opts))
	require.Equal(t, Converged, bp.Run())
	assert.Less(t, bp.Iterations(), 500)
	assert.Less(t, bp.MaxResidual(), 1e-10)

	exact := must.M1(graph.BruteForce(fg))
	for i := range fg.Vars() {
		b := bp.VarBelief(i).Reals()
		assert.InDelta(t, 1, b[0]+b[1], 1e-12)
		// Loopy beliefs approximate the exact marginals.
		assert.InDeltaSlice(t, exact.VarMarginals[i].Reals(), b, 0.1)
	}
	assert.InDelta(t, exact.LogPartition, bp.LogPartition(), 0.1)
	for _, lp := range bp.VarBeliefsInLogProb() {
		assert.Equal(t, algebra.Log, lp.Algebra())
	}
}

func TestTreeLikeOnLoopIsAnError(t *testing.T) {
	opts := DefaultOptions()
	opts.UpdateOrder = Sequential
	_, err := New(loop(1), opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")

	// Parallel sweeps ignore the schedule kind.
	opts.UpdateOrder = Parallel
	_, err = New(loop(1), opts)
	require.NoError(t, err)
}

func TestClampedChain(t *testing.T) {
	fg, vars := linearChain()
	clamped := fg.GetClamped(graph.VarConfig{vars[1]: 1})
	require.Equal(t, 2, clamped.NumVars())
	bp := must.M1(New(clamped, treeOptions(algebra.LogSign)))
	bp.Run()
	assertMatchesBruteForce(t, clamped, bp, 1e-12)

	// t0 given t1 = V, read off the joint of tran01.
	exact := must.M1(graph.BruteForce(fg))
	joint := exact.FactorMarginals[3].Reals()
	p1 := joint[1] + joint[3]
	assert.InDeltaSlice(t, []float64{joint[1] / p1, joint[3] / p1}, realsOf(t, bp, 0), 1e-12)
}

func TestClampedLoopIsATree(t *testing.T) {
	fg := loop(3)
	_, err := New(fg, treeOptions(algebra.Real))
	require.Error(t, err)

	clamped := fg.GetClamped(graph.VarConfig{fg.Var(0): 1})
	bp := must.M1(New(clamped, treeOptions(algebra.Real)))
	bp.Run()
	assertMatchesBruteForce(t, clamped, bp, 1e-12)
}

func TestRunContext_Canceled(t *testing.T) {
	fg := loop(1)
	bp := must.M1(New(fg, DefaultOptions()))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := bp.RunContext(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, Canceled, bp.Status())
	assert.Equal(t, 0, bp.Iterations())
	// Outputs are still available, from the initial messages.
	assert.InDeltaSlice(t, []float64{0.5, 0.5}, bp.VarBelief(0).Reals(), 1e-15)
	assert.Len(t, bp.VarBeliefs(), fg.NumVars())
}

func TestRun_Timeout(t *testing.T) {
	opts := DefaultOptions()
	opts.TimeoutSeconds = 1e-9
	opts.ConvergenceThreshold = 0
	bp := must.M1(New(loop(1), opts))
	assert.Equal(t, TimedOut, bp.Run())
	assert.False(t, bp.IsConverged())
}

func TestOutputsBeforeRunPanic(t *testing.T) {
	fg, _ := linearChain()
	bp := must.M1(New(fg, DefaultOptions()))
	assert.Equal(t, NotRun, bp.Status())
	assert.Panics(t, func() { bp.VarBeliefs() })
	assert.Panics(t, func() { bp.LogPartition() })
}

func TestMetrics(t *testing.T) {
	fg, _ := linearChain()
	reg := prometheus.NewRegistry()
	bp := must.M1(New(fg, treeOptions(algebra.Real)))
	bp.SetMetrics(metrics.New(reg))
	bp.Run()
	bp.Run()

	assert.Equal(t, 1, must.M1(testutil.GatherAndCount(reg, "bpgrad_bp_runs_total")))
	families := must.M1(reg.Gather())
	values := map[string]float64{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				values[mf.GetName()] += m.GetCounter().GetValue()
			case m.GetHistogram() != nil:
				values[mf.GetName()] += float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	assert.Equal(t, 2.0, values["bpgrad_bp_runs_total"])
	assert.Equal(t, float64(2*fg.NumEdges()), values["bpgrad_bp_messages_total"])
	assert.Equal(t, 2.0, values["bpgrad_bp_sweep_duration_seconds"])
}

func TestOptions(t *testing.T) {
	opts := must.M1(ParseOptions([]byte(`
schedule: RANDOM
updateOrder: SEQUENTIAL
maxIterations: 7
normalizeMessages: false
algebra: SPLIT
seed: 12
`)))
	assert.Equal(t, RandomSchedule, opts.Schedule)
	assert.Equal(t, Sequential, opts.UpdateOrder)
	assert.Equal(t, 7, opts.MaxIterations)
	assert.False(t, opts.NormalizeMessages)
	assert.Equal(t, uint64(12), opts.Seed)
	// Unset fields keep their defaults.
	assert.Equal(t, 1e-8, opts.ConvergenceThreshold)
	s := must.M1(opts.AlgebraImpl())
	assert.Equal(t, algebra.Split, s)

	for _, bad := range []string{
		"schedule: BFS",
		"updateOrder: ASYNC",
		"maxIterations: 0",
		"algebra: TROPICAL",
		"timeoutSeconds: -1",
		"maxIterations: [1",
	} {
		_, err := ParseOptions([]byte(bad))
		assert.Error(t, err, bad)
	}

	path := filepath.Join(t.TempDir(), "opts.yaml")
	require.NoError(t, os.WriteFile(path, []byte("algebra: REAL\nnumWorkers: 3\n"), 0o600))
	opts = must.M1(LoadOptions(path))
	assert.Equal(t, "REAL", opts.Algebra)
	assert.Equal(t, 3, opts.NumWorkers)
	_, err := LoadOptions(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestResidual(t *testing.T) {
	v := graph.NewVarSet(graph.NewVar(graph.Latent, 2, "v"))
	a := graph.NewVarTensorFromReals(algebra.Real, v, 0, 0.5)
	b := graph.NewVarTensorFromReals(algebra.Real, v, 0, 0.25)
	assert.InDelta(t, math.Log(2), residual(a, b), 1e-15)
	assert.Equal(t, 0.0, residual(a, a.Clone()))
	c := graph.NewVarTensorFromReals(algebra.Real, v, math.NaN(), 0.5)
	assert.True(t, math.IsInf(residual(a, c), 1))
}

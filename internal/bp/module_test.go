package bp

import (
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/born-ml/bpgrad/internal/algebra"
	"github.com/born-ml/bpgrad/internal/autodiff"
	"github.com/born-ml/bpgrad/internal/graph"
	"github.com/born-ml/bpgrad/internal/tensor"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// oneWeightPerEntry gives every configuration of every explicit factor its
// own indicator feature, plus a shared feature on the first state of each
// configuration, and returns the tables and the number of weights.
func oneWeightPerEntry(fg *graph.FactorGraph) ([]FeatureTable, int) {
	feats := make([]FeatureTable, fg.NumFactors())
	k := 1
	for a, f := range fg.Factors() {
		if f.Kind() == graph.Global {
			continue
		}
		n := f.Vars().NumConfigs()
		feats[a] = make(FeatureTable, n)
		for c := 0; c < n; c++ {
			feats[a][c] = []Feature{{Index: k, Value: 1}}
			if f.Vars().Assignment(c)[0] == 0 {
				feats[a][c] = append(feats[a][c], Feature{Index: 0, Value: 0.5})
			}
			k++
		}
	}
	return feats, k
}

type pipeline struct {
	theta   *autodiff.Identity[*tensor.Tensor]
	factors *FactorsModule
	bp      *Module
}

func newPipeline(t *testing.T, fg *graph.FactorGraph, opts Options, seed uint64) *pipeline {
	t.Helper()
	feats, n := oneWeightPerEntry(fg)
	return newPipelineWithFeatures(t, fg, feats, n, opts, seed)
}

// newPipelineWithFeatures draws n weights uniformly from [-1, 1).
func newPipelineWithFeatures(t *testing.T, fg *graph.FactorGraph, feats []FeatureTable, n int, opts Options, seed uint64) *pipeline {
	t.Helper()
	s := must.M1(opts.AlgebraImpl())
	rng := rand.New(rand.NewPCG(seed, 3))
	w := make([]float64, n)
	for i := range w {
		w[i] = 2*rng.Float64() - 1
	}
	theta := autodiff.NewIdentity(tensor.FromReals(algebra.Real, w, n))
	factors := NewFactorsModule(fg, theta, feats, s)
	m, err := NewModule(fg, factors, opts)
	require.NoError(t, err)
	return &pipeline{theta: theta, factors: factors, bp: m}
}

// backprop runs loss forward, seeds its adjoint with one and returns the
// adjoint of the weights.
func (p *pipeline) backprop(t *testing.T, loss autodiff.Module[*tensor.Tensor]) []float64 {
	t.Helper()
	topo := must.M1(autodiff.NewTopoOrderFromRoot[*tensor.Tensor](loss, p.theta))
	topo.Forward()
	topo.ZeroOutputAdj()
	p.theta.ZeroOutputAdj()
	topo.OutputAdj().Fill(loss.Output().Algebra().One())
	topo.Backward()
	return p.theta.OutputAdj().Reals()
}

func checkGradients[T autodiff.Container[T]](t *testing.T, p *pipeline, root autodiff.Module[T]) {
	t.Helper()
	topo := must.M1(autodiff.NewTopoOrderFromRoot(root, p.theta))
	res := autodiff.CheckGradients[T](topo, []*autodiff.Identity[*tensor.Tensor]{p.theta}, 1e-6, rand.New(rand.NewPCG(11, 13)))
	assert.Less(t, res.MaxAbsDiff, 1e-5, "analytic %v\nnumeric %v", res.Analytic, res.Numeric)
}

func TestModule_FiniteDifferences(t *testing.T) {
	graphs := map[string]func() *graph.FactorGraph{
		"chain": func() *graph.FactorGraph { fg, _ := linearChain(); return fg },
		"tree":  func() *graph.FactorGraph { return randomForest(9) },
		"loop":  func() *graph.FactorGraph { return loop(4) },
	}
	for name, build := range graphs {
		for _, order := range []UpdateOrder{Parallel, Sequential} {
			for _, normalize := range []bool{true, false} {
				for _, cache := range []bool{false, true} {
					fg := build()
					opts := DefaultOptions()
					opts.UpdateOrder = order
					opts.NormalizeMessages = normalize
					opts.CacheFactorBeliefs = cache
					opts.ConvergenceThreshold = 0
					opts.MaxIterations = 6
					if name == "loop" {
						opts.Schedule = RandomSchedule
						opts.Seed = 5
					} else if order == Sequential {
						opts.MaxIterations = 1
					}
					t.Run(fmt.Sprintf("%s/%s/normalize=%v/cache=%v", name, order, normalize, cache), func(t *testing.T) {
						p := newPipeline(t, fg, opts, 1)
						checkGradients(t, p, autodiff.Module[*Beliefs](p.bp))
					})
				}
			}
		}
	}
}

func TestModule_Algebras(t *testing.T) {
	for _, s := range []algebra.Algebra{algebra.Real, algebra.Split, algebra.ShiftedReal} {
		t.Run(s.Name(), func(t *testing.T) {
			fg, _ := linearChain()
			opts := DefaultOptions()
			opts.Algebra = s.Name()
			opts.MaxIterations = 5
			opts.ConvergenceThreshold = 0
			p := newPipeline(t, fg, opts, 2)
			checkGradients(t, p, autodiff.Module[*Beliefs](p.bp))
		})
	}
}

func TestModule_LogAlgebraRejected(t *testing.T) {
	fg, _ := linearChain()
	opts := DefaultOptions()
	opts.Algebra = algebra.Log.Name()
	feats, n := oneWeightPerEntry(fg)
	theta := autodiff.NewIdentity(tensor.New(algebra.Real, n))
	_, err := NewModule(fg, NewFactorsModule(fg, theta, feats, algebra.Log), opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LOG")
}

func TestModule_MatchesEngine(t *testing.T) {
	fg, _ := linearChain()
	opts := treeOptions(algebra.LogSign)
	feats := make([]FeatureTable, fg.NumFactors())
	theta := autodiff.NewIdentity(tensor.New(algebra.Real, 1))
	factors := NewFactorsModule(fg, theta, feats, algebra.LogSign)
	m := must.M1(NewModule(fg, factors, opts))
	factors.Forward()
	m.Forward()
	out := m.Output()
	assert.InDeltaSlice(t, []float64{0.0792, 0.9208}, out.Vars[0].Reals(), 1e-4)
	assert.InDelta(t, math.Log(0.5933), algebra.LogSign.ToReal(out.LogPartition.Value(0)), 1e-4)
	assert.Equal(t, MaxIterationsReached, m.Engine().Status())

	// d log Z / d ψ_a(x) = b_a(x) / ψ_a(x).
	m.OutputAdj().LogPartition.Fill(algebra.LogSign.One())
	m.Backward()
	psi := []float64{0.2, 0.4, 0.3, 0.5}
	b := out.Factors[3].Reals()
	adj := factors.OutputAdj().Potentials[3].Reals()
	for i := range psi {
		assert.InDelta(t, b[i]/psi[i], adj[i], 1e-10)
	}
	factors.Backward()
	assert.Equal(t, []float64{0}, theta.OutputAdj().Reals())
}

func TestLogPartitionAdjointIsFactorMarginal(t *testing.T) {
	// d log Z / d θ_k for an indicator feature is the marginal of its entry.
	fg := randomForest(2)
	p := newPipeline(t, fg, treeOptions(algebra.LogSign), 4)
	adj := p.backprop(t, NewLogPartitionOut(p.bp))
	beliefs := p.bp.Output()
	feats, _ := oneWeightPerEntry(fg)
	shared := 0.0
	for a, ft := range feats {
		b := beliefs.Factors[a].Reals()
		for c, fv := range ft {
			assert.InDelta(t, b[c], adj[fv[0].Index], 1e-10, "factor %s config %d", fg.Factor(a), c)
			if len(fv) > 1 {
				shared += 0.5 * b[c]
			}
		}
	}
	assert.InDelta(t, shared, adj[0], 1e-10)
}

func TestLosses_FiniteDifferences(t *testing.T) {
	fg, vars := linearChain()
	gold := graph.VarConfig{vars[0]: 1, vars[2]: 0}
	losses := map[string]func(in autodiff.Module[*Beliefs]) autodiff.Module[*tensor.Tensor]{
		"mse": func(in autodiff.Module[*Beliefs]) autodiff.Module[*tensor.Tensor] { return NewMSELoss(fg, in, gold) },
		"recall": func(in autodiff.Module[*Beliefs]) autodiff.Module[*tensor.Tensor] {
			return NewExpectedRecall(fg, in, gold)
		},
		"logZ": func(in autodiff.Module[*Beliefs]) autodiff.Module[*tensor.Tensor] { return NewLogPartitionOut(in) },
	}
	for name, build := range losses {
		t.Run(name, func(t *testing.T) {
			opts := DefaultOptions()
			opts.MaxIterations = 4
			opts.ConvergenceThreshold = 0
			p := newPipeline(t, fg, opts, 6)
			checkGradients(t, p, build(p.bp))
		})
	}
}

func TestLosses_Values(t *testing.T) {
	fg, vars := linearChain()
	m := must.M1(New(fg, treeOptions(algebra.Real)))
	m.Run()
	beliefs := &Beliefs{Vars: m.VarBeliefs(), Factors: m.FactorBeliefs(), LogPartition: tensor.Scalar(algebra.Real, m.LogPartition())}
	in := autodiff.NewIdentity(beliefs)
	gold := graph.VarConfig{vars[0]: 1}

	mse := NewMSELoss(fg, in, gold)
	mse.Forward()
	b0 := m.VarBelief(0).Reals()
	assert.InDelta(t, b0[0]*b0[0]+(b0[1]-1)*(b0[1]-1), mse.Output().Value(0), 1e-12)

	recall := NewExpectedRecall(fg, in, gold)
	recall.Forward()
	assert.InDelta(t, -b0[1], recall.Output().Value(0), 1e-12)

	assert.Panics(t, func() { NewMSELoss(fg, in, graph.VarConfig{graph.NewVar(graph.Latent, 2, "stranger"): 0}) })
}

func TestFactors_Container(t *testing.T) {
	f := &Factors{Potentials: []*tensor.Tensor{
		tensor.FromReals(algebra.Real, []float64{1, 2}, 2),
		nil,
		tensor.FromReals(algebra.Real, []float64{3, 4, 5}, 3),
	}}
	assert.Equal(t, 5, f.Size())
	assert.Equal(t, algebra.Real, f.Algebra())
	assert.Equal(t, 3.0, f.Value(2))
	f.AddValue(4, 1)
	assert.Equal(t, 6.0, f.Value(4))
	z := f.CopyAndFill(0)
	assert.Nil(t, z.Potentials[1])
	assert.Equal(t, []float64{0, 0, 0}, z.Potentials[2].Values())
	assert.Panics(t, func() { f.Value(5) })
}

func TestScheduleEquivalence_Adjoints(t *testing.T) {
	fg := randomForest(5)
	gold := graph.VarConfig{fg.Var(0): 1, fg.Var(2): 0}
	losses := map[string]func(in autodiff.Module[*Beliefs]) autodiff.Module[*tensor.Tensor]{
		"logZ": func(in autodiff.Module[*Beliefs]) autodiff.Module[*tensor.Tensor] { return NewLogPartitionOut(in) },
		"mse":  func(in autodiff.Module[*Beliefs]) autodiff.Module[*tensor.Tensor] { return NewMSELoss(fg, in, gold) },
	}
	for name, build := range losses {
		for _, normalize := range []bool{false, true} {
			t.Run(fmt.Sprintf("%s/normalize=%v", name, normalize), func(t *testing.T) {
				seq := treeOptions(algebra.LogSign)
				seq.NormalizeMessages = normalize
				ref := newPipeline(t, fg, seq, 8)
				refLoss := build(ref.bp)
				refAdj := ref.backprop(t, refLoss)

				par := seq
				par.UpdateOrder = Parallel
				par.MaxIterations = 12
				par.ConvergenceThreshold = 0
				p := newPipeline(t, fg, par, 8)
				loss := build(p.bp)
				adj := p.backprop(t, loss)

				assert.InDelta(t, refLoss.Output().Reals()[0], loss.Output().Reals()[0], 1e-10)
				assert.InDeltaSlice(t, refAdj, adj, 1e-10)
				assert.NotEqual(t, make([]float64, len(adj)), adj)
			})
		}
	}
}

func TestCachedBeliefs_ZeroMessages(t *testing.T) {
	fg, vars := linearChain()
	hard := fg.AddFactor(graph.NewExplicitFactor("hard",
		graph.NewVarTensorFromReals(algebra.Real, graph.NewVarSet(vars[1]), 0, 1)))
	feats, n := oneWeightPerEntry(fg)
	feats[hard] = nil

	type result struct {
		beliefs [][]float64
		logZ    float64
		adj     []float64
	}
	run := func(cache bool) result {
		opts := DefaultOptions()
		opts.UpdateOrder = Parallel
		opts.MaxIterations = 4
		opts.ConvergenceThreshold = 0
		opts.CacheFactorBeliefs = cache
		p := newPipelineWithFeatures(t, fg, feats, n, opts, 3)
		loss := NewLogPartitionOut(p.bp)
		var r result
		r.adj = p.backprop(t, loss)
		r.logZ = loss.Output().Reals()[0]
		out := p.bp.Output()
		for _, b := range slices.Concat(out.Vars, out.Factors) {
			r.beliefs = append(r.beliefs, b.Reals())
		}
		return r
	}

	want, got := run(false), run(true)
	assert.InDeltaSlice(t, []float64{0, 1}, want.beliefs[1], 1e-15)
	require.Len(t, got.beliefs, len(want.beliefs))
	for i := range want.beliefs {
		for _, x := range got.beliefs[i] {
			require.False(t, math.IsNaN(x), "belief %d: %v", i, got.beliefs[i])
		}
		assert.InDeltaSlice(t, want.beliefs[i], got.beliefs[i], 1e-10, "belief %d", i)
	}
	assert.InDelta(t, want.logZ, got.logZ, 1e-10)
	assert.InDeltaSlice(t, want.adj, got.adj, 1e-10)
}

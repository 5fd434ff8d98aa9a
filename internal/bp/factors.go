package bp

import (
	"github.com/born-ml/bpgrad/internal/algebra"
	"github.com/born-ml/bpgrad/internal/autodiff"
	"github.com/born-ml/bpgrad/internal/graph"
	"github.com/born-ml/bpgrad/internal/tensor"
	"github.com/gomlx/exceptions"
)

// Feature is one entry of a sparse feature vector.
type Feature struct {
	Index int
	Value float64
}

// FeatureTable holds the feature vector of every configuration of a factor,
// indexed by config.
type FeatureTable [][]Feature

// FactorsModule computes log-linear potentials ψ_a(x) = exp(θ·f_a(x)) from a
// module producing the weights θ (a rank-1 tensor). Factors without a
// feature table keep their own, constant, potential; global factors have
// none.
type FactorsModule struct {
	autodiff.Base[*Factors]
	fg      *graph.FactorGraph
	weights autodiff.Module[*tensor.Tensor]
	feats   []FeatureTable
	s       algebra.Algebra
}

// NewFactorsModule creates a FactorsModule producing potentials in algebra s.
// feats is indexed by factor node.
func NewFactorsModule(fg *graph.FactorGraph, weights autodiff.Module[*tensor.Tensor], feats []FeatureTable, s algebra.Algebra) *FactorsModule {
	if len(feats) != fg.NumFactors() {
		exceptions.Panicf("bp.NewFactorsModule: %d feature tables for %d factors", len(feats), fg.NumFactors())
	}
	for a, ft := range feats {
		if ft == nil {
			continue
		}
		f := fg.Factor(a)
		if f.Kind() == graph.Global {
			exceptions.Panicf("bp.NewFactorsModule: global factor %s cannot have features", f)
		}
		if len(ft) != f.Vars().NumConfigs() {
			exceptions.Panicf("bp.NewFactorsModule: factor %s has %d configs, feature table has %d", f, f.Vars().NumConfigs(), len(ft))
		}
	}
	return &FactorsModule{
		Base:    autodiff.NewBase[*Factors](weights),
		fg:      fg,
		weights: weights,
		feats:   feats,
		s:       s,
	}
}

// Forward implements autodiff.Node.
func (m *FactorsModule) Forward() {
	theta := m.weights.Output()
	ws := theta.Algebra()
	out := &Factors{Potentials: make([]*tensor.Tensor, m.fg.NumFactors())}
	for a, f := range m.fg.Factors() {
		if f.Kind() == graph.Global {
			continue
		}
		ft := m.feats[a]
		if ft == nil {
			out.Potentials[a] = f.Potential().CopyAndConvertAlgebra(m.s)
			continue
		}
		pot := tensor.New(m.s, f.Vars().Dims()...)
		for c, fv := range ft {
			score := 0.0
			for _, feat := range fv {
				score += ws.ToReal(theta.Value(feat.Index)) * feat.Value
			}
			pot.SetValue(c, m.s.FromLogProb(score))
		}
		out.Potentials[a] = pot
	}
	m.SetOutput(out)
}

// Backward implements autodiff.Node: adjθ_k += Σ_a Σ_x adjψ_a(x)·ψ_a(x)·f_a(x)_k.
func (m *FactorsModule) Backward() {
	out, adj := m.Output(), m.OutputAdj()
	wAdj := m.weights.OutputAdj()
	ws := wAdj.Algebra()
	for a, ft := range m.feats {
		if ft == nil {
			continue
		}
		pot, g := out.Potentials[a], adj.Potentials[a]
		for c, fv := range ft {
			d := m.s.ToReal(m.s.Times(g.Value(c), pot.Value(c)))
			if d == 0 {
				continue
			}
			for _, feat := range fv {
				wAdj.AddValue(feat.Index, ws.FromReal(d*feat.Value))
			}
		}
	}
}

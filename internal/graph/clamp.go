package graph

import (
	"github.com/born-ml/bpgrad/internal/tensor"
	"github.com/gomlx/exceptions"
)

// GetClamped returns a copy of fg conditioned on cfg. The clamped variables
// leave the graph: every factor is restricted to its free variables, its
// potential read at the clamped states, and a factor left with no free
// variable is dropped. Global factors are wrapped so that they see indicator
// messages on their clamped variables. The free variables are shared with
// fg; factors are not.
//
// Dropped factors are constants of the conditional distribution, so the
// partition function of the clamped graph omits their product.
func (fg *FactorGraph) GetClamped(cfg VarConfig) *FactorGraph {
	for v, s := range cfg {
		if fg.VarIndex(v) < 0 {
			exceptions.Panicf("graph.GetClamped: variable %s is not in the graph", v.name)
		}
		if s < 0 || s >= v.numStates {
			exceptions.Panicf("graph.GetClamped: state %d out of range for %s (%d states)", s, v.name, v.numStates)
		}
	}
	clamped := cfg.VarSet()
	out := New()
	for _, v := range fg.vars {
		if !clamped.Contains(v) {
			out.AddVar(v)
		}
	}
	for _, f := range fg.factors {
		free := f.vars.Diff(clamped)
		if free.Len() == 0 {
			continue
		}
		if f.kind == Global {
			g := f.global
			if free.Len() < f.vars.Len() {
				g = newClampedGlobal(f.global, f.vars, cfg)
			}
			out.AddFactor(NewGlobalFactor(f.name, free, g))
			continue
		}
		out.AddFactor(NewExplicitFactor(f.name, clampPotential(f.pot, cfg)))
	}
	return out
}

// clampPotential selects the clamped states of pot, dimension by dimension
// from the last, and returns the table over the remaining variables.
func clampPotential(pot *VarTensor, cfg VarConfig) *VarTensor {
	vars := pot.Vars()
	t := pot.Tensor.Clone()
	for i := vars.Len() - 1; i >= 0; i-- {
		if s, ok := cfg[vars.vars[i]]; ok {
			t = t.Select(i, s)
		}
	}
	return WrapTensor(t, vars.Diff(cfg.VarSet()))
}

// clampedGlobal runs a global factor over all its original variables, with
// the clamped ones receiving indicator messages, and only exposes the
// messages of the free ones.
type clampedGlobal struct {
	inner GlobalFactor
	n     int   // Number of original variables.
	free  []int // Original positions of the free variables, in order.
	fixed []int // State per original position, -1 when free.
	dims  []int // States per original position.
}

// The wrapper implements BetheTermer and Scorer exactly when the wrapped
// factor does.
type (
	clampedBethe       struct{ *clampedGlobal }
	clampedScorer      struct{ *clampedGlobal }
	clampedBetheScorer struct{ *clampedGlobal }
)

var (
	_ GlobalFactor = (*clampedGlobal)(nil)
	_ BetheTermer  = clampedBethe{}
	_ Scorer       = clampedScorer{}
	_ BetheTermer  = clampedBetheScorer{}
	_ Scorer       = clampedBetheScorer{}
)

func newClampedGlobal(inner GlobalFactor, vars VarSet, cfg VarConfig) GlobalFactor {
	g := &clampedGlobal{inner: inner, n: vars.Len(), fixed: make([]int, vars.Len()), dims: vars.Dims()}
	for i, v := range vars.vars {
		s, ok := cfg[v]
		if !ok {
			s = -1
			g.free = append(g.free, i)
		}
		g.fixed[i] = s
	}
	_, bethe := inner.(BetheTermer)
	_, scorer := inner.(Scorer)
	switch {
	case bethe && scorer:
		return clampedBetheScorer{g}
	case bethe:
		return clampedBethe{g}
	case scorer:
		return clampedScorer{g}
	}
	return g
}

func (g *clampedGlobal) Reset() { g.inner.Reset() }

// expand returns the incoming messages of every original variable.
func (g *clampedGlobal) expand(in []*tensor.Tensor) []*tensor.Tensor {
	if len(in) != len(g.free) {
		exceptions.Panicf("graph: clamped global factor got %d messages for %d free variables", len(in), len(g.free))
	}
	s := in[0].Algebra()
	full := make([]*tensor.Tensor, g.n)
	for k, i := range g.free {
		full[i] = in[k]
	}
	for i, st := range g.fixed {
		if st < 0 {
			continue
		}
		ind := tensor.New(s, g.dims[i])
		ind.SetValue(st, s.One())
		full[i] = ind
	}
	return full
}

func (g *clampedGlobal) restrict(full []*tensor.Tensor) []*tensor.Tensor {
	out := make([]*tensor.Tensor, len(g.free))
	for k, i := range g.free {
		out[k] = full[i]
	}
	return out
}

func (g *clampedGlobal) CreateMessages(in []*tensor.Tensor) []*tensor.Tensor {
	return g.restrict(g.inner.CreateMessages(g.expand(in)))
}

// BackwardCreateMessages gives the discarded messages of the clamped
// variables a zero adjoint.
func (g *clampedGlobal) BackwardCreateMessages(in, outAdj []*tensor.Tensor) []*tensor.Tensor {
	full := g.expand(in)
	s := outAdj[0].Algebra()
	fullAdj := make([]*tensor.Tensor, g.n)
	for i := range fullAdj {
		fullAdj[i] = tensor.New(s, g.dims[i])
	}
	for k, i := range g.free {
		fullAdj[i] = outAdj[k]
	}
	return g.restrict(g.inner.BackwardCreateMessages(full, fullAdj))
}

func (g *clampedGlobal) betheTerm(in []*tensor.Tensor) float64 {
	return g.inner.(BetheTermer).BetheTerm(g.expand(in))
}

func (g *clampedGlobal) backwardBetheTerm(in []*tensor.Tensor, adj float64) []*tensor.Tensor {
	return g.restrict(g.inner.(BetheTermer).BackwardBetheTerm(g.expand(in), adj))
}

func (g *clampedGlobal) score(states []int) float64 {
	full := make([]int, g.n)
	copy(full, g.fixed)
	for k, i := range g.free {
		full[i] = states[k]
	}
	return g.inner.(Scorer).Score(full)
}

func (g clampedBethe) BetheTerm(in []*tensor.Tensor) float64 { return g.betheTerm(in) }
func (g clampedBethe) BackwardBetheTerm(in []*tensor.Tensor, adj float64) []*tensor.Tensor {
	return g.backwardBetheTerm(in, adj)
}

func (g clampedScorer) Score(states []int) float64 { return g.score(states) }

func (g clampedBetheScorer) BetheTerm(in []*tensor.Tensor) float64 { return g.betheTerm(in) }
func (g clampedBetheScorer) BackwardBetheTerm(in []*tensor.Tensor, adj float64) []*tensor.Tensor {
	return g.backwardBetheTerm(in, adj)
}
func (g clampedBetheScorer) Score(states []int) float64 { return g.score(states) }

// Package deptree implements the projective dependency tree constraint as a
// global factor: a factor over one binary link variable per possible arc
// whose potential is 1 when the links that are on form a projective tree
// and 0 otherwise.
//
// Messages are computed in O(n³) with the inside-outside algorithm over
// Eisner's charts instead of enumerating trees. The whole computation is
// recorded on a scalar tape, which makes the messages differentiable.
package deptree

import (
	"fmt"

	"github.com/born-ml/bpgrad/internal/autodiff"
	"github.com/born-ml/bpgrad/internal/graph"
	"github.com/born-ml/bpgrad/internal/tensor"
	"github.com/gomlx/exceptions"
)

// Link variable states.
const (
	Off = 0
	On  = 1
)

type arc struct{ h, m int }

// ProjDepTreeFactor constrains the link variables of a sentence of n words
// to form a projective dependency tree. Word 0 is the wall, which may head
// several words.
type ProjDepTreeFactor struct {
	n     int
	links [][]*graph.Var // [h][m], nil where h == m or m == 0.
	vars  graph.VarSet
	arcs  []arc // By position in vars.
}

var (
	_ graph.GlobalFactor = (*ProjDepTreeFactor)(nil)
	_ graph.BetheTermer  = (*ProjDepTreeFactor)(nil)
	_ graph.Scorer       = (*ProjDepTreeFactor)(nil)
)

// NewProjDepTreeFactor creates the link variables Link(h,m) of a sentence of
// n words, for heads h in 0..n and modifiers m in 1..n with h ≠ m.
func NewProjDepTreeFactor(n int, typ graph.VarType) *ProjDepTreeFactor {
	if n < 1 {
		exceptions.Panicf("deptree: sentence length must be positive, got %d", n)
	}
	f := &ProjDepTreeFactor{n: n, links: make([][]*graph.Var, n+1)}
	var all []*graph.Var
	byVar := make(map[*graph.Var]arc)
	for h := 0; h <= n; h++ {
		f.links[h] = make([]*graph.Var, n+1)
		for m := 1; m <= n; m++ {
			if h == m {
				continue
			}
			v := graph.NewVar(typ, 2, fmt.Sprintf("Link_%d_%d", h, m), "FALSE", "TRUE")
			f.links[h][m] = v
			byVar[v] = arc{h, m}
			all = append(all, v)
		}
	}
	f.vars = graph.NewVarSet(all...)
	f.arcs = make([]arc, f.vars.Len())
	for i, v := range f.vars.Vars() {
		f.arcs[i] = byVar[v]
	}
	return f
}

// N returns the number of words.
func (f *ProjDepTreeFactor) N() int { return f.n }

// Link returns the variable of arc h → m.
func (f *ProjDepTreeFactor) Link(h, m int) *graph.Var {
	if h < 0 || h > f.n || m < 1 || m > f.n || h == m {
		exceptions.Panicf("deptree: no link %d -> %d in a sentence of %d words", h, m, f.n)
	}
	return f.links[h][m]
}

// Vars returns the link variables.
func (f *ProjDepTreeFactor) Vars() graph.VarSet { return f.vars }

// Factor wraps f into a global factor of a factor graph.
func (f *ProjDepTreeFactor) Factor() *graph.Factor {
	return graph.NewGlobalFactor(fmt.Sprintf("ProjDepTree%d", f.n), f.vars, f)
}

// Reset implements graph.GlobalFactor. The factor keeps no state across
// calls.
func (f *ProjDepTreeFactor) Reset() {}

// CreateMessages implements graph.GlobalFactor.
//
// With incoming messages m_i and the odds r_i = m_i(On)/m_i(Off) as arc
// weights, the outgoing message of link i is
//
//	out_i(Off) = Π_{j≠i} m_j(Off) · (Z - M_i)
//	out_i(On)  = Π_{j≠i} m_j(Off) · M_i / r_i
//
// where Z sums the weights of all trees and M_i those of the trees
// containing arc i.
//
// A link whose incoming message is zero in state Off is forced: only trees
// containing it count. Its weight is m_i(On), its Off entry is left out of
// the products, and every other arc into the same word gets weight zero in
// the chart. The adjoint of a forced link's Off entry is zero.
func (f *ProjDepTreeFactor) CreateMessages(in []*tensor.Tensor) []*tensor.Tensor {
	p := f.run(in)
	p.messages()
	s := p.tape.Algebra()
	out := make([]*tensor.Tensor, len(f.arcs))
	for i, o := range p.out {
		out[i] = tensor.FromValues(s, []float64{p.tape.Value(o[Off]), p.tape.Value(o[On])}, 2)
	}
	return out
}

// BackwardCreateMessages implements graph.GlobalFactor. It replays the
// forward computation and walks its tape backwards.
func (f *ProjDepTreeFactor) BackwardCreateMessages(in, outAdj []*tensor.Tensor) []*tensor.Tensor {
	p := f.run(in)
	p.messages()
	seeds := make(map[autodiff.Scalar]float64, 2*len(p.out))
	for i, o := range p.out {
		seeds[o[Off]] = outAdj[i].Value(Off)
		seeds[o[On]] = outAdj[i].Value(On)
	}
	return p.inputAdjoints(p.tape.Backward(seeds))
}

// BetheTerm implements graph.BetheTermer: Σ_y b(y)·log b(y) for the factor
// belief b(y) ∝ Π_i m_i(y_i) over trees, that is
//
//	Σ_i [μ_i·log m_i(On) + (1-μ_i)·log m_i(Off)] - log(Π_i m_i(Off) · Z)
//
// with μ_i the marginal of arc i.
func (f *ProjDepTreeFactor) BetheTerm(in []*tensor.Tensor) float64 {
	p := f.run(in)
	return p.tape.Value(p.betheTerm())
}

// BackwardBetheTerm implements graph.BetheTermer.
func (f *ProjDepTreeFactor) BackwardBetheTerm(in []*tensor.Tensor, adj float64) []*tensor.Tensor {
	p := f.run(in)
	t := p.betheTerm()
	return p.inputAdjoints(p.tape.Backward(map[autodiff.Scalar]float64{t: adj}))
}

// Score implements graph.Scorer: 1 if the links that are on form a
// projective tree, 0 otherwise.
func (f *ProjDepTreeFactor) Score(states []int) float64 {
	heads := make([]int, f.n+1)
	for i := range heads {
		heads[i] = -1
	}
	for i, a := range f.arcs {
		if states[i] != On {
			continue
		}
		if heads[a.m] != -1 {
			return 0
		}
		heads[a.m] = a.h
	}
	for m := 1; m <= f.n; m++ {
		if heads[m] == -1 {
			return 0
		}
	}
	if IsProjectiveTree(heads) {
		return 1
	}
	return 0
}

// program is one recorded run of inside-outside on a set of incoming
// messages.
type program struct {
	f      *ProjDepTreeFactor
	tape   *autodiff.ScalarTape
	m      [][2]autodiff.Scalar // Incoming messages.
	w      []autodiff.Scalar    // Arc weights before restriction.
	forced []bool
	// forcedInto counts the forced arcs into each word.
	forcedInto []int
	chart      *eisner
	others     []autodiff.Scalar    // Π_{j≠i} m_j(Off) over links not forced.
	all        autodiff.Scalar      // Π_j m_j(Off) over links not forced.
	out        [][2]autodiff.Scalar // Outgoing messages, after messages().
}

func (f *ProjDepTreeFactor) run(in []*tensor.Tensor) *program {
	if len(in) != len(f.arcs) {
		exceptions.Panicf("deptree: %d incoming messages for %d links", len(in), len(f.arcs))
	}
	s := in[0].Algebra()
	t := autodiff.NewScalarTape(s)
	n := len(in)
	p := &program{
		f:          f,
		tape:       t,
		m:          make([][2]autodiff.Scalar, n),
		w:          make([]autodiff.Scalar, n),
		forced:     make([]bool, n),
		forcedInto: make([]int, f.n+1),
	}
	for i, a := range f.arcs {
		if in[i].Size() != 2 || in[i].Algebra() != s {
			exceptions.Panicf("deptree: message %d must be a binary table in algebra %s", i, s.Name())
		}
		p.m[i] = [2]autodiff.Scalar{t.Const(in[i].Value(Off)), t.Const(in[i].Value(On))}
		if s.ToReal(in[i].Value(Off)) == 0 {
			p.forced[i] = true
			p.forcedInto[a.m]++
			p.w[i] = p.m[i][On]
			continue
		}
		p.w[i] = t.Divide(p.m[i][On], p.m[i][Off])
	}

	zero := t.Const(s.Zero())
	weights := make([][]autodiff.Scalar, f.n+1)
	for h := range weights {
		weights[h] = make([]autodiff.Scalar, f.n+1)
	}
	for i, a := range f.arcs {
		w := p.w[i]
		if k := p.forcedInto[a.m]; k > 1 || k == 1 && !p.forced[i] {
			w = zero
		}
		weights[a.h][a.m] = w
	}
	p.chart = newEisner(t, f.n, weights)
	p.chart.outside()

	// Products of the Off entries leaving one out, from prefix and suffix
	// products.
	one := t.Const(s.One())
	off := func(i int) autodiff.Scalar {
		if p.forced[i] {
			return one
		}
		return p.m[i][Off]
	}
	prefix := make([]autodiff.Scalar, n+1)
	suffix := make([]autodiff.Scalar, n+1)
	prefix[0], suffix[n] = one, one
	for i := 0; i < n; i++ {
		prefix[i+1] = t.Times(prefix[i], off(i))
	}
	for i := n - 1; i >= 0; i-- {
		suffix[i] = t.Times(off(i), suffix[i+1])
	}
	p.others = make([]autodiff.Scalar, n)
	for i := range p.others {
		p.others[i] = t.Times(prefix[i], suffix[i+1])
	}
	p.all = prefix[n]
	return p
}

func (p *program) messages() {
	t := p.tape
	zero := p.chart.zero
	p.out = make([][2]autodiff.Scalar, len(p.f.arcs))
	for i, a := range p.f.arcs {
		// Forced arcs into the same word, other than i.
		rivals := p.forcedInto[a.m]
		if p.forced[i] {
			rivals--
		}
		if rivals > 0 {
			p.out[i][On] = zero
		} else {
			p.out[i][On] = t.Times(p.others[i], p.chart.arcMassWithoutWeight(a.h, a.m))
		}
		if !p.forced[i] {
			mass := p.chart.arcMass(a.h, a.m)
			p.out[i][Off] = t.Times(p.others[i], t.Minus(p.chart.z, mass))
			continue
		}
		// Trees with another head for a.m, which the restricted chart only
		// holds through the outside weights of the other arcs into a.m.
		var terms []autodiff.Scalar
		for j, b := range p.f.arcs {
			if j == i || b.m != a.m || rivals > 0 && !p.forced[j] {
				continue
			}
			terms = append(terms, t.Times(p.w[j], p.chart.arcMassWithoutWeight(b.h, b.m)))
		}
		if rivals > 1 {
			terms = nil
		}
		p.out[i][Off] = t.Times(p.others[i], t.Sum(terms...))
	}
}

func (p *program) betheTerm() autodiff.Scalar {
	t := p.tape
	zero := t.Algebra().Zero()
	z := p.chart.z
	var terms []autodiff.Scalar
	for i, a := range p.f.arcs {
		mass := p.chart.arcMass(a.h, a.m)
		if t.Value(p.m[i][On]) != zero {
			terms = append(terms, t.Times(mass, t.Log(p.m[i][On])))
		}
		if !p.forced[i] && t.Value(p.m[i][Off]) != zero {
			terms = append(terms, t.Times(t.Minus(z, mass), t.Log(p.m[i][Off])))
		}
	}
	expected := t.Divide(t.Sum(terms...), z)
	return t.Minus(expected, t.Log(t.Times(p.all, z)))
}

func (p *program) inputAdjoints(adj []float64) []*tensor.Tensor {
	s := p.tape.Algebra()
	out := make([]*tensor.Tensor, len(p.m))
	for i, m := range p.m {
		out[i] = tensor.FromValues(s, []float64{adj[m[Off]], adj[m[On]]}, 2)
	}
	return out
}

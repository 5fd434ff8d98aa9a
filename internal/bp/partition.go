package bp

import (
	"math"

	"github.com/born-ml/bpgrad/internal/algebra"
	"github.com/born-ml/bpgrad/internal/graph"
	"k8s.io/klog/v2"
)

// partitionAlgebra is the algebra log Z is computed in: log Z and the Bethe
// terms can be negative, so an algebra without negatives falls back to Real.
func partitionAlgebra(s algebra.Algebra) algebra.Algebra {
	if algebra.SupportsNegatives(s) {
		return s
	}
	return algebra.Real
}

// logPartition returns log Z as a scalar tensor. With unnormalized messages
// on an acyclic graph the beliefs carry the exact partition function of each
// component; otherwise the Bethe approximation is used.
func (bp *BeliefPropagation) logPartition(unnormalized []*graph.VarTensor) *graph.VarTensor {
	ps := partitionAlgebra(bp.s)
	conv := func(vt *graph.VarTensor) *graph.VarTensor {
		if ps == bp.s {
			return vt
		}
		return graph.WrapTensor(vt.CopyAndConvertAlgebra(ps), vt.Vars())
	}
	if !bp.opts.NormalizeMessages && bp.fg.IsAcyclic() {
		return bp.treeLogPartition(unnormalized, ps, conv)
	}
	return bp.betheLogPartition(ps, conv)
}

// treeLogPartition sums, over connected components, the log of the total
// mass of one unnormalized belief of the component.
func (bp *BeliefPropagation) treeLogPartition(unnormalized []*graph.VarTensor, ps algebra.Algebra, conv func(*graph.VarTensor) *graph.VarTensor) *graph.VarTensor {
	var terms []*graph.VarTensor
	for _, comp := range bp.fg.ConnectedComponents() {
		root := comp[0]
		var b *graph.VarTensor
		if root.IsVar {
			b = unnormalized[root.Index]
		} else {
			// A factor without variables forms a component on its own.
			b = bp.pots[root.Index]
		}
		z := bp.ops.Marginalize(conv(b), scalarVars)
		terms = append(terms, bp.ops.Log(z))
	}
	return bp.ops.LinearCombination(ps, terms, ones(len(terms)))
}

// betheLogPartition returns -F, with the Bethe free energy
//
//	F = Σ_a Σ_x b_a(x)·log(b_a(x)/ψ_a(x)) - Σ_i (d_i - 1)·Σ_x b_i(x)·log b_i(x)
//
// where d_i is the number of factors of variable i.
func (bp *BeliefPropagation) betheLogPartition(ps algebra.Algebra, conv func(*graph.VarTensor) *graph.VarTensor) *graph.VarTensor {
	var terms []*graph.VarTensor
	var weights []float64
	for a, f := range bp.fg.Factors() {
		if f.Kind() == graph.Explicit {
			terms = append(terms, bp.ops.BetheFactorTerm(conv(bp.factorBeliefs[a]), conv(bp.pots[a])))
			weights = append(weights, -1)
			continue
		}
		bt, ok := f.Global().(graph.BetheTermer)
		if !ok {
			klog.Warningf("bp run %s: global factor %s has no Bethe term, log partition is NaN", bp.runID, f.Name())
			return wrapScalar(ps, ps.FromReal(math.NaN()))
		}
		inEdges := bp.fg.EdgesInto(graph.Node{Index: a})
		in := make([]*graph.VarTensor, len(inEdges))
		for i, e := range inEdges {
			in[i] = conv(bp.msgs.current(e))
		}
		terms = append(terms, bp.ops.GlobalBethe(bt, in))
		weights = append(weights, -1)
	}
	for i := range bp.fg.Vars() {
		d := bp.fg.Degree(graph.Node{IsVar: true, Index: i})
		if d == 1 {
			continue
		}
		terms = append(terms, bp.ops.BetheVarTerm(conv(bp.varBeliefs[i]), float64(d-1)))
		weights = append(weights, 1)
	}
	return bp.ops.LinearCombination(ps, terms, weights)
}

func ones(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 1
	}
	return w
}

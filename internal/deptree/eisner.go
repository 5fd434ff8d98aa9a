package deptree

import (
	"github.com/born-ml/bpgrad/internal/autodiff"
)

// Directions of a chart item: right items have their head at the left end
// of the span, left items at the right end.
const (
	left  = 0
	right = 1
)

// eisner holds the inside and outside charts of Eisner's O(n³) algorithm
// for projective dependency trees over the nodes 0 (the wall) to n, as
// handles on a scalar tape. The wall may head any number of words.
type eisner struct {
	tape    *autodiff.ScalarTape
	n1      int
	weights [][]autodiff.Scalar // Arc weights, [head][modifier].
	zero    autodiff.Scalar

	complete   []autodiff.Scalar
	incomplete []autodiff.Scalar
	base       []autodiff.Scalar // Per span: Σ_r C(i,r,→)·C(r+1,j,←).
	z          autodiff.Scalar

	incompleteOut []autodiff.Scalar
}

func (e *eisner) at(i, j, d int) int { return (i*e.n1+j)*2 + d }

// newEisner runs the inside pass for n words.
func newEisner(tape *autodiff.ScalarTape, n int, weights [][]autodiff.Scalar) *eisner {
	e := &eisner{tape: tape, n1: n + 1, weights: weights}
	size := e.n1 * e.n1 * 2
	e.complete = make([]autodiff.Scalar, size)
	e.incomplete = make([]autodiff.Scalar, size)
	e.base = make([]autodiff.Scalar, e.n1*e.n1)
	e.inside()
	return e
}

func (e *eisner) inside() {
	t := e.tape
	s := t.Algebra()
	one := t.Const(s.One())
	e.zero = t.Const(s.Zero())
	for i := 0; i < e.n1; i++ {
		e.complete[e.at(i, i, left)] = one
		e.complete[e.at(i, i, right)] = one
	}
	terms := make([]autodiff.Scalar, 0, e.n1)
	for k := 1; k < e.n1; k++ {
		for i := 0; i+k < e.n1; i++ {
			j := i + k
			terms = terms[:0]
			for r := i; r < j; r++ {
				terms = append(terms, t.Times(e.complete[e.at(i, r, right)], e.complete[e.at(r+1, j, left)]))
			}
			base := t.Sum(terms...)
			e.base[i*e.n1+j] = base
			e.incomplete[e.at(i, j, right)] = t.Times(base, e.weights[i][j])
			if i > 0 {
				e.incomplete[e.at(i, j, left)] = t.Times(base, e.weights[j][i])
			} else {
				// The wall is never a modifier.
				e.incomplete[e.at(i, j, left)] = e.zero
			}

			terms = terms[:0]
			for r := i + 1; r <= j; r++ {
				terms = append(terms, t.Times(e.incomplete[e.at(i, r, right)], e.complete[e.at(r, j, right)]))
			}
			e.complete[e.at(i, j, right)] = t.Sum(terms...)

			if i == 0 {
				e.complete[e.at(i, j, left)] = e.zero
				continue
			}
			terms = terms[:0]
			for r := i; r < j; r++ {
				terms = append(terms, t.Times(e.complete[e.at(i, r, left)], e.incomplete[e.at(r, j, left)]))
			}
			e.complete[e.at(i, j, left)] = t.Sum(terms...)
		}
	}
	e.z = e.complete[e.at(0, e.n1-1, right)]
}

// outside runs the outside pass. Spans are visited from the widest down;
// within a span complete items go before incomplete ones, since a complete
// item may be built from an incomplete item of the same span.
func (e *eisner) outside() {
	t := e.tape
	size := len(e.complete)
	cOut := make([][]autodiff.Scalar, size)
	iOut := make([][]autodiff.Scalar, size)
	e.incompleteOut = make([]autodiff.Scalar, size)
	for i := range e.incompleteOut {
		e.incompleteOut[i] = e.zero
	}
	cOut[e.at(0, e.n1-1, right)] = []autodiff.Scalar{t.Const(t.Algebra().One())}

	for k := e.n1 - 1; k >= 1; k-- {
		for i := 0; i+k < e.n1; i++ {
			j := i + k
			if c := cOut[e.at(i, j, right)]; len(c) > 0 {
				g := t.Sum(c...)
				for r := i + 1; r <= j; r++ {
					ir, cr := e.at(i, r, right), e.at(r, j, right)
					iOut[ir] = append(iOut[ir], t.Times(g, e.complete[cr]))
					if r < j {
						cOut[cr] = append(cOut[cr], t.Times(g, e.incomplete[ir]))
					}
				}
			}
			if c := cOut[e.at(i, j, left)]; len(c) > 0 && i > 0 {
				g := t.Sum(c...)
				for r := i; r < j; r++ {
					cl, il := e.at(i, r, left), e.at(r, j, left)
					iOut[il] = append(iOut[il], t.Times(g, e.complete[cl]))
					if r > i {
						cOut[cl] = append(cOut[cl], t.Times(g, e.incomplete[il]))
					}
				}
			}

			var terms []autodiff.Scalar
			if o := iOut[e.at(i, j, right)]; len(o) > 0 {
				og := t.Sum(o...)
				e.incompleteOut[e.at(i, j, right)] = og
				terms = append(terms, t.Times(og, e.weights[i][j]))
			}
			if o := iOut[e.at(i, j, left)]; len(o) > 0 && i > 0 {
				og := t.Sum(o...)
				e.incompleteOut[e.at(i, j, left)] = og
				terms = append(terms, t.Times(og, e.weights[j][i]))
			}
			if len(terms) == 0 {
				continue
			}
			g := t.Sum(terms...)
			for r := i; r < j; r++ {
				cr, cl := e.at(i, r, right), e.at(r+1, j, left)
				if r > i {
					cOut[cr] = append(cOut[cr], t.Times(g, e.complete[cl]))
				}
				if r+1 < j {
					cOut[cl] = append(cOut[cl], t.Times(g, e.complete[cr]))
				}
			}
		}
	}
}

// arcItem returns the incomplete item and the span of arc h → m.
func (e *eisner) arcItem(h, m int) (item, span int) {
	if h < m {
		return e.at(h, m, right), h*e.n1 + m
	}
	return e.at(m, h, left), m*e.n1 + h
}

// arcMass returns the total weight of the trees containing arc h → m, that
// is Z times the marginal of the arc. Requires outside.
func (e *eisner) arcMass(h, m int) autodiff.Scalar {
	item, _ := e.arcItem(h, m)
	return e.tape.Times(e.incompleteOut[item], e.incomplete[item])
}

// arcMassWithoutWeight returns arcMass(h, m) divided by the weight of the
// arc, computed without dividing. Requires outside.
func (e *eisner) arcMassWithoutWeight(h, m int) autodiff.Scalar {
	item, span := e.arcItem(h, m)
	return e.tape.Times(e.incompleteOut[item], e.base[span])
}

package bp

import (
	"github.com/born-ml/bpgrad/internal/algebra"
	"github.com/born-ml/bpgrad/internal/autodiff"
	"github.com/born-ml/bpgrad/internal/graph"
	"github.com/born-ml/bpgrad/internal/tensor"
)

// tapedOps performs the factor arithmetic of belief propagation. Every
// operation returns a new tensor and, when the tape is recording, records
// itself so that the whole run can be differentiated.
type tapedOps struct {
	tape *autodiff.GradientTape
}

var scalarVars = graph.NewVarSet()

func wrapScalar(s algebra.Algebra, v float64) *graph.VarTensor {
	return graph.WrapTensor(tensor.Scalar(s, v), scalarVars)
}

// Prod returns a ⊙ b, with b broadcast over a (b's variables ⊆ a's).
func (o tapedOps) Prod(a, b *graph.VarTensor) *graph.VarTensor {
	out := a.Clone()
	out.ProdBroadcast(b)
	o.tape.Record(&prodOp{a: a, b: b, out: out})
	return out
}

// Div returns a / b, with b broadcast over a.
func (o tapedOps) Div(a, b *graph.VarTensor) *graph.VarTensor {
	out := a.Clone()
	out.DivBroadcast(b)
	o.tape.Record(&divOp{a: a, b: b, out: out})
	return out
}

// Marginalize sums out the variables of a not in sub.
func (o tapedOps) Marginalize(a *graph.VarTensor, sub graph.VarSet) *graph.VarTensor {
	out := a.Marginalize(sub)
	o.tape.Record(&marginalizeOp{a: a, out: out})
	return out
}

// Normalize returns a divided by its sum.
func (o tapedOps) Normalize(a *graph.VarTensor) *graph.VarTensor {
	out := a.Clone()
	sum := out.Normalize()
	o.tape.Record(&normalizeOp{a: a, out: out, sum: sum})
	return out
}

// Log returns the elementwise log of a.
func (o tapedOps) Log(a *graph.VarTensor) *graph.VarTensor {
	out := a.Clone()
	out.Log()
	o.tape.Record(&logOp{a: a, out: out})
	return out
}

// BetheFactorTerm returns Σ_x b(x)·log(b(x)/ψ(x)) over the x with b(x) ≠ 0.
func (o tapedOps) BetheFactorTerm(b, psi *graph.VarTensor) *graph.VarTensor {
	s := b.Algebra()
	zero := s.Zero()
	t := zero
	for i := 0; i < b.Size(); i++ {
		if bi := b.Value(i); bi != zero {
			t = s.Plus(t, s.Times(bi, s.Minus(s.Log(bi), s.Log(psi.Value(i)))))
		}
	}
	out := wrapScalar(s, t)
	o.tape.Record(&betheFactorOp{b: b, psi: psi, out: out})
	return out
}

// BetheVarTerm returns coef·Σ_x b(x)·log b(x) over the x with b(x) ≠ 0.
func (o tapedOps) BetheVarTerm(b *graph.VarTensor, coef float64) *graph.VarTensor {
	s := b.Algebra()
	zero := s.Zero()
	t := zero
	for i := 0; i < b.Size(); i++ {
		if bi := b.Value(i); bi != zero {
			t = s.Plus(t, s.Times(bi, s.Log(bi)))
		}
	}
	out := wrapScalar(s, s.Times(s.FromReal(coef), t))
	o.tape.Record(&betheVarOp{b: b, coef: coef, out: out})
	return out
}

// LinearCombination returns Σ_k weights[k]·terms[k] for scalar terms.
func (o tapedOps) LinearCombination(s algebra.Algebra, terms []*graph.VarTensor, weights []float64) *graph.VarTensor {
	t := s.Zero()
	for k, x := range terms {
		t = s.Plus(t, s.Times(s.FromReal(weights[k]), x.Value(0)))
	}
	out := wrapScalar(s, t)
	o.tape.Record(&linearCombinationOp{terms: terms, weights: weights, out: out})
	return out
}

// GlobalMessages returns every outgoing message of a global factor, given
// its incoming messages in VarSet order.
func (o tapedOps) GlobalMessages(f *graph.Factor, in []*graph.VarTensor) []*graph.VarTensor {
	inT := make([]*tensor.Tensor, len(in))
	for i, m := range in {
		inT[i] = m.Tensor
	}
	outT := f.Global().CreateMessages(inT)
	out := make([]*graph.VarTensor, len(outT))
	for i, m := range outT {
		out[i] = graph.WrapTensor(m, graph.NewVarSet(f.Vars().Var(i)))
	}
	o.tape.Record(&globalMessagesOp{g: f.Global(), in: inT, out: outT})
	return out
}

// GlobalBethe returns the Bethe term of a global factor.
func (o tapedOps) GlobalBethe(bt graph.BetheTermer, in []*graph.VarTensor) *graph.VarTensor {
	inT := make([]*tensor.Tensor, len(in))
	for i, m := range in {
		inT[i] = m.Tensor
	}
	out := wrapScalar(in[0].Algebra(), bt.BetheTerm(inT))
	o.tape.Record(&globalBetheOp{bt: bt, in: inT, out: out.Tensor})
	return out
}

type prodOp struct{ a, b, out *graph.VarTensor }

func (op *prodOp) Inputs() []*tensor.Tensor { return []*tensor.Tensor{op.a.Tensor, op.b.Tensor} }
func (op *prodOp) Output() *tensor.Tensor   { return op.out.Tensor }

// Backward: adjA = adj ⊙ b, adjB = Σ_{a's other vars} adj ⊙ a.
func (op *prodOp) Backward(adj *tensor.Tensor) []*tensor.Tensor {
	adjA := graph.WrapTensor(adj.Clone(), op.a.Vars())
	adjA.ProdBroadcast(op.b)
	g := adj.Clone()
	g.ElemMultiply(op.a.Tensor)
	adjB := graph.WrapTensor(g, op.a.Vars()).Marginalize(op.b.Vars())
	return []*tensor.Tensor{adjA.Tensor, adjB.Tensor}
}

type divOp struct{ a, b, out *graph.VarTensor }

func (op *divOp) Inputs() []*tensor.Tensor { return []*tensor.Tensor{op.a.Tensor, op.b.Tensor} }
func (op *divOp) Output() *tensor.Tensor   { return op.out.Tensor }

// Backward: adjA = adj / b, adjB = -Σ adj·out / b. Zero adjoints contribute
// nothing.
func (op *divOp) Backward(adj *tensor.Tensor) []*tensor.Tensor {
	s := adj.Algebra()
	zero := s.Zero()
	adjA := op.a.CopyAndFill(zero)
	adjB := op.b.CopyAndFill(zero)
	for c, j := range op.a.Vars().IndexMapping(op.b.Vars()) {
		g := adj.Value(c)
		if g == zero {
			continue
		}
		bj := op.b.Value(j)
		adjA.SetValue(c, s.Divide(g, bj))
		adjB.SetValue(j, s.Minus(adjB.Value(j), s.Divide(s.Times(g, op.out.Value(c)), bj)))
	}
	return []*tensor.Tensor{adjA, adjB}
}

type marginalizeOp struct{ a, out *graph.VarTensor }

func (op *marginalizeOp) Inputs() []*tensor.Tensor { return []*tensor.Tensor{op.a.Tensor} }
func (op *marginalizeOp) Output() *tensor.Tensor   { return op.out.Tensor }

// Backward broadcasts adj back over a.
func (op *marginalizeOp) Backward(adj *tensor.Tensor) []*tensor.Tensor {
	adjA := op.a.CopyAndFill(adj.Algebra().Zero())
	for c, j := range op.a.Vars().IndexMapping(op.out.Vars()) {
		adjA.SetValue(c, adj.Value(j))
	}
	return []*tensor.Tensor{adjA}
}

type normalizeOp struct {
	a, out *graph.VarTensor
	sum    float64
}

func (op *normalizeOp) Inputs() []*tensor.Tensor { return []*tensor.Tensor{op.a.Tensor} }
func (op *normalizeOp) Output() *tensor.Tensor   { return op.out.Tensor }

// Backward: y = a/S, adjA_i = (adj_i - Σ_j adj_j·y_j) / S.
func (op *normalizeOp) Backward(adj *tensor.Tensor) []*tensor.Tensor {
	dot := adj.Dot(op.out.Tensor)
	adjA := adj.Clone()
	adjA.Subtract(dot)
	adjA.Divide(op.sum)
	return []*tensor.Tensor{adjA}
}

type logOp struct{ a, out *graph.VarTensor }

func (op *logOp) Inputs() []*tensor.Tensor { return []*tensor.Tensor{op.a.Tensor} }
func (op *logOp) Output() *tensor.Tensor   { return op.out.Tensor }

// Backward: adjA = adj / a, skipping zero adjoints.
func (op *logOp) Backward(adj *tensor.Tensor) []*tensor.Tensor {
	s := adj.Algebra()
	zero := s.Zero()
	adjA := adj.CopyAndFill(zero)
	for i := 0; i < adj.Size(); i++ {
		if g := adj.Value(i); g != zero {
			adjA.SetValue(i, s.Divide(g, op.a.Value(i)))
		}
	}
	return []*tensor.Tensor{adjA}
}

type betheFactorOp struct{ b, psi, out *graph.VarTensor }

func (op *betheFactorOp) Inputs() []*tensor.Tensor {
	return []*tensor.Tensor{op.b.Tensor, op.psi.Tensor}
}
func (op *betheFactorOp) Output() *tensor.Tensor { return op.out.Tensor }

// Backward: adjB = g·(log b - log ψ + 1), adjψ = -g·b/ψ, only where b ≠ 0.
func (op *betheFactorOp) Backward(adj *tensor.Tensor) []*tensor.Tensor {
	s := adj.Algebra()
	zero := s.Zero()
	g := adj.Value(0)
	adjB := op.b.CopyAndFill(zero)
	adjPsi := op.psi.CopyAndFill(zero)
	if g == zero {
		return []*tensor.Tensor{adjB, adjPsi}
	}
	for i := 0; i < op.b.Size(); i++ {
		bi := op.b.Value(i)
		if bi == zero {
			continue
		}
		psi := op.psi.Value(i)
		adjB.SetValue(i, s.Times(g, s.Plus(s.Minus(s.Log(bi), s.Log(psi)), s.One())))
		adjPsi.SetValue(i, s.Negate(s.Divide(s.Times(g, bi), psi)))
	}
	return []*tensor.Tensor{adjB, adjPsi}
}

type betheVarOp struct {
	b, out *graph.VarTensor
	coef   float64
}

func (op *betheVarOp) Inputs() []*tensor.Tensor { return []*tensor.Tensor{op.b.Tensor} }
func (op *betheVarOp) Output() *tensor.Tensor   { return op.out.Tensor }

// Backward: adjB = g·coef·(log b + 1) where b ≠ 0.
func (op *betheVarOp) Backward(adj *tensor.Tensor) []*tensor.Tensor {
	s := adj.Algebra()
	zero := s.Zero()
	gc := s.Times(adj.Value(0), s.FromReal(op.coef))
	adjB := op.b.CopyAndFill(zero)
	if gc == zero {
		return []*tensor.Tensor{adjB}
	}
	for i := 0; i < op.b.Size(); i++ {
		if bi := op.b.Value(i); bi != zero {
			adjB.SetValue(i, s.Times(gc, s.Plus(s.Log(bi), s.One())))
		}
	}
	return []*tensor.Tensor{adjB}
}

type linearCombinationOp struct {
	terms   []*graph.VarTensor
	weights []float64
	out     *graph.VarTensor
}

func (op *linearCombinationOp) Inputs() []*tensor.Tensor {
	in := make([]*tensor.Tensor, len(op.terms))
	for k, t := range op.terms {
		in[k] = t.Tensor
	}
	return in
}
func (op *linearCombinationOp) Output() *tensor.Tensor { return op.out.Tensor }

func (op *linearCombinationOp) Backward(adj *tensor.Tensor) []*tensor.Tensor {
	s := adj.Algebra()
	g := adj.Value(0)
	adjs := make([]*tensor.Tensor, len(op.terms))
	for k, w := range op.weights {
		adjs[k] = tensor.Scalar(s, s.Times(s.FromReal(w), g))
	}
	return adjs
}

type globalMessagesOp struct {
	g   graph.GlobalFactor
	in  []*tensor.Tensor
	out []*tensor.Tensor
}

func (op *globalMessagesOp) Inputs() []*tensor.Tensor  { return op.in }
func (op *globalMessagesOp) Output() *tensor.Tensor    { return op.out[0] }
func (op *globalMessagesOp) Outputs() []*tensor.Tensor { return op.out }

func (op *globalMessagesOp) Backward(adj *tensor.Tensor) []*tensor.Tensor {
	adjs := make([]*tensor.Tensor, len(op.out))
	adjs[0] = adj
	for i := 1; i < len(adjs); i++ {
		adjs[i] = op.out[i].CopyAndFill(adj.Algebra().Zero())
	}
	return op.BackwardMulti(adjs)
}

func (op *globalMessagesOp) BackwardMulti(adjs []*tensor.Tensor) []*tensor.Tensor {
	return op.g.BackwardCreateMessages(op.in, adjs)
}

type globalBetheOp struct {
	bt  graph.BetheTermer
	in  []*tensor.Tensor
	out *tensor.Tensor
}

func (op *globalBetheOp) Inputs() []*tensor.Tensor { return op.in }
func (op *globalBetheOp) Output() *tensor.Tensor   { return op.out }

func (op *globalBetheOp) Backward(adj *tensor.Tensor) []*tensor.Tensor {
	return op.bt.BackwardBetheTerm(op.in, adj.Value(0))
}

package autodiff

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/born-ml/bpgrad/internal/algebra"
	"github.com/born-ml/bpgrad/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// square computes y = x ⊙ x.
type square struct {
	Base[*tensor.Tensor]
	x Module[*tensor.Tensor]
}

func newSquare(x Module[*tensor.Tensor]) *square {
	return &square{Base: NewBase[*tensor.Tensor](x), x: x}
}

func (m *square) Forward() {
	y := m.x.Output().Clone()
	y.ElemMultiply(m.x.Output())
	m.SetOutput(y)
}

func (m *square) Backward() {
	adj := m.OutputAdj().Clone()
	adj.ElemMultiply(m.x.Output())
	adj.Multiply(adj.Algebra().FromReal(2))
	m.x.OutputAdj().ElemAdd(adj)
}

// plus computes y = a + b.
type plus struct {
	Base[*tensor.Tensor]
	a, b Module[*tensor.Tensor]
}

func newPlus(a, b Module[*tensor.Tensor]) *plus {
	return &plus{Base: NewBase[*tensor.Tensor](a, b), a: a, b: b}
}

func (m *plus) Forward() {
	y := m.a.Output().Clone()
	y.ElemAdd(m.b.Output())
	m.SetOutput(y)
}

func (m *plus) Backward() {
	m.a.OutputAdj().ElemAdd(m.OutputAdj())
	m.b.OutputAdj().ElemAdd(m.OutputAdj())
}

func TestBase_LazyAdjoint(t *testing.T) {
	x := NewIdentity(tensor.FromReals(algebra.LogSign, []float64{1, 2}, 2))
	adj := x.OutputAdj()
	assert.Equal(t, []float64{0, 0}, adj.Reals())
	adj.SetValue(0, algebra.LogSign.FromReal(3))
	assert.Same(t, adj, x.OutputAdj())
	x.ZeroOutputAdj()
	assert.Equal(t, []float64{0, 0}, x.OutputAdj().Reals())

	m := newSquare(x)
	assert.False(t, m.HasOutput())
	assert.Panics(t, func() { m.Output() })
}

func TestTopoOrder_SharedInput(t *testing.T) {
	// y = x² + x², so dy/dx = 4x: the shared input must accumulate both paths.
	x := NewIdentity(tensor.FromReals(algebra.Real, []float64{1.5, -2}, 2))
	sq := newSquare(x)
	root := newPlus(sq, sq)
	topo, err := NewTopoOrderFromRoot[*tensor.Tensor](root)
	require.NoError(t, err)
	assert.Len(t, topo.Nodes(), 3)

	topo.Forward()
	assert.InDeltaSlice(t, []float64{4.5, 8}, topo.Output().Reals(), 1e-12)

	topo.OutputAdj().Fill(1)
	topo.Backward()
	assert.InDeltaSlice(t, []float64{6, -8}, x.OutputAdj().Reals(), 1e-12)

	topo.ZeroOutputAdj()
	assert.Equal(t, []float64{0, 0}, x.OutputAdj().Reals())
	topo.OutputAdj().Fill(0.5)
	topo.Backward()
	assert.InDeltaSlice(t, []float64{3, -4}, x.OutputAdj().Reals(), 1e-12)
}

func TestTopoOrder_Leaves(t *testing.T) {
	x := NewIdentity(tensor.FromReals(algebra.Real, []float64{3}, 1))
	sq := newSquare(x)
	root := newSquare(sq)

	topo, err := NewTopoOrderFromRoot[*tensor.Tensor](root, sq)
	require.NoError(t, err)
	assert.Equal(t, []Node{root}, topo.Nodes())
	assert.Equal(t, []Node{sq}, topo.Inputs())

	_, err = NewTopoOrderFromRoot[*tensor.Tensor](root, newSquare(x))
	require.Error(t, err)

	assert.Panics(t, func() { NewTopoOrder[*tensor.Tensor]([]Node{root, sq}, root) })
}

func TestCheckGradients(t *testing.T) {
	for _, s := range []algebra.Algebra{algebra.Real, algebra.LogSign, algebra.ShiftedReal} {
		t.Run(s.Name(), func(t *testing.T) {
			x := NewIdentity(tensor.FromReals(algebra.Real, []float64{0.5, -1.25, 2}, 3))
			conv := newToAlgebra(x, s)
			root := newPlus(newSquare(conv), conv)
			topo, err := NewTopoOrderFromRoot[*tensor.Tensor](root, x)
			require.NoError(t, err)
			res := CheckGradients[*tensor.Tensor](topo, []*Identity[*tensor.Tensor]{x}, 1e-5, rand.New(rand.NewPCG(1, 2)))
			assert.Less(t, res.MaxAbsDiff, 1e-6)
		})
	}
}

// toAlgebra converts a Real tensor into another algebra.
type toAlgebra struct {
	Base[*tensor.Tensor]
	x Module[*tensor.Tensor]
	s algebra.Algebra
}

func newToAlgebra(x Module[*tensor.Tensor], s algebra.Algebra) *toAlgebra {
	return &toAlgebra{Base: NewBase[*tensor.Tensor](x), x: x, s: s}
}

func (m *toAlgebra) Forward() { m.SetOutput(m.x.Output().CopyAndConvertAlgebra(m.s)) }

func (m *toAlgebra) Backward() {
	m.x.OutputAdj().ElemAdd(m.OutputAdj().CopyAndConvertAlgebra(m.x.Output().Algebra()))
}

func TestScalarTape(t *testing.T) {
	for _, s := range []algebra.Algebra{algebra.Real, algebra.LogSign} {
		t.Run(s.Name(), func(t *testing.T) {
			// f(a, b) = (a·b + a) / b at a = 3, b = 2.
			tape := NewScalarTape(s)
			a := tape.Const(s.FromReal(3))
			b := tape.Const(s.FromReal(2))
			f := tape.Divide(tape.Sum(tape.Times(a, b), a), b)
			assert.InDelta(t, 4.5, s.ToReal(tape.Value(f)), 1e-12)

			adj := tape.Backward(map[Scalar]float64{f: s.One()})
			// df/da = (b + 1)/b = 1.5; df/db = a/b - (ab + a)/b² = 1.5 - 2.25.
			assert.InDelta(t, 1.5, s.ToReal(adj[a]), 1e-12)
			assert.InDelta(t, -0.75, s.ToReal(adj[b]), 1e-12)

			// g = f - a.
			g := tape.Minus(f, a)
			assert.InDelta(t, 1.5, s.ToReal(tape.Value(g)), 1e-12)
			adj = tape.Backward(map[Scalar]float64{g: s.One()})
			assert.InDelta(t, 0.5, s.ToReal(adj[a]), 1e-12)
			assert.InDelta(t, -0.75, s.ToReal(adj[b]), 1e-12)
		})
	}
}

func TestScalarTape_Log(t *testing.T) {
	s := algebra.LogSign
	tape := NewScalarTape(s)
	x := tape.Const(s.FromReal(4))
	y := tape.Times(tape.Log(x), x) // x·log x
	assert.InDelta(t, 4*math.Log(4), s.ToReal(tape.Value(y)), 1e-12)
	adj := tape.Backward(map[Scalar]float64{y: s.One()})
	assert.InDelta(t, math.Log(4)+1, s.ToReal(adj[x]), 1e-12)
	assert.Equal(t, 3, tape.Len())
	tape.Reset()
	assert.Equal(t, 0, tape.Len())
}

func TestScalarTape_DivideByZero(t *testing.T) {
	tape := NewScalarTape(algebra.Real)
	x := tape.Const(1)
	w := tape.Const(0)
	y := tape.Divide(x, w)
	assert.True(t, math.IsInf(tape.Value(y), 1))

	adj := tape.Backward(map[Scalar]float64{y: 2.2})
	assert.True(t, math.IsInf(adj[x], 1))
	assert.True(t, math.IsInf(adj[w], -1))

	adj = tape.Backward(map[Scalar]float64{y: 0})
	assert.Equal(t, 0.0, adj[x])
	assert.Equal(t, 0.0, adj[w])
}

// scaleOp is a recorded y = c·x.
type scaleOp struct {
	x, y *tensor.Tensor
	c    float64
}

func (op *scaleOp) Inputs() []*tensor.Tensor { return []*tensor.Tensor{op.x} }
func (op *scaleOp) Output() *tensor.Tensor   { return op.y }
func (op *scaleOp) Backward(adj *tensor.Tensor) []*tensor.Tensor {
	g := adj.Clone()
	g.Multiply(op.c)
	return []*tensor.Tensor{g}
}

// splitOp is a recorded (y1, y2) = (x, x).
type splitOp struct {
	x      *tensor.Tensor
	y1, y2 *tensor.Tensor
}

func (op *splitOp) Inputs() []*tensor.Tensor  { return []*tensor.Tensor{op.x} }
func (op *splitOp) Output() *tensor.Tensor    { return op.y1 }
func (op *splitOp) Outputs() []*tensor.Tensor { return []*tensor.Tensor{op.y1, op.y2} }
func (op *splitOp) Backward(adj *tensor.Tensor) []*tensor.Tensor {
	return op.BackwardMulti([]*tensor.Tensor{adj, adj.CopyAndFill(0)})
}
func (op *splitOp) BackwardMulti(adjs []*tensor.Tensor) []*tensor.Tensor {
	g := adjs[0].Clone()
	g.ElemAdd(adjs[1])
	return []*tensor.Tensor{g}
}

func TestGradientTape(t *testing.T) {
	tape := NewGradientTape()
	x := tensor.FromReals(algebra.Real, []float64{1, 2}, 2)
	y1, y2 := x.Clone(), x.Clone()
	z := y2.Clone()
	z.Multiply(3)

	tape.Record(&splitOp{x: x, y1: y1, y2: y2})
	assert.Equal(t, 0, tape.NumOps(), "not recording yet")

	tape.StartRecording()
	tape.Record(&splitOp{x: x, y1: y1, y2: y2})
	tape.Record(&scaleOp{x: y2, y: z, c: 3})
	assert.Equal(t, 2, tape.NumOps())

	seedZ := tensor.FromReals(algebra.Real, []float64{1, 1}, 2)
	seedY1 := tensor.FromReals(algebra.Real, []float64{0.5, 0}, 2)
	adjs := tape.Backward(map[*tensor.Tensor]*tensor.Tensor{z: seedZ, y1: seedY1})
	assert.Equal(t, []float64{3.5, 3}, adjs[x].Reals())
	assert.Equal(t, []float64{1, 1}, seedZ.Reals(), "seeds are not modified")
	assert.True(t, tape.IsRecording())

	// Only z seeded: y1 gets a zero adjoint inside BackwardMulti.
	adjs = tape.Backward(map[*tensor.Tensor]*tensor.Tensor{z: seedZ})
	assert.Equal(t, []float64{3, 3}, adjs[x].Reals())

	tape.Clear()
	assert.Equal(t, 0, tape.NumOps())
	var nilTape *GradientTape
	assert.False(t, nilTape.IsRecording())
}

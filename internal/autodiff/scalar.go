package autodiff

import (
	"github.com/born-ml/bpgrad/internal/algebra"
	"github.com/gomlx/exceptions"
)

// Scalar is a handle to a value recorded on a ScalarTape.
type Scalar int

type scalarOp uint8

const (
	opConst scalarOp = iota
	opPlus
	opMinus
	opTimes
	opDivide
	opLog
)

type scalarNode struct {
	op   scalarOp
	a, b Scalar
}

// ScalarTape records a scalar computation (a dynamic program) in one algebra
// so that it can be differentiated in reverse. Every operation appends a node;
// handles are indices into the tape, so operands always precede results.
type ScalarTape struct {
	s     algebra.Algebra
	vals  []float64
	nodes []scalarNode
}

// NewScalarTape creates an empty tape computing in algebra s.
func NewScalarTape(s algebra.Algebra) *ScalarTape {
	return &ScalarTape{s: s}
}

// Algebra returns the algebra the tape computes in.
func (t *ScalarTape) Algebra() algebra.Algebra { return t.s }

// Len returns the number of recorded values.
func (t *ScalarTape) Len() int { return len(t.vals) }

// Reset empties the tape, keeping its buffers.
func (t *ScalarTape) Reset() {
	t.vals = t.vals[:0]
	t.nodes = t.nodes[:0]
}

func (t *ScalarTape) push(v float64, n scalarNode) Scalar {
	t.vals = append(t.vals, v)
	t.nodes = append(t.nodes, n)
	return Scalar(len(t.vals) - 1)
}

// Const records an input value (in the tape's algebra).
func (t *ScalarTape) Const(v float64) Scalar {
	return t.push(v, scalarNode{op: opConst})
}

// Value returns the value of a.
func (t *ScalarTape) Value(a Scalar) float64 { return t.vals[a] }

// Plus records a + b.
func (t *ScalarTape) Plus(a, b Scalar) Scalar {
	return t.push(t.s.Plus(t.vals[a], t.vals[b]), scalarNode{op: opPlus, a: a, b: b})
}

// Minus records a - b.
func (t *ScalarTape) Minus(a, b Scalar) Scalar {
	return t.push(t.s.Minus(t.vals[a], t.vals[b]), scalarNode{op: opMinus, a: a, b: b})
}

// Times records a · b.
func (t *ScalarTape) Times(a, b Scalar) Scalar {
	return t.push(t.s.Times(t.vals[a], t.vals[b]), scalarNode{op: opTimes, a: a, b: b})
}

// Divide records a / b.
func (t *ScalarTape) Divide(a, b Scalar) Scalar {
	return t.push(t.s.Divide(t.vals[a], t.vals[b]), scalarNode{op: opDivide, a: a, b: b})
}

// Log records log(a).
func (t *ScalarTape) Log(a Scalar) Scalar {
	return t.push(t.s.Log(t.vals[a]), scalarNode{op: opLog, a: a})
}

// Sum records the sum of xs as a chain of Plus nodes. An empty sum is the
// algebra's zero.
func (t *ScalarTape) Sum(xs ...Scalar) Scalar {
	if len(xs) == 0 {
		return t.Const(t.s.Zero())
	}
	acc := xs[0]
	for _, x := range xs[1:] {
		acc = t.Plus(acc, x)
	}
	return acc
}

// Backward propagates the seeded adjoints back through the tape and returns
// the adjoint of every recorded value, indexed by Scalar.
//
// A zero adjoint is not propagated, so infinite local derivatives (division
// by zero) do not turn into NaN where nothing flows.
func (t *ScalarTape) Backward(seeds map[Scalar]float64) []float64 {
	s := t.s
	adj := make([]float64, len(t.vals))
	for i := range adj {
		adj[i] = s.Zero()
	}
	for x, v := range seeds {
		if int(x) >= len(adj) {
			exceptions.Panicf("autodiff.ScalarTape: seed %d out of range (len %d)", x, len(adj))
		}
		adj[x] = s.Plus(adj[x], v)
	}
	zero := s.Zero()
	for i := len(t.nodes) - 1; i >= 0; i-- {
		n := t.nodes[i]
		g := adj[i]
		if n.op == opConst || g == zero {
			continue
		}
		switch n.op {
		case opPlus:
			adj[n.a] = s.Plus(adj[n.a], g)
			adj[n.b] = s.Plus(adj[n.b], g)
		case opMinus:
			adj[n.a] = s.Plus(adj[n.a], g)
			adj[n.b] = s.Minus(adj[n.b], g)
		case opTimes:
			adj[n.a] = s.Plus(adj[n.a], s.Times(g, t.vals[n.b]))
			adj[n.b] = s.Plus(adj[n.b], s.Times(g, t.vals[n.a]))
		case opDivide:
			// d(a/b)/da = 1/b, d(a/b)/db = -(a/b)/b.
			adj[n.a] = s.Plus(adj[n.a], s.Divide(g, t.vals[n.b]))
			adj[n.b] = s.Minus(adj[n.b], s.Divide(s.Times(g, t.vals[i]), t.vals[n.b]))
		case opLog:
			adj[n.a] = s.Plus(adj[n.a], s.Divide(g, t.vals[n.a]))
		}
	}
	return adj
}

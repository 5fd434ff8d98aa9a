package ops

import (
	"github.com/born-ml/bpgrad/internal/algebra"
	"github.com/born-ml/bpgrad/internal/autodiff"
	"github.com/born-ml/bpgrad/internal/tensor"
)

type unary struct {
	autodiff.Base[*tensor.Tensor]
	x TensorModule
}

func newUnary(x TensorModule) unary {
	return unary{Base: autodiff.NewBase[*tensor.Tensor](x), x: x}
}

// Exp computes y = exp(x).
//
// Backward pass: adjX += adjY ⊙ y.
type Exp struct{ unary }

// NewExp creates an Exp module.
func NewExp(x TensorModule) *Exp { return &Exp{newUnary(x)} }

// Forward implements autodiff.Node.
func (m *Exp) Forward() {
	y := m.x.Output().Clone()
	y.Exp()
	m.SetOutput(y)
}

// Backward implements autodiff.Node.
func (m *Exp) Backward() {
	adj := m.OutputAdj().Clone()
	adj.ElemMultiply(m.Output())
	m.x.OutputAdj().ElemAdd(adj)
}

// Log computes y = log(x). Negative entries give NaN.
//
// Backward pass: adjX += adjY / x, skipping zero adjoints.
type Log struct{ unary }

// NewLog creates a Log module.
func NewLog(x TensorModule) *Log { return &Log{newUnary(x)} }

// Forward implements autodiff.Node.
func (m *Log) Forward() {
	y := m.x.Output().Clone()
	y.Log()
	m.SetOutput(y)
}

// Backward implements autodiff.Node.
func (m *Log) Backward() {
	adj := m.OutputAdj()
	s := adj.Algebra()
	x, adjX := m.x.Output(), m.x.OutputAdj()
	zero := s.Zero()
	for i := 0; i < adj.Size(); i++ {
		if g := adj.Value(i); g != zero {
			adjX.AddValue(i, s.Divide(g, x.Value(i)))
		}
	}
}

// Scale computes y = c·x for a constant c given as a real number.
//
// Backward pass: adjX += c·adjY.
type Scale struct {
	unary
	c float64
}

// NewScale creates a Scale module.
func NewScale(x TensorModule, c float64) *Scale { return &Scale{unary: newUnary(x), c: c} }

// Forward implements autodiff.Node.
func (m *Scale) Forward() {
	y := m.x.Output().Clone()
	y.Multiply(y.Algebra().FromReal(m.c))
	m.SetOutput(y)
}

// Backward implements autodiff.Node.
func (m *Scale) Backward() {
	adj := m.OutputAdj().Clone()
	adj.Multiply(adj.Algebra().FromReal(m.c))
	m.x.OutputAdj().ElemAdd(adj)
}

// ConvertAlgebra re-expresses its input in another algebra. The real values
// are unchanged, so the adjoint is converted back.
type ConvertAlgebra struct {
	unary
	to algebra.Algebra
}

// NewConvertAlgebra creates a ConvertAlgebra module.
func NewConvertAlgebra(x TensorModule, to algebra.Algebra) *ConvertAlgebra {
	return &ConvertAlgebra{unary: newUnary(x), to: to}
}

// Forward implements autodiff.Node.
func (m *ConvertAlgebra) Forward() {
	m.SetOutput(m.x.Output().CopyAndConvertAlgebra(m.to))
}

// Backward implements autodiff.Node.
func (m *ConvertAlgebra) Backward() {
	m.x.OutputAdj().ElemAdd(m.OutputAdj().CopyAndConvertAlgebra(m.x.Output().Algebra()))
}

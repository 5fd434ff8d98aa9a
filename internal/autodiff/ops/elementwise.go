// Package ops provides differentiable tensor modules: each one is an
// autodiff.Module[*tensor.Tensor] with a forward computation and its adjoint
// rule. Adjoints are accumulated in the algebra of the tensors.
package ops

import (
	"github.com/born-ml/bpgrad/internal/autodiff"
	"github.com/born-ml/bpgrad/internal/tensor"
)

// TensorModule is a module producing a tensor.
type TensorModule = autodiff.Module[*tensor.Tensor]

type binary struct {
	autodiff.Base[*tensor.Tensor]
	x, w TensorModule
}

func newBinary(x, w TensorModule) binary {
	return binary{Base: autodiff.NewBase[*tensor.Tensor](x, w), x: x, w: w}
}

// ElemAdd computes y = x + w.
//
// Backward pass:
//   - adjX += adjY
//   - adjW += adjY
type ElemAdd struct{ binary }

// NewElemAdd creates an ElemAdd module.
func NewElemAdd(x, w TensorModule) *ElemAdd { return &ElemAdd{newBinary(x, w)} }

// Forward implements autodiff.Node.
func (m *ElemAdd) Forward() {
	y := m.x.Output().Clone()
	y.ElemAdd(m.w.Output())
	m.SetOutput(y)
}

// Backward implements autodiff.Node.
func (m *ElemAdd) Backward() {
	adj := m.OutputAdj()
	m.x.OutputAdj().ElemAdd(adj)
	m.w.OutputAdj().ElemAdd(adj)
}

// ElemSubtract computes y = x - w.
//
// Backward pass:
//   - adjX += adjY
//   - adjW -= adjY
type ElemSubtract struct{ binary }

// NewElemSubtract creates an ElemSubtract module.
func NewElemSubtract(x, w TensorModule) *ElemSubtract { return &ElemSubtract{newBinary(x, w)} }

// Forward implements autodiff.Node.
func (m *ElemSubtract) Forward() {
	y := m.x.Output().Clone()
	y.ElemSubtract(m.w.Output())
	m.SetOutput(y)
}

// Backward implements autodiff.Node.
func (m *ElemSubtract) Backward() {
	adj := m.OutputAdj()
	m.x.OutputAdj().ElemAdd(adj)
	m.w.OutputAdj().ElemSubtract(adj)
}

// ElemMultiply computes y = x ⊙ w.
//
// Backward pass:
//   - adjX += adjY ⊙ w
//   - adjW += adjY ⊙ x
type ElemMultiply struct{ binary }

// NewElemMultiply creates an ElemMultiply module.
func NewElemMultiply(x, w TensorModule) *ElemMultiply { return &ElemMultiply{newBinary(x, w)} }

// Forward implements autodiff.Node.
func (m *ElemMultiply) Forward() {
	y := m.x.Output().Clone()
	y.ElemMultiply(m.w.Output())
	m.SetOutput(y)
}

// Backward implements autodiff.Node.
func (m *ElemMultiply) Backward() {
	adjX := m.OutputAdj().Clone()
	adjX.ElemMultiply(m.w.Output())
	m.x.OutputAdj().ElemAdd(adjX)

	adjW := m.OutputAdj().Clone()
	adjW.ElemMultiply(m.x.Output())
	m.w.OutputAdj().ElemAdd(adjW)
}

// ElemDivide computes y = x / w, following the algebra's division policy
// (x/0 is a signed infinity, 0/0 is NaN).
//
// Backward pass:
//   - adjX += adjY / w
//   - adjW -= adjY · x / w²
//
// Entries whose output adjoint is zero contribute nothing, even where the
// local derivative is infinite.
type ElemDivide struct{ binary }

// NewElemDivide creates an ElemDivide module.
func NewElemDivide(x, w TensorModule) *ElemDivide { return &ElemDivide{newBinary(x, w)} }

// Forward implements autodiff.Node.
func (m *ElemDivide) Forward() {
	y := m.x.Output().Clone()
	y.ElemDivide(m.w.Output())
	m.SetOutput(y)
}

// Backward implements autodiff.Node.
func (m *ElemDivide) Backward() {
	adj := m.OutputAdj()
	s := adj.Algebra()
	w, y := m.w.Output(), m.Output()
	adjX, adjW := m.x.OutputAdj(), m.w.OutputAdj()
	zero := s.Zero()
	for i := 0; i < adj.Size(); i++ {
		g := adj.Value(i)
		if g == zero {
			continue
		}
		adjX.AddValue(i, s.Divide(g, w.Value(i)))
		// adjY · x / w² written as adjY · y / w.
		adjW.SetValue(i, s.Minus(adjW.Value(i), s.Divide(s.Times(g, y.Value(i)), w.Value(i))))
	}
}

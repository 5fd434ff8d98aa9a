package ops

import (
	"github.com/born-ml/bpgrad/internal/autodiff"
	"github.com/born-ml/bpgrad/internal/tensor"
)

// Select takes the slice of x at position idx along dimension dim.
//
// Backward pass: adjX[.., idx, ..] += adjY (tensor.AddTensor).
type Select struct {
	unary
	dim, idx int
}

// NewSelect creates a Select module.
func NewSelect(x TensorModule, dim, idx int) *Select {
	return &Select{unary: newUnary(x), dim: dim, idx: idx}
}

// Forward implements autodiff.Node.
func (m *Select) Forward() {
	m.SetOutput(m.x.Output().Select(m.dim, m.idx))
}

// Backward implements autodiff.Node.
func (m *Select) Backward() {
	m.x.OutputAdj().AddTensor(m.OutputAdj(), m.dim, m.idx)
}

// Combine stacks two equal-shaped tensors along a new leading dimension of
// size 2.
//
// Backward pass:
//   - adjA += adjY[0]
//   - adjB += adjY[1]
type Combine struct{ binary }

// NewCombine creates a Combine module.
func NewCombine(a, b TensorModule) *Combine { return &Combine{newBinary(a, b)} }

// Forward implements autodiff.Node.
func (m *Combine) Forward() {
	m.SetOutput(tensor.Combine(m.x.Output(), m.w.Output()))
}

// Backward implements autodiff.Node.
func (m *Combine) Backward() {
	adj := m.OutputAdj()
	m.x.OutputAdj().ElemAdd(adj.Select(0, 0))
	m.w.OutputAdj().ElemAdd(adj.Select(0, 1))
}

// Sum reduces x to a rank-0 tensor holding the sum of its values.
//
// Backward pass: adjX[i] += adjY for every i.
type Sum struct{ unary }

// NewSum creates a Sum module.
func NewSum(x TensorModule) *Sum { return &Sum{newUnary(x)} }

// Forward implements autodiff.Node.
func (m *Sum) Forward() {
	x := m.x.Output()
	m.SetOutput(tensor.Scalar(x.Algebra(), x.Sum()))
}

// Backward implements autodiff.Node.
func (m *Sum) Backward() {
	g := m.OutputAdj().Value(0)
	m.x.OutputAdj().Add(g)
}

var (
	_ autodiff.Module[*tensor.Tensor] = (*ElemAdd)(nil)
	_ autodiff.Module[*tensor.Tensor] = (*ElemDivide)(nil)
	_ autodiff.Module[*tensor.Tensor] = (*Select)(nil)
	_ autodiff.Module[*tensor.Tensor] = (*Sum)(nil)
)

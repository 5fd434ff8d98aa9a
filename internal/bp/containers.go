package bp

import (
	"github.com/born-ml/bpgrad/internal/algebra"
	"github.com/born-ml/bpgrad/internal/autodiff"
	"github.com/born-ml/bpgrad/internal/tensor"
	"github.com/gomlx/exceptions"
)

// tensorList flattens a list of optional tensors into one index space, in
// order, skipping nil entries.
type tensorList []*tensor.Tensor

func (l tensorList) size() int {
	n := 0
	for _, t := range l {
		if t != nil {
			n += t.Size()
		}
	}
	return n
}

// locate maps a flat index to a tensor and an index within it.
func (l tensorList) locate(i int) (*tensor.Tensor, int) {
	for _, t := range l {
		if t == nil {
			continue
		}
		if i < t.Size() {
			return t, i
		}
		i -= t.Size()
	}
	exceptions.Panicf("bp: flat index out of range")
	return nil, 0
}

func (l tensorList) algebra() algebra.Algebra {
	for _, t := range l {
		if t != nil {
			return t.Algebra()
		}
	}
	return nil
}

func (l tensorList) copyAndFill(v float64) tensorList {
	out := make(tensorList, len(l))
	for i, t := range l {
		if t != nil {
			out[i] = t.CopyAndFill(v)
		}
	}
	return out
}

// Factors holds one potential table per factor of a graph, indexed by factor
// node; global factors have none (nil). All tables share one algebra.
type Factors struct {
	Potentials []*tensor.Tensor
}

// Algebra implements autodiff.Container.
func (f *Factors) Algebra() algebra.Algebra { return tensorList(f.Potentials).algebra() }

// Size implements autodiff.Container.
func (f *Factors) Size() int { return tensorList(f.Potentials).size() }

// CopyAndFill implements autodiff.Container.
func (f *Factors) CopyAndFill(v float64) *Factors {
	return &Factors{Potentials: tensorList(f.Potentials).copyAndFill(v)}
}

// Value implements autodiff.Container.
func (f *Factors) Value(i int) float64 {
	t, j := tensorList(f.Potentials).locate(i)
	return t.Value(j)
}

// SetValue implements autodiff.Container.
func (f *Factors) SetValue(i int, v float64) {
	t, j := tensorList(f.Potentials).locate(i)
	t.SetValue(j, v)
}

// AddValue implements autodiff.Container.
func (f *Factors) AddValue(i int, v float64) {
	t, j := tensorList(f.Potentials).locate(i)
	t.AddValue(j, v)
}

// Beliefs holds the outputs of belief propagation: variable beliefs by var
// node, factor beliefs by factor node (nil for global factors) and log Z as
// a rank-0 tensor. All share one algebra. The flat index covers variable
// beliefs, then factor beliefs, then log Z.
type Beliefs struct {
	Vars         []*tensor.Tensor
	Factors      []*tensor.Tensor
	LogPartition *tensor.Tensor
}

func (b *Beliefs) list() tensorList {
	l := make(tensorList, 0, len(b.Vars)+len(b.Factors)+1)
	l = append(l, b.Vars...)
	l = append(l, b.Factors...)
	return append(l, b.LogPartition)
}

// Algebra implements autodiff.Container.
func (b *Beliefs) Algebra() algebra.Algebra { return b.list().algebra() }

// Size implements autodiff.Container.
func (b *Beliefs) Size() int { return b.list().size() }

// CopyAndFill implements autodiff.Container.
func (b *Beliefs) CopyAndFill(v float64) *Beliefs {
	return &Beliefs{
		Vars:         tensorList(b.Vars).copyAndFill(v),
		Factors:      tensorList(b.Factors).copyAndFill(v),
		LogPartition: b.LogPartition.CopyAndFill(v),
	}
}

// Value implements autodiff.Container.
func (b *Beliefs) Value(i int) float64 {
	t, j := b.list().locate(i)
	return t.Value(j)
}

// SetValue implements autodiff.Container.
func (b *Beliefs) SetValue(i int, v float64) {
	t, j := b.list().locate(i)
	t.SetValue(j, v)
}

// AddValue implements autodiff.Container.
func (b *Beliefs) AddValue(i int, v float64) {
	t, j := b.list().locate(i)
	t.AddValue(j, v)
}

var (
	_ autodiff.Container[*Factors] = (*Factors)(nil)
	_ autodiff.Container[*Beliefs] = (*Beliefs)(nil)
)

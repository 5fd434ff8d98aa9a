package graph

import (
	"github.com/born-ml/bpgrad/internal/algebra"
	"github.com/born-ml/bpgrad/internal/tensor"
	"github.com/gomlx/exceptions"
)

// VarTensor is a tensor indexed by the configurations of a VarSet: its dims
// are the state counts of the variables.
type VarTensor struct {
	*tensor.Tensor
	vars VarSet
}

// NewVarTensor creates a VarTensor filled with the algebra's zero.
func NewVarTensor(s algebra.Algebra, vars VarSet) *VarTensor {
	return &VarTensor{Tensor: tensor.New(s, vars.Dims()...), vars: vars}
}

// NewVarTensorFromReals creates a VarTensor from real values in config order.
func NewVarTensorFromReals(s algebra.Algebra, vars VarSet, reals ...float64) *VarTensor {
	return &VarTensor{Tensor: tensor.FromReals(s, reals, vars.Dims()...), vars: vars}
}

// WrapTensor pairs an existing tensor with vars. The dims must match.
func WrapTensor(t *tensor.Tensor, vars VarSet) *VarTensor {
	if !t.Dims().Equal(vars.Dims()) {
		exceptions.Panicf("graph.WrapTensor: tensor dims %v do not match %v dims %v", t.Dims(), vars, vars.Dims())
	}
	return &VarTensor{Tensor: t, vars: vars}
}

// Vars returns the variables indexing the tensor.
func (vt *VarTensor) Vars() VarSet { return vt.vars }

// Clone returns a deep copy.
func (vt *VarTensor) Clone() *VarTensor {
	return &VarTensor{Tensor: vt.Tensor.Clone(), vars: vt.vars}
}

// Marginalize sums out every variable not in sub. sub must be a subset.
func (vt *VarTensor) Marginalize(sub VarSet) *VarTensor {
	if !vt.vars.ContainsAll(sub) {
		exceptions.Panicf("graph.VarTensor.Marginalize: %v is not a subset of %v", sub, vt.vars)
	}
	keep := make([]int, sub.Len())
	for i, v := range sub.vars {
		keep[i] = vt.vars.IndexOf(v)
	}
	return &VarTensor{Tensor: vt.Tensor.Marginal(keep...), vars: sub}
}

// ProdBroadcast multiplies, in place, every entry of vt by the entry of o at
// the projected configuration. o's variables must be a subset of vt's.
func (vt *VarTensor) ProdBroadcast(o *VarTensor) {
	vt.broadcast("ProdBroadcast", o, vt.Algebra().Times)
}

// DivBroadcast divides, in place, every entry of vt by the entry of o at the
// projected configuration.
func (vt *VarTensor) DivBroadcast(o *VarTensor) {
	vt.broadcast("DivBroadcast", o, vt.Algebra().Divide)
}

func (vt *VarTensor) broadcast(op string, o *VarTensor, f func(a, b float64) float64) {
	if vt.Algebra() != o.Algebra() {
		exceptions.Panicf("graph.VarTensor.%s: algebras differ (%s vs %s)", op, vt.Algebra().Name(), o.Algebra().Name())
	}
	mapping := vt.vars.IndexMapping(o.vars)
	for c, j := range mapping {
		vt.SetValue(c, f(vt.Value(c), o.Value(j)))
	}
}

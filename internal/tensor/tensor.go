// Package tensor provides a dense multi-dimensional array whose values live in
// an algebra.Algebra.
//
// A Tensor owns its value buffer exclusively. Arithmetic methods mutate the
// receiver in place; methods that change the shape (Select, Combine, Marginal,
// Reshape) return a new Tensor. Mixing tensors of different sizes or algebras
// is a programming error and panics.
package tensor

import (
	"fmt"
	"strings"

	"github.com/born-ml/bpgrad/internal/algebra"
	"github.com/gomlx/exceptions"
)

// Tensor is a dense row-major array of algebra values.
type Tensor struct {
	s       algebra.Algebra
	dims    Shape
	strides []int
	values  []float64
}

// New creates a tensor with the given dims, filled with the algebra's zero.
// With no dims it creates a scalar (rank-0) tensor holding one value.
func New(s algebra.Algebra, dims ...int) *Tensor {
	shape := Shape(dims).Clone()
	if err := shape.Validate(); err != nil {
		exceptions.Panicf("tensor.New: %v", err)
	}
	t := &Tensor{
		s:       s,
		dims:    shape,
		strides: shape.ComputeStrides(),
		values:  make([]float64, shape.NumElements()),
	}
	t.Fill(s.Zero())
	return t
}

// FromValues creates a tensor from values already expressed in algebra s.
// The slice is copied.
func FromValues(s algebra.Algebra, values []float64, dims ...int) *Tensor {
	t := New(s, dims...)
	if len(values) != len(t.values) {
		exceptions.Panicf("tensor.FromValues: shape %v requires %d values, got %d", t.dims, len(t.values), len(values))
	}
	copy(t.values, values)
	return t
}

// FromReals creates a tensor from real numbers, converting them into algebra s.
func FromReals(s algebra.Algebra, reals []float64, dims ...int) *Tensor {
	t := New(s, dims...)
	if len(reals) != len(t.values) {
		exceptions.Panicf("tensor.FromReals: shape %v requires %d values, got %d", t.dims, len(t.values), len(reals))
	}
	for i, x := range reals {
		t.values[i] = s.FromReal(x)
	}
	return t
}

// Scalar creates a rank-0 tensor holding v (in algebra s).
func Scalar(s algebra.Algebra, v float64) *Tensor {
	return FromValues(s, []float64{v})
}

// Algebra returns the algebra the values are expressed in.
func (t *Tensor) Algebra() algebra.Algebra { return t.s }

// Dims returns a copy of the dimensions.
func (t *Tensor) Dims() Shape { return t.dims.Clone() }

// Dim returns the size of dimension i.
func (t *Tensor) Dim(i int) int { return t.dims[i] }

// Rank returns the number of dimensions.
func (t *Tensor) Rank() int { return len(t.dims) }

// Size returns the number of values.
func (t *Tensor) Size() int { return len(t.values) }

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	c := &Tensor{
		s:       t.s,
		dims:    t.dims.Clone(),
		strides: append([]int(nil), t.strides...),
		values:  make([]float64, len(t.values)),
	}
	copy(c.values, t.values)
	return c
}

// CopyAndFill returns a tensor of the same shape and algebra with every value set to v.
func (t *Tensor) CopyAndFill(v float64) *Tensor {
	c := t.Clone()
	c.Fill(v)
	return c
}

// CopyAndConvertAlgebra returns a copy of t expressed in algebra to. The
// receiver is left untouched.
func (t *Tensor) CopyAndConvertAlgebra(to algebra.Algebra) *Tensor {
	c := t.Clone()
	c.s = to
	for i, v := range t.values {
		c.values[i] = algebra.Convert(v, t.s, to)
	}
	return c
}

// Ravel returns the flat position of the multi-index idx.
func (t *Tensor) Ravel(idx ...int) int {
	if len(idx) != len(t.dims) {
		exceptions.Panicf("tensor: index %v has %d components, tensor has rank %d", idx, len(idx), len(t.dims))
	}
	pos := 0
	for i, v := range idx {
		if v < 0 || v >= t.dims[i] {
			exceptions.Panicf("tensor: index %v out of bounds for dims %v", idx, t.dims)
		}
		pos += v * t.strides[i]
	}
	return pos
}

// Unravel returns the multi-index of flat position pos.
func (t *Tensor) Unravel(pos int) []int {
	if pos < 0 || pos >= len(t.values) {
		exceptions.Panicf("tensor: flat position %d out of bounds for size %d", pos, len(t.values))
	}
	idx := make([]int, len(t.dims))
	for i, stride := range t.strides {
		idx[i] = pos / stride
		pos %= stride
	}
	return idx
}

// Get returns the value at the multi-index idx.
func (t *Tensor) Get(idx ...int) float64 { return t.values[t.Ravel(idx...)] }

// Set sets the value at the multi-index idx.
func (t *Tensor) Set(v float64, idx ...int) { t.values[t.Ravel(idx...)] = v }

// AddAt adds v (in the tensor's algebra) to the value at idx.
func (t *Tensor) AddAt(v float64, idx ...int) {
	pos := t.Ravel(idx...)
	t.values[pos] = t.s.Plus(t.values[pos], v)
}

// Value returns the value at flat position i.
func (t *Tensor) Value(i int) float64 { return t.values[i] }

// SetValue sets the value at flat position i.
func (t *Tensor) SetValue(i int, v float64) { t.values[i] = v }

// AddValue adds v (in the tensor's algebra) to the value at flat position i.
func (t *Tensor) AddValue(i int, v float64) { t.values[i] = t.s.Plus(t.values[i], v) }

// Values returns a copy of the raw (algebra) values.
func (t *Tensor) Values() []float64 { return append([]float64(nil), t.values...) }

// Reals returns the values converted to real numbers.
func (t *Tensor) Reals() []float64 {
	r := make([]float64, len(t.values))
	for i, v := range t.values {
		r[i] = t.s.ToReal(v)
	}
	return r
}

// Fill sets every value to v.
func (t *Tensor) Fill(v float64) {
	for i := range t.values {
		t.values[i] = v
	}
}

// Reshape returns a copy of t with new dims holding the same number of values.
func (t *Tensor) Reshape(dims ...int) *Tensor {
	r := New(t.s, dims...)
	if len(r.values) != len(t.values) {
		exceptions.Panicf("tensor.Reshape: cannot reshape %v into %v", t.dims, Shape(dims))
	}
	copy(r.values, t.values)
	return r
}

// String implements fmt.Stringer, printing real values.
func (t *Tensor) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Tensor[%s]%v{", t.s.Name(), []int(t.dims))
	for i, v := range t.values {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%.6g", t.s.ToReal(v))
	}
	sb.WriteString("}")
	return sb.String()
}

// checkCompatible panics unless o has the same algebra and size as t.
func (t *Tensor) checkCompatible(op string, o *Tensor) {
	if t.s != o.s {
		exceptions.Panicf("tensor.%s: algebras differ (%s vs %s)", op, t.s.Name(), o.s.Name())
	}
	if len(t.values) != len(o.values) {
		exceptions.Panicf("tensor.%s: sizes differ (%v vs %v)", op, t.dims, o.dims)
	}
}

package tensor

import (
	"math"

	"github.com/gomlx/exceptions"
)

// Add adds the scalar v to every value, in place.
func (t *Tensor) Add(v float64) {
	for i, x := range t.values {
		t.values[i] = t.s.Plus(x, v)
	}
}

// Subtract subtracts the scalar v from every value, in place.
func (t *Tensor) Subtract(v float64) {
	for i, x := range t.values {
		t.values[i] = t.s.Minus(x, v)
	}
}

// Multiply multiplies every value by the scalar v, in place.
func (t *Tensor) Multiply(v float64) {
	for i, x := range t.values {
		t.values[i] = t.s.Times(x, v)
	}
}

// Divide divides every value by the scalar v, in place.
func (t *Tensor) Divide(v float64) {
	for i, x := range t.values {
		t.values[i] = t.s.Divide(x, v)
	}
}

// ElemAdd adds o elementwise, in place.
func (t *Tensor) ElemAdd(o *Tensor) {
	t.checkCompatible("ElemAdd", o)
	for i, x := range t.values {
		t.values[i] = t.s.Plus(x, o.values[i])
	}
}

// ElemSubtract subtracts o elementwise, in place.
func (t *Tensor) ElemSubtract(o *Tensor) {
	t.checkCompatible("ElemSubtract", o)
	for i, x := range t.values {
		t.values[i] = t.s.Minus(x, o.values[i])
	}
}

// ElemMultiply multiplies by o elementwise, in place.
func (t *Tensor) ElemMultiply(o *Tensor) {
	t.checkCompatible("ElemMultiply", o)
	for i, x := range t.values {
		t.values[i] = t.s.Times(x, o.values[i])
	}
}

// ElemDivide divides by o elementwise, in place. x/0 is a signed infinity and
// 0/0 is NaN.
func (t *Tensor) ElemDivide(o *Tensor) {
	t.checkCompatible("ElemDivide", o)
	for i, x := range t.values {
		t.values[i] = t.s.Divide(x, o.values[i])
	}
}

// Exp applies the algebra's exp to every value, in place.
func (t *Tensor) Exp() {
	for i, x := range t.values {
		t.values[i] = t.s.Exp(x)
	}
}

// Log applies the algebra's log to every value, in place.
func (t *Tensor) Log() {
	for i, x := range t.values {
		t.values[i] = t.s.Log(x)
	}
}

// Select returns the slice of t at position idx along dimension dim. The
// result has one dimension less than t.
func (t *Tensor) Select(dim, idx int) *Tensor {
	t.checkSlice("Select", dim, idx)
	out := New(t.s, t.sliceDims(dim)...)
	src := make([]int, len(t.dims))
	pos := 0
	for outIdx := range DimIter(out.dims...) {
		fillWithSlice(src, outIdx, dim, idx)
		out.values[pos] = t.values[t.Ravel(src...)]
		pos++
	}
	return out
}

// AddTensor adds addend into the slice of t at position idx along dimension
// dim, in place. addend must have the dims of t without dim. This is the
// adjoint of Select.
func (t *Tensor) AddTensor(addend *Tensor, dim, idx int) {
	t.checkSlice("AddTensor", dim, idx)
	if t.s != addend.s {
		exceptions.Panicf("tensor.AddTensor: algebras differ (%s vs %s)", t.s.Name(), addend.s.Name())
	}
	if !addend.dims.Equal(t.sliceDims(dim)) {
		exceptions.Panicf("tensor.AddTensor: addend dims %v do not match slice dims %v", addend.dims, t.sliceDims(dim))
	}
	dst := make([]int, len(t.dims))
	pos := 0
	for addIdx := range DimIter(addend.dims...) {
		fillWithSlice(dst, addIdx, dim, idx)
		p := t.Ravel(dst...)
		t.values[p] = t.s.Plus(t.values[p], addend.values[pos])
		pos++
	}
}

// Combine stacks two equal-shaped tensors along a new leading dimension of
// size 2.
func Combine(t1, t2 *Tensor) *Tensor {
	t1.checkCompatible("Combine", t2)
	if !t1.dims.Equal(t2.dims) {
		exceptions.Panicf("tensor.Combine: dims differ (%v vs %v)", t1.dims, t2.dims)
	}
	dims := append([]int{2}, t1.dims...)
	out := New(t1.s, dims...)
	copy(out.values, t1.values)
	copy(out.values[len(t1.values):], t2.values)
	return out
}

// Marginal sums out every dimension not listed in keep. The result has dims
// t.dims[keep[0]], t.dims[keep[1]], ...; an empty keep yields a scalar.
func (t *Tensor) Marginal(keep ...int) *Tensor {
	outDims := make([]int, len(keep))
	for i, d := range keep {
		if d < 0 || d >= len(t.dims) {
			exceptions.Panicf("tensor.Marginal: dimension %d out of range for rank %d", d, len(t.dims))
		}
		outDims[i] = t.dims[d]
	}
	out := New(t.s, outDims...)
	dst := make([]int, len(keep))
	pos := 0
	for idx := range DimIter(t.dims...) {
		for i, d := range keep {
			dst[i] = idx[d]
		}
		p := out.Ravel(dst...)
		out.values[p] = t.s.Plus(out.values[p], t.values[pos])
		pos++
	}
	return out
}

// Sum returns the sum of all values.
func (t *Tensor) Sum() float64 {
	sum := t.s.Zero()
	for _, x := range t.values {
		sum = t.s.Plus(sum, x)
	}
	return sum
}

// Prod returns the product of all values.
func (t *Tensor) Prod() float64 {
	prod := t.s.One()
	for _, x := range t.values {
		prod = t.s.Times(prod, x)
	}
	return prod
}

// Max returns the largest value; NaN values are skipped.
func (t *Tensor) Max() float64 {
	return t.values[t.ArgMax()]
}

// ArgMax returns the flat position of the largest value (the first one on ties).
func (t *Tensor) ArgMax() int {
	best := 0
	for i, x := range t.values {
		if t.s.IsNaN(t.values[best]) || t.s.Gt(x, t.values[best]) {
			best = i
		}
	}
	return best
}

// Dot returns the sum of the elementwise product of t and o.
func (t *Tensor) Dot(o *Tensor) float64 {
	t.checkCompatible("Dot", o)
	sum := t.s.Zero()
	for i, x := range t.values {
		sum = t.s.Plus(sum, t.s.Times(x, o.values[i]))
	}
	return sum
}

// InfNorm returns the largest absolute value.
func (t *Tensor) InfNorm() float64 {
	norm := t.s.Zero()
	for _, x := range t.values {
		a := t.s.Abs(x)
		if t.s.IsNaN(a) {
			return a
		}
		if t.s.Gt(a, norm) {
			norm = a
		}
	}
	return norm
}

// Normalize divides every value by their sum, in place, and returns the sum.
// A zero sum leaves NaN values (0/0), which are not clamped.
func (t *Tensor) Normalize() float64 {
	sum := t.Sum()
	t.Divide(sum)
	return sum
}

// EqualsTol reports whether t and o have the same algebra and dims and all
// values are equal within tol (see algebra.Algebra.Eq).
func (t *Tensor) EqualsTol(o *Tensor, tol float64) bool {
	if t.s != o.s || !t.dims.Equal(o.dims) {
		return false
	}
	for i, x := range t.values {
		if !t.s.Eq(x, o.values[i], tol) {
			return false
		}
	}
	return true
}

// ContainsBadValues reports whether any value is NaN or not a finite real number.
func (t *Tensor) ContainsBadValues() bool {
	for _, x := range t.values {
		r := t.s.ToReal(x)
		if math.IsNaN(r) || math.IsInf(r, 0) {
			return true
		}
	}
	return false
}

func (t *Tensor) checkSlice(op string, dim, idx int) {
	if dim < 0 || dim >= len(t.dims) {
		exceptions.Panicf("tensor.%s: dimension %d out of range for rank %d", op, dim, len(t.dims))
	}
	if idx < 0 || idx >= t.dims[dim] {
		exceptions.Panicf("tensor.%s: index %d out of range for dimension %d of size %d", op, idx, dim, t.dims[dim])
	}
}

// sliceDims returns t's dims without dimension dim.
func (t *Tensor) sliceDims(dim int) []int {
	out := make([]int, 0, len(t.dims)-1)
	out = append(out, t.dims[:dim]...)
	return append(out, t.dims[dim+1:]...)
}

// fillWithSlice writes into full the index sub with idx inserted at position dim.
func fillWithSlice(full, sub []int, dim, idx int) {
	copy(full[:dim], sub[:dim])
	full[dim] = idx
	copy(full[dim+1:], sub[dim:])
}

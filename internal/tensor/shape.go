package tensor

import (
	"fmt"
	"iter"
)

// Shape represents the dimensions of a tensor.
type Shape []int

// NumElements returns the total number of elements in the tensor.
func (s Shape) NumElements() int {
	n := 1 // Scalar has 1 element
	for _, dim := range s {
		n *= dim
	}
	return n
}

// Validate checks if the shape is valid (all dimensions > 0).
func (s Shape) Validate() error {
	for i, dim := range s {
		if dim <= 0 {
			return fmt.Errorf("invalid dimension at index %d: %d (must be > 0)", i, dim)
		}
	}
	return nil
}

// Equal checks if two shapes are equal.
func (s Shape) Equal(other Shape) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy of the shape.
func (s Shape) Clone() Shape {
	clone := make(Shape, len(s))
	copy(clone, s)
	return clone
}

// ComputeStrides calculates row-major strides for the shape.
// Strides define memory layout: stride[i] = product of all dimensions after i.
func (s Shape) ComputeStrides() []int {
	strides := make([]int, len(s))
	if len(s) == 0 {
		return strides
	}

	strides[len(s)-1] = 1
	for i := len(s) - 2; i >= 0; i-- {
		strides[i] = strides[i+1] * s[i+1]
	}
	return strides
}

// DimIter iterates over all multi-indices of dims in row-major order (the
// last index varies fastest). This is the canonical order of every
// dimension-aware operation: the n-th yielded index addresses the n-th value
// of a tensor with these dims.
//
// The yielded slice is owned by the iterator and reused between steps: copy
// it if it must outlive the loop body. The sequence is finite and can be
// restarted by ranging over it again.
func DimIter(dims ...int) iter.Seq[[]int] {
	dims = Shape(dims).Clone()
	return func(yield func([]int) bool) {
		for _, d := range dims {
			if d <= 0 {
				return
			}
		}
		idx := make([]int, len(dims))
		for {
			if !yield(idx) {
				return
			}
			axis := len(dims) - 1
			for ; axis >= 0; axis-- {
				idx[axis]++
				if idx[axis] < dims[axis] {
					break
				}
				idx[axis] = 0
			}
			if axis < 0 {
				return
			}
		}
	}
}
